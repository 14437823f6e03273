package dto

// AvailabilitySlot is one availability statement at a (weekday, time-slot)
// coordinate.
type AvailabilitySlot struct {
	Weekday    int    `json:"weekday" validate:"required,min=1,max=7"`
	TimeSlotID string `json:"time_slot_id" validate:"required"`
	Available  bool   `json:"available"`
}

// AvailabilityUpdateRequest applies availability statements for a teacher.
// Every statement that flips the previous state is recorded on the repair
// engine's change feed.
type AvailabilityUpdateRequest struct {
	TeacherID string             `json:"-" validate:"required"`
	Entries   []AvailabilitySlot `json:"entries" validate:"required,min=1,dive"`
}

// AvailabilityUpdateResult summarises one availability update.
type AvailabilityUpdateResult struct {
	TeacherID string `json:"teacher_id"`
	Updated   int    `json:"updated"`
	Changed   int    `json:"changed"`
}
