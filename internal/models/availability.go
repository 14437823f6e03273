package models

import "time"

// TeacherAvailability is an explicit availability fact for a teacher at one
// (weekday, time-slot) coordinate. A missing row means unavailable; the
// solver never defaults to available.
type TeacherAvailability struct {
	ID         string    `db:"id" json:"id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	Weekday    int       `db:"weekday" json:"weekday"`
	TimeSlotID string    `db:"time_slot_id" json:"time_slot_id"`
	Available  bool      `db:"available" json:"available"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AvailabilityChange records one availability flip, feeding the repair
// engine. Processed rows are never picked up again.
type AvailabilityChange struct {
	ID         string    `db:"id" json:"id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	Weekday    int       `db:"weekday" json:"weekday"`
	TimeSlotID string    `db:"time_slot_id" json:"time_slot_id"`
	WasAvail   bool      `db:"was_available" json:"was_available"`
	NowAvail   bool      `db:"now_available" json:"now_available"`
	Processed  bool      `db:"processed" json:"processed"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
