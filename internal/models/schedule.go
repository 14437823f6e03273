package models

import "time"

// AcademicSchedule is a committed timetable assignment: one teaching hour of
// a subject at a (weekday, time-slot) coordinate for a group. The solver is
// the only producer; supersession and repair soft-delete via Active=false.
type AcademicSchedule struct {
	ID         string    `db:"id" json:"id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	TimeSlotID string    `db:"time_slot_id" json:"time_slot_id"`
	Weekday    int       `db:"weekday" json:"weekday"`
	GroupCode  string    `db:"group_code" json:"group_code"`
	Period     string    `db:"period" json:"period"`
	Version    string    `db:"version" json:"version"`
	Active     bool      `db:"active" json:"active"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ScheduleFilter describes query params for listing committed assignments.
type ScheduleFilter struct {
	Period     string
	GroupCode  string
	TeacherID  string
	OnlyActive bool
}
