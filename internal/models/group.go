package models

import "time"

// Shift determines which time-slot catalog applies to a group.
type Shift string

const (
	ShiftMorning Shift = "MORNING"
	ShiftEvening Shift = "EVENING"
)

// Group represents a student cohort following a fixed subject list within
// one shift and term.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Shift     Shift     `db:"shift" json:"shift"`
	ProgramID string    `db:"program_id" json:"program_id"`
	TermLevel int       `db:"term_level" json:"term_level"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GroupSubjectTeacher is the explicit binding saying which teacher is
// expected to teach a subject in a specific group. At most one active row
// exists per (group, subject) pair.
type GroupSubjectTeacher struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
