package models

import "time"

// Subject represents a course with a fixed weekly contact-hour requirement.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	WeeklyHours int       `db:"weekly_hours" json:"weekly_hours"`
	ProgramID   string    `db:"program_id" json:"program_id"`
	TermLevel   int       `db:"term_level" json:"term_level"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectTeacher is the generic roster entry linking a teacher to a subject
// they are qualified to teach. Distinct from the per-group binding.
type SubjectTeacher struct {
	ID        string    `db:"id" json:"id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
