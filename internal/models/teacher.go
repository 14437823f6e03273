package models

import "time"

// TeacherCategory determines the weekly-hour ceiling for a teacher.
type TeacherCategory string

const (
	TeacherCategoryFullTime  TeacherCategory = "FULL_TIME"
	TeacherCategoryBySubject TeacherCategory = "BY_SUBJECT"
)

// WeeklyHourCeiling returns the hard weekly load cap for the category.
func (c TeacherCategory) WeeklyHourCeiling() int {
	if c == TeacherCategoryBySubject {
		return 20
	}
	return 40
}

// Teacher represents an instructor record.
type Teacher struct {
	ID        string          `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	FullName  string          `db:"full_name" json:"full_name"`
	Category  TeacherCategory `db:"category" json:"category"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
