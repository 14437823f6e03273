package models

import "time"

// TimeSlot is one ordered period within a shift, shared by every group of
// that shift.
type TimeSlot struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Shift      Shift     `db:"shift" json:"shift"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	OrderIndex int       `db:"order_index" json:"order_index"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
