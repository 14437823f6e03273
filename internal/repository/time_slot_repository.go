package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// TimeSlotRepository provides read access to the per-shift slot catalog.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository creates a new time-slot repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// ListByShift returns the ordered slot catalog for a shift.
func (r *TimeSlotRepository) ListByShift(ctx context.Context, shift models.Shift) ([]models.TimeSlot, error) {
	const query = `SELECT id, name, shift, start_time, end_time, order_index, created_at
FROM time_slots WHERE shift = $1 ORDER BY order_index ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, shift); err != nil {
		return nil, fmt.Errorf("list time slots by shift: %w", err)
	}
	return slots, nil
}
