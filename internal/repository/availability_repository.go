package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// AvailabilityRepository persists explicit teacher availability facts.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTeacher returns every explicit availability fact for a teacher.
// Coordinates without a row are unavailable.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	const query = `SELECT id, teacher_id, weekday, time_slot_id, available, created_at, updated_at
FROM teacher_availability WHERE teacher_id = $1 ORDER BY weekday ASC, time_slot_id ASC`
	var facts []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &facts, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability by teacher: %w", err)
	}
	return facts, nil
}

// Upsert creates or updates one availability fact. Flip detection against
// the prior state happens in the availability service, not here.
func (r *AvailabilityRepository) Upsert(ctx context.Context, fact *models.TeacherAvailability) error {
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = now
	}
	fact.UpdatedAt = now

	const query = `
INSERT INTO teacher_availability (id, teacher_id, weekday, time_slot_id, available, created_at, updated_at)
VALUES (:id, :teacher_id, :weekday, :time_slot_id, :available, :created_at, :updated_at)
ON CONFLICT (teacher_id, weekday, time_slot_id) DO UPDATE
SET available = EXCLUDED.available,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, fact); err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}
	return nil
}
