package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// AvailabilityChangeRepository persists the availability flip feed consumed
// by the repair engine.
type AvailabilityChangeRepository struct {
	db *sqlx.DB
}

// NewAvailabilityChangeRepository creates a new change-feed repository.
func NewAvailabilityChangeRepository(db *sqlx.DB) *AvailabilityChangeRepository {
	return &AvailabilityChangeRepository{db: db}
}

// Create stores one change record.
func (r *AvailabilityChangeRepository) Create(ctx context.Context, change *models.AvailabilityChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO availability_changes (id, teacher_id, weekday, time_slot_id, was_available, now_available, processed, created_at)
VALUES (:id, :teacher_id, :weekday, :time_slot_id, :was_available, :now_available, :processed, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, change); err != nil {
		return fmt.Errorf("create availability change: %w", err)
	}
	return nil
}

// ListUnprocessedByTeacher returns the teacher's unprocessed flips, oldest
// first.
func (r *AvailabilityChangeRepository) ListUnprocessedByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityChange, error) {
	const query = `SELECT id, teacher_id, weekday, time_slot_id, was_available, now_available, processed, created_at
FROM availability_changes WHERE teacher_id = $1 AND processed = FALSE ORDER BY created_at ASC`
	var changes []models.AvailabilityChange
	if err := r.db.SelectContext(ctx, &changes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list unprocessed availability changes: %w", err)
	}
	return changes, nil
}

// MarkProcessed acknowledges the given change records.
func (r *AvailabilityChangeRepository) MarkProcessed(ctx context.Context, exec sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if exec == nil {
		exec = r.db
	}
	query, args, err := sqlx.In(`UPDATE availability_changes SET processed = TRUE WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build mark processed query: %w", err)
	}
	query = exec.Rebind(query)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark availability changes processed: %w", err)
	}
	return nil
}
