package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// BackupRepository persists repair snapshots of committed assignments.
type BackupRepository struct {
	db *sqlx.DB
}

// NewBackupRepository creates a new backup repository.
func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// Create serializes the affected assignments into one snapshot row. The
// snapshot is written before any invalidation happens.
func (r *BackupRepository) Create(ctx context.Context, exec sqlx.ExtContext, backup *models.ScheduleBackup, entries []models.AcademicSchedule) error {
	if backup.ID == "" {
		backup.ID = uuid.NewString()
	}
	if backup.CreatedAt.IsZero() {
		backup.CreatedAt = time.Now().UTC()
	}
	if backup.Name == "" {
		backup.Name = fmt.Sprintf("repair-%s-%s", backup.TeacherID, backup.CreatedAt.Format("20060102T150405"))
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal backup entries: %w", err)
	}
	backup.Entries = types.JSONText(payload)

	target := sqlx.ExtContext(r.db)
	if exec != nil {
		target = exec
	}

	const query = `
INSERT INTO schedule_backups (id, name, teacher_id, period, entries, created_at)
VALUES (:id, :name, :teacher_id, :period, :entries, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, backup); err != nil {
		return fmt.Errorf("insert schedule backup: %w", err)
	}
	return nil
}

// FindByID loads a snapshot by id.
func (r *BackupRepository) FindByID(ctx context.Context, id string) (*models.ScheduleBackup, error) {
	const query = `SELECT id, name, teacher_id, period, entries, created_at FROM schedule_backups WHERE id = $1`
	var backup models.ScheduleBackup
	if err := r.db.GetContext(ctx, &backup, query, id); err != nil {
		return nil, err
	}
	return &backup, nil
}
