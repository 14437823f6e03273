package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

const scheduleColumns = `id, teacher_id, subject_id, time_slot_id, weekday, group_code, period, version, active, created_by, created_at`

// ScheduleRepository persists committed timetable assignments.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns committed assignments matching the filter.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.AcademicSchedule, error) {
	base := "FROM academic_schedules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Period != "" {
		conditions = append(conditions, fmt.Sprintf("period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}
	if filter.GroupCode != "" {
		conditions = append(conditions, fmt.Sprintf("group_code = $%d", len(args)+1))
		args = append(args, filter.GroupCode)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.OnlyActive {
		conditions = append(conditions, "active = TRUE")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY group_code ASC, weekday ASC, time_slot_id ASC", scheduleColumns, base)
	var schedules []models.AcademicSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// ListActiveByPeriod returns every active assignment in a planning period.
func (r *ScheduleRepository) ListActiveByPeriod(ctx context.Context, period string) ([]models.AcademicSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_schedules WHERE period = $1 AND active = TRUE ORDER BY group_code ASC, weekday ASC, time_slot_id ASC`, scheduleColumns)
	var schedules []models.AcademicSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, period); err != nil {
		return nil, fmt.Errorf("list active schedules by period: %w", err)
	}
	return schedules, nil
}

// FindActiveAt returns a teacher's active assignments at one (weekday,
// time-slot) coordinate within a period. Used by repair detection.
func (r *ScheduleRepository) FindActiveAt(ctx context.Context, teacherID string, weekday int, timeSlotID, period string) ([]models.AcademicSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_schedules WHERE teacher_id = $1 AND weekday = $2 AND time_slot_id = $3 AND period = $4 AND active = TRUE`, scheduleColumns)
	var schedules []models.AcademicSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, teacherID, weekday, timeSlotID, period); err != nil {
		return nil, fmt.Errorf("find active schedules at coordinate: %w", err)
	}
	return schedules, nil
}

// BulkCreateWithTx inserts assignments using an existing transaction.
func (r *ScheduleRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, schedules []models.AcademicSchedule) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	now := time.Now().UTC()
	for i := range schedules {
		payload := schedules[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.Active = true

		const query = `
INSERT INTO academic_schedules (id, teacher_id, subject_id, time_slot_id, weekday, group_code, period, version, active, created_by, created_at)
VALUES (:id, :teacher_id, :subject_id, :time_slot_id, :weekday, :group_code, :period, :version, :active, :created_by, :created_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, query, &payload); err != nil {
			return fmt.Errorf("bulk insert schedule: %w", err)
		}
		schedules[i] = payload
	}
	return nil
}

// DeactivateByGroupPeriod soft-deletes the active assignments of a group in
// a period. Used when a regeneration supersedes a previous solve.
func (r *ScheduleRepository) DeactivateByGroupPeriod(ctx context.Context, exec sqlx.ExtContext, groupCode, period string) (int64, error) {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, `UPDATE academic_schedules SET active = FALSE WHERE group_code = $1 AND period = $2 AND active = TRUE`, groupCode, period)
	if err != nil {
		return 0, fmt.Errorf("deactivate schedules by group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate schedules rows affected: %w", err)
	}
	return affected, nil
}

// DeactivateByIDs soft-deletes exactly the given assignments.
func (r *ScheduleRepository) DeactivateByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	target := r.exec(exec)
	query, args, err := sqlx.In(`UPDATE academic_schedules SET active = FALSE WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build deactivate query: %w", err)
	}
	query = target.Rebind(query)
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate schedules by ids: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate schedules rows affected: %w", err)
	}
	return affected, nil
}
