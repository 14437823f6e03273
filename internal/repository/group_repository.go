package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// GroupRepository provides read access to student cohorts.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByCode loads a group by its unique code. The repair engine resolves
// affected groups this way because committed assignments carry codes, not ids.
func (r *GroupRepository) FindByCode(ctx context.Context, code string) (*models.Group, error) {
	const query = `SELECT id, code, shift, program_id, term_level, active, created_at, updated_at FROM groups WHERE code = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, code); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListByIDs returns the active groups for the given ids.
func (r *GroupRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, code, shift, program_id, term_level, active, created_at, updated_at FROM groups WHERE active = TRUE AND id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build group id query: %w", err)
	}
	query = r.db.Rebind(query)

	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list groups by ids: %w", err)
	}
	return groups, nil
}

// ListByProgramTerm returns active groups for the legacy program and
// term-level addressing mode.
func (r *GroupRepository) ListByProgramTerm(ctx context.Context, programID string, termLevel int) ([]models.Group, error) {
	const query = `SELECT id, code, shift, program_id, term_level, active, created_at, updated_at
FROM groups WHERE active = TRUE AND program_id = $1 AND term_level = $2 ORDER BY code ASC`
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, programID, termLevel); err != nil {
		return nil, fmt.Errorf("list groups by program/term: %w", err)
	}
	return groups, nil
}
