package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// SubjectRepository provides read access to subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListByGroup returns the fixed subject roster of a group.
func (r *SubjectRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Subject, error) {
	const query = `
SELECT s.id, s.code, s.name, s.weekly_hours, s.program_id, s.term_level, s.created_at, s.updated_at
FROM group_subjects gs
JOIN subjects s ON s.id = gs.subject_id
WHERE gs.group_id = $1
ORDER BY s.code ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, groupID); err != nil {
		return nil, fmt.Errorf("list subjects by group: %w", err)
	}
	return subjects, nil
}
