package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// TeacherRepository provides read access to instructor records and their
// subject bindings.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository creates a new teacher repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID loads a teacher by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, code, full_name, category, active, created_at, updated_at FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindBinding returns the explicitly bound teacher for a (group, subject)
// pair, or sql.ErrNoRows when no binding exists.
func (r *TeacherRepository) FindBinding(ctx context.Context, groupID, subjectID string) (*models.Teacher, error) {
	const query = `
SELECT t.id, t.code, t.full_name, t.category, t.active, t.created_at, t.updated_at
FROM group_subject_teachers gst
JOIN teachers t ON t.id = gst.teacher_id
WHERE gst.group_id = $1 AND gst.subject_id = $2`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, groupID, subjectID); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListRosterBySubject returns the generic roster of active teachers
// qualified for a subject.
func (r *TeacherRepository) ListRosterBySubject(ctx context.Context, subjectID string) ([]models.Teacher, error) {
	const query = `
SELECT t.id, t.code, t.full_name, t.category, t.active, t.created_at, t.updated_at
FROM subject_teachers st
JOIN teachers t ON t.id = st.teacher_id
WHERE st.subject_id = $1 AND t.active = TRUE
ORDER BY t.code ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, subjectID); err != nil {
		return nil, fmt.Errorf("list subject roster: %w", err)
	}
	return teachers, nil
}
