package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type availabilityStore interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error)
	Upsert(ctx context.Context, fact *models.TeacherAvailability) error
}

type changeRecorder interface {
	Create(ctx context.Context, change *models.AvailabilityChange) error
}

type teacherFinder interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// AvailabilityService maintains teacher availability facts and feeds every
// flip to the change feed the repair engine consumes.
type AvailabilityService struct {
	facts    availabilityStore
	changes  changeRecorder
	teachers teacherFinder
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAvailabilityService(facts availabilityStore, changes changeRecorder, teachers teacherFinder, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		facts:    facts,
		changes:  changes,
		teachers: teachers,
		validate: validator.New(),
		logger:   logger,
	}
}

// Update applies the given availability statements. A coordinate without a
// prior fact counts as unavailable, so declaring it available records a flip
// just like withdrawing an existing one does.
func (s *AvailabilityService) Update(ctx context.Context, req dto.AvailabilityUpdateRequest) (*dto.AvailabilityUpdateResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found: "+req.TeacherID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading teacher")
	}

	existing, err := s.facts.ListByTeacher(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading availability facts")
	}
	prior := make(map[SlotCoord]bool, len(existing))
	for _, fact := range existing {
		prior[SlotCoord{Weekday: fact.Weekday, TimeSlotID: fact.TimeSlotID}] = fact.Available
	}

	result := &dto.AvailabilityUpdateResult{TeacherID: teacher.ID}
	for _, entry := range req.Entries {
		fact := models.TeacherAvailability{
			TeacherID:  teacher.ID,
			Weekday:    entry.Weekday,
			TimeSlotID: entry.TimeSlotID,
			Available:  entry.Available,
		}
		if err := s.facts.Upsert(ctx, &fact); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "upserting availability fact")
		}
		result.Updated++

		was := prior[SlotCoord{Weekday: entry.Weekday, TimeSlotID: entry.TimeSlotID}]
		if was == entry.Available {
			continue
		}
		change := models.AvailabilityChange{
			TeacherID:  teacher.ID,
			Weekday:    entry.Weekday,
			TimeSlotID: entry.TimeSlotID,
			WasAvail:   was,
			NowAvail:   entry.Available,
		}
		if err := s.changes.Create(ctx, &change); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "recording availability change")
		}
		result.Changed++
	}

	s.logger.Info("availability updated",
		zap.String("teacher", teacher.ID),
		zap.Int("updated", result.Updated),
		zap.Int("changed", result.Changed),
	)
	return result, nil
}
