package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type stubAvailabilityStore struct {
	facts    []models.TeacherAvailability
	upserted []models.TeacherAvailability
}

func (s *stubAvailabilityStore) ListByTeacher(_ context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	var result []models.TeacherAvailability
	for _, fact := range s.facts {
		if fact.TeacherID == teacherID {
			result = append(result, fact)
		}
	}
	return result, nil
}

func (s *stubAvailabilityStore) Upsert(_ context.Context, fact *models.TeacherAvailability) error {
	s.upserted = append(s.upserted, *fact)
	return nil
}

type stubChangeRecorder struct {
	created []models.AvailabilityChange
}

func (s *stubChangeRecorder) Create(_ context.Context, change *models.AvailabilityChange) error {
	s.created = append(s.created, *change)
	return nil
}

type stubTeacherFinder struct {
	teachers map[string]models.Teacher
}

func (s *stubTeacherFinder) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	if t, ok := s.teachers[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func newAvailabilityService(store *stubAvailabilityStore, recorder *stubChangeRecorder) *AvailabilityService {
	finder := &stubTeacherFinder{teachers: map[string]models.Teacher{
		"t1": {ID: "t1", Code: "T-01", Active: true},
	}}
	return NewAvailabilityService(store, recorder, finder, nil)
}

func TestAvailabilityUpdateRecordsFlipsOnly(t *testing.T) {
	store := &stubAvailabilityStore{facts: []models.TeacherAvailability{
		{TeacherID: "t1", Weekday: 1, TimeSlotID: "slot-1", Available: true},
		{TeacherID: "t1", Weekday: 2, TimeSlotID: "slot-1", Available: true},
	}}
	recorder := &stubChangeRecorder{}
	svc := newAvailabilityService(store, recorder)

	result, err := svc.Update(context.Background(), dto.AvailabilityUpdateRequest{
		TeacherID: "t1",
		Entries: []dto.AvailabilitySlot{
			{Weekday: 1, TimeSlotID: "slot-1", Available: false}, // withdrawal
			{Weekday: 2, TimeSlotID: "slot-1", Available: true},  // unchanged
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, recorder.created, 1)
	change := recorder.created[0]
	assert.Equal(t, "t1", change.TeacherID)
	assert.Equal(t, 1, change.Weekday)
	assert.True(t, change.WasAvail)
	assert.False(t, change.NowAvail)
	assert.False(t, change.Processed)
	assert.Len(t, store.upserted, 2)
}

func TestAvailabilityUpdateTreatsMissingFactAsUnavailable(t *testing.T) {
	store := &stubAvailabilityStore{}
	recorder := &stubChangeRecorder{}
	svc := newAvailabilityService(store, recorder)

	result, err := svc.Update(context.Background(), dto.AvailabilityUpdateRequest{
		TeacherID: "t1",
		Entries: []dto.AvailabilitySlot{
			{Weekday: 3, TimeSlotID: "slot-2", Available: true},
			{Weekday: 4, TimeSlotID: "slot-2", Available: false},
		},
	})
	require.NoError(t, err)

	// declaring a fresh coordinate available is a flip, declaring it
	// unavailable is not
	assert.Equal(t, 1, result.Changed)
	require.Len(t, recorder.created, 1)
	assert.False(t, recorder.created[0].WasAvail)
	assert.True(t, recorder.created[0].NowAvail)
}

func TestAvailabilityUpdateRejectsUnknownTeacher(t *testing.T) {
	svc := newAvailabilityService(&stubAvailabilityStore{}, &stubChangeRecorder{})

	_, err := svc.Update(context.Background(), dto.AvailabilityUpdateRequest{
		TeacherID: "ghost",
		Entries:   []dto.AvailabilitySlot{{Weekday: 1, TimeSlotID: "slot-1", Available: true}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityUpdateRejectsEmptyEntries(t *testing.T) {
	svc := newAvailabilityService(&stubAvailabilityStore{}, &stubChangeRecorder{})

	_, err := svc.Update(context.Background(), dto.AvailabilityUpdateRequest{TeacherID: "t1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
