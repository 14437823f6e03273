package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type stubChangeFeed struct {
	rows      []models.AvailabilityChange
	processed []string
}

func (s *stubChangeFeed) ListUnprocessedByTeacher(_ context.Context, teacherID string) ([]models.AvailabilityChange, error) {
	var result []models.AvailabilityChange
	for _, row := range s.rows {
		if row.TeacherID == teacherID && !row.Processed {
			result = append(result, row)
		}
	}
	return result, nil
}

func (s *stubChangeFeed) MarkProcessed(_ context.Context, _ sqlx.ExtContext, ids []string) error {
	s.processed = append(s.processed, ids...)
	for i := range s.rows {
		for _, id := range ids {
			if s.rows[i].ID == id {
				s.rows[i].Processed = true
			}
		}
	}
	return nil
}

type stubRepairStore struct {
	active            []models.AcademicSchedule
	deactivatedIDs    []string
	deactivatedGroups []string
	inserted          []models.AcademicSchedule
}

func (s *stubRepairStore) FindActiveAt(_ context.Context, teacherID string, weekday int, timeSlotID, period string) ([]models.AcademicSchedule, error) {
	var result []models.AcademicSchedule
	for _, row := range s.active {
		if row.Active && row.TeacherID == teacherID && row.Weekday == weekday && row.TimeSlotID == timeSlotID && row.Period == period {
			result = append(result, row)
		}
	}
	return result, nil
}

func (s *stubRepairStore) DeactivateByIDs(_ context.Context, _ sqlx.ExtContext, ids []string) (int64, error) {
	s.deactivatedIDs = append(s.deactivatedIDs, ids...)
	var n int64
	for i := range s.active {
		for _, id := range ids {
			if s.active[i].ID == id && s.active[i].Active {
				s.active[i].Active = false
				n++
			}
		}
	}
	return n, nil
}

func (s *stubRepairStore) DeactivateByGroupPeriod(_ context.Context, _ sqlx.ExtContext, groupCode, period string) (int64, error) {
	s.deactivatedGroups = append(s.deactivatedGroups, groupCode)
	var n int64
	for i := range s.active {
		if s.active[i].GroupCode == groupCode && s.active[i].Period == period && s.active[i].Active {
			s.active[i].Active = false
			n++
		}
	}
	return n, nil
}

func (s *stubRepairStore) BulkCreateWithTx(_ context.Context, _ *sqlx.Tx, rows []models.AcademicSchedule) error {
	s.inserted = append(s.inserted, rows...)
	return nil
}

type stubBackupStore struct {
	backups map[string]*models.ScheduleBackup
}

func (s *stubBackupStore) Create(_ context.Context, _ sqlx.ExtContext, backup *models.ScheduleBackup, entries []models.AcademicSchedule) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	backup.ID = "backup-1"
	backup.Entries = payload
	if s.backups == nil {
		s.backups = make(map[string]*models.ScheduleBackup)
	}
	s.backups[backup.ID] = backup
	return nil
}

func (s *stubBackupStore) FindByID(_ context.Context, id string) (*models.ScheduleBackup, error) {
	if backup, ok := s.backups[id]; ok {
		return backup, nil
	}
	return nil, errors.New("not found")
}

type stubGroupResolver struct {
	byCode map[string]models.Group
}

func (s *stubGroupResolver) FindByCode(_ context.Context, code string) (*models.Group, error) {
	if group, ok := s.byCode[code]; ok {
		return &group, nil
	}
	return nil, errors.New("unknown group " + code)
}

type stubGenerator struct {
	requests []dto.GenerateRequest
	result   *dto.GenerateResult
	err      error
}

func (s *stubGenerator) Generate(_ context.Context, req dto.GenerateRequest) (*dto.GenerateResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type repairFixture struct {
	feed      *stubChangeFeed
	store     *stubRepairStore
	backups   *stubBackupStore
	groups    *stubGroupResolver
	generator *stubGenerator
	cache     *stubInvalidator
}

func newRepairFixture() *repairFixture {
	return &repairFixture{
		feed:      &stubChangeFeed{},
		store:     &stubRepairStore{},
		backups:   &stubBackupStore{},
		groups:    &stubGroupResolver{byCode: map[string]models.Group{}},
		generator: &stubGenerator{result: &dto.GenerateResult{Success: true}},
		cache:     &stubInvalidator{},
	}
}

func (f *repairFixture) service(t *testing.T, commits int) *RepairService {
	return NewRepairService(f.feed, f.store, f.backups, f.groups, f.generator, f.cache, newTxDB(t, commits), "system", nil)
}

func TestRepairDetectsBacksUpAndRegenerates(t *testing.T) {
	f := newRepairFixture()
	f.feed.rows = []models.AvailabilityChange{
		{ID: "c1", TeacherID: "t1", Weekday: 1, TimeSlotID: "slot-1", WasAvail: true, NowAvail: false},
		{ID: "c2", TeacherID: "t1", Weekday: 2, TimeSlotID: "slot-2", WasAvail: false, NowAvail: true},
	}
	f.store.active = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-101", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
		{ID: "a2", TeacherID: "t1", GroupCode: "SW-202", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
		{ID: "a3", TeacherID: "t1", GroupCode: "SW-101", Weekday: 3, TimeSlotID: "slot-3", Period: "2026-1", Active: true},
	}
	f.groups.byCode["SW-101"] = models.Group{ID: "g1", Code: "SW-101"}
	f.groups.byCode["SW-202"] = models.Group{ID: "g2", Code: "SW-202"}
	f.generator.result = &dto.GenerateResult{Success: true, Generated: 4, Units: []dto.UnitResult{
		{GroupCodes: []string{"SW-101"}, Status: dto.UnitStatusOK},
		{GroupCodes: []string{"SW-202"}, Status: dto.UnitStatusOK},
	}}

	result, err := f.service(t, 1).Repair(context.Background(), dto.RepairRequest{TeacherID: "t1", Period: "2026-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Detected)
	assert.Equal(t, "backup-1", result.BackupID)
	assert.Equal(t, 2, result.Invalidated)
	assert.Empty(t, result.Unrepaired)
	require.NotNil(t, result.Regenerated)

	// the untouched assignment at day 3 survives
	assert.ElementsMatch(t, []string{"a1", "a2"}, f.store.deactivatedIDs)
	// all consumed feed rows are acknowledged, not just the losses
	assert.ElementsMatch(t, []string{"c1", "c2"}, f.feed.processed)
	assert.Equal(t, []string{"2026-1"}, f.cache.periods)

	require.Len(t, f.generator.requests, 1)
	regen := f.generator.requests[0]
	assert.Equal(t, dto.StrategySequential, regen.Strategy)
	assert.ElementsMatch(t, []string{"g1", "g2"}, regen.GroupIDs)
	assert.True(t, strings.HasPrefix(regen.Version, "repair-"))

	// the backup carries the invalidated rows verbatim
	backup := f.backups.backups["backup-1"]
	var entries []models.AcademicSchedule
	require.NoError(t, json.Unmarshal(backup.Entries, &entries))
	assert.Len(t, entries, 2)
}

func TestRepairWithExplicitChangesSkipsFeed(t *testing.T) {
	f := newRepairFixture()
	f.feed.rows = []models.AvailabilityChange{
		{ID: "c1", TeacherID: "t1", Weekday: 5, TimeSlotID: "slot-4", WasAvail: true, NowAvail: false},
	}
	f.store.active = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-101", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
	}
	f.groups.byCode["SW-101"] = models.Group{ID: "g1", Code: "SW-101"}
	f.generator.result = &dto.GenerateResult{Success: true, Units: []dto.UnitResult{
		{GroupCodes: []string{"SW-101"}, Status: dto.UnitStatusOK},
	}}

	result, err := f.service(t, 1).Repair(context.Background(), dto.RepairRequest{
		TeacherID: "t1",
		Period:    "2026-1",
		Changes:   []dto.SlotRef{{Weekday: 1, TimeSlotID: "slot-1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Detected)
	assert.Empty(t, f.feed.processed)
}

func TestRepairWithoutAffectedRowsAcknowledgesFeed(t *testing.T) {
	f := newRepairFixture()
	f.feed.rows = []models.AvailabilityChange{
		{ID: "c1", TeacherID: "t1", Weekday: 1, TimeSlotID: "slot-1", WasAvail: true, NowAvail: false},
	}

	result, err := f.service(t, 1).Repair(context.Background(), dto.RepairRequest{TeacherID: "t1", Period: "2026-1"})
	require.NoError(t, err)

	assert.Zero(t, result.Detected)
	assert.Empty(t, result.BackupID)
	assert.Equal(t, []string{"c1"}, f.feed.processed)
	assert.Empty(t, f.generator.requests)
}

func TestRepairRunningTwiceDetectsNothingTheSecondTime(t *testing.T) {
	f := newRepairFixture()
	f.feed.rows = []models.AvailabilityChange{
		{ID: "c1", TeacherID: "t1", Weekday: 1, TimeSlotID: "slot-1", WasAvail: true, NowAvail: false},
	}
	f.store.active = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-101", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
	}
	f.groups.byCode["SW-101"] = models.Group{ID: "g1", Code: "SW-101"}
	f.generator.result = &dto.GenerateResult{Success: true, Generated: 1, Units: []dto.UnitResult{
		{GroupCodes: []string{"SW-101"}, Status: dto.UnitStatusOK},
	}}

	svc := f.service(t, 1)
	req := dto.RepairRequest{TeacherID: "t1", Period: "2026-1"}

	first, err := svc.Repair(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, first.Detected)
	require.Equal(t, "backup-1", first.BackupID)

	// the feed is acknowledged and the affected row soft-deleted, so a
	// second identical run has nothing left to repair
	second, err := svc.Repair(context.Background(), req)
	require.NoError(t, err)

	assert.Zero(t, second.Detected)
	assert.Empty(t, second.BackupID)
	assert.Equal(t, "no committed assignments affected", second.Message)
	assert.Equal(t, []string{"c1"}, f.feed.processed)
	assert.Len(t, f.generator.requests, 1)
}

func TestRepairKeepsBackupWhenRegenerationFails(t *testing.T) {
	f := newRepairFixture()
	f.store.active = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-101", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
	}
	f.groups.byCode["SW-101"] = models.Group{ID: "g1", Code: "SW-101"}
	f.generator.err = appErrors.ErrInfeasible

	result, err := f.service(t, 1).Repair(context.Background(), dto.RepairRequest{
		TeacherID: "t1",
		Period:    "2026-1",
		Changes:   []dto.SlotRef{{Weekday: 1, TimeSlotID: "slot-1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"SW-101"}, result.Unrepaired)
	assert.Contains(t, result.Message, "backup-1")
	require.Contains(t, f.backups.backups, "backup-1")
}

func TestRepairListsPartiallyUnrepairedGroups(t *testing.T) {
	f := newRepairFixture()
	f.store.active = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-101", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
		{ID: "a2", TeacherID: "t1", GroupCode: "SW-202", Weekday: 2, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
	}
	f.groups.byCode["SW-101"] = models.Group{ID: "g1", Code: "SW-101"}
	f.groups.byCode["SW-202"] = models.Group{ID: "g2", Code: "SW-202"}
	f.generator.result = &dto.GenerateResult{Success: false, Generated: 2, Units: []dto.UnitResult{
		{GroupCodes: []string{"SW-101"}, Status: dto.UnitStatusOK},
		{GroupCodes: []string{"SW-202"}, Status: dto.UnitStatusFailed, Error: "infeasible"},
	}}

	result, err := f.service(t, 1).Repair(context.Background(), dto.RepairRequest{
		TeacherID: "t1",
		Period:    "2026-1",
		Changes:   []dto.SlotRef{{Weekday: 1, TimeSlotID: "slot-1"}, {Weekday: 2, TimeSlotID: "slot-1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"SW-202"}, result.Unrepaired)
	assert.Contains(t, result.Message, "backup-1")
}

func TestRestoreReplaysBackup(t *testing.T) {
	f := newRepairFixture()
	entries := []models.AcademicSchedule{
		{ID: "old-1", TeacherID: "t1", SubjectID: "sub1", GroupCode: "SW-101", Weekday: 1, TimeSlotID: "slot-1", Period: "2026-1", Version: "gen-1", Active: false, CreatedBy: "system"},
		{ID: "old-2", TeacherID: "t1", SubjectID: "sub1", GroupCode: "SW-101", Weekday: 2, TimeSlotID: "slot-2", Period: "2026-1", Version: "gen-1", Active: false, CreatedBy: "system"},
	}
	payload, err := json.Marshal(entries)
	require.NoError(t, err)
	f.backups.backups = map[string]*models.ScheduleBackup{
		"backup-1": {ID: "backup-1", TeacherID: "t1", Period: "2026-1", Entries: payload},
	}
	// a later repair wrote one replacement row that must be superseded
	f.store.active = []models.AcademicSchedule{
		{ID: "new-1", TeacherID: "t2", GroupCode: "SW-101", Weekday: 3, TimeSlotID: "slot-1", Period: "2026-1", Active: true},
	}

	result, err := f.service(t, 1).Restore(context.Background(), dto.RestoreRequest{BackupID: "backup-1"})
	require.NoError(t, err)

	assert.Equal(t, "backup-1", result.BackupID)
	assert.Equal(t, 1, result.Deactivated)
	assert.Equal(t, 2, result.Restored)
	assert.Equal(t, []string{"SW-101"}, f.store.deactivatedGroups)

	require.Len(t, f.store.inserted, 2)
	for _, row := range f.store.inserted {
		assert.Empty(t, row.ID, "restored rows get fresh identities")
		assert.True(t, row.Active)
		assert.Equal(t, "gen-1", row.Version)
		assert.Equal(t, "t1", row.TeacherID)
	}
	assert.Equal(t, []string{"2026-1"}, f.cache.periods)
}

func TestRestoreRejectsUnknownBackup(t *testing.T) {
	f := newRepairFixture()

	_, err := f.service(t, 0).Restore(context.Background(), dto.RestoreRequest{BackupID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
