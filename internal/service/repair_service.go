package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type changeFeed interface {
	ListUnprocessedByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityChange, error)
	MarkProcessed(ctx context.Context, exec sqlx.ExtContext, ids []string) error
}

type repairScheduleStore interface {
	FindActiveAt(ctx context.Context, teacherID string, weekday int, timeSlotID, period string) ([]models.AcademicSchedule, error)
	DeactivateByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
	DeactivateByGroupPeriod(ctx context.Context, exec sqlx.ExtContext, groupCode, period string) (int64, error)
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, schedules []models.AcademicSchedule) error
}

type backupStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, backup *models.ScheduleBackup, entries []models.AcademicSchedule) error
	FindByID(ctx context.Context, id string) (*models.ScheduleBackup, error)
}

type groupResolver interface {
	FindByCode(ctx context.Context, code string) (*models.Group, error)
}

type generationRunner interface {
	Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResult, error)
}

// RepairService reacts to availability loss: it detects the committed
// assignments a teacher can no longer serve, backs them up, invalidates them
// and re-runs generation for just the affected groups. Everything written
// before the re-run survives even when the re-run cannot place all hours.
type RepairService struct {
	changes   changeFeed
	schedules repairScheduleStore
	backups   backupStore
	groups    groupResolver
	generator generationRunner
	cache     cacheInvalidator
	db        txBeginner
	validate  *validator.Validate
	logger    *zap.Logger
	actor     string
}

func NewRepairService(
	changes changeFeed,
	schedules repairScheduleStore,
	backups backupStore,
	groups groupResolver,
	generator generationRunner,
	cache cacheInvalidator,
	db txBeginner,
	defaultActor string,
	logger *zap.Logger,
) *RepairService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultActor == "" {
		defaultActor = "system"
	}
	return &RepairService{
		changes:   changes,
		schedules: schedules,
		backups:   backups,
		groups:    groups,
		generator: generator,
		cache:     cache,
		db:        db,
		validate:  validator.New(),
		logger:    logger,
		actor:     defaultActor,
	}
}

// Repair runs one repair pass for a teacher. When the request carries no
// explicit slot changes the teacher's unprocessed availability-change feed is
// consumed instead; either way every consumed feed row is acknowledged in the
// same transaction that invalidates the affected assignments.
func (s *RepairService) Repair(ctx context.Context, req dto.RepairRequest) (*dto.RepairResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if req.Actor == "" {
		req.Actor = s.actor
	}

	lost, feedIDs, err := s.resolveLostSlots(ctx, req)
	if err != nil {
		return nil, err
	}

	affected := make([]models.AcademicSchedule, 0)
	seen := make(map[string]bool)
	for _, coord := range lost {
		rows, err := s.schedules.FindActiveAt(ctx, req.TeacherID, coord.Weekday, coord.TimeSlotID, req.Period)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "detecting affected assignments")
		}
		for _, row := range rows {
			if !seen[row.ID] {
				seen[row.ID] = true
				affected = append(affected, row)
			}
		}
	}

	if len(affected) == 0 {
		if err := s.acknowledge(ctx, feedIDs); err != nil {
			return nil, err
		}
		return &dto.RepairResult{Message: "no committed assignments affected"}, nil
	}

	backup := &models.ScheduleBackup{
		Name:      fmt.Sprintf("repair-%s-%s", req.TeacherID, time.Now().UTC().Format("20060102T150405Z")),
		TeacherID: req.TeacherID,
		Period:    req.Period,
	}
	invalidated, err := s.backupAndInvalidate(ctx, backup, affected, feedIDs)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidatePeriod(ctx, req.Period); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("period", req.Period), zap.Error(err))
		}
	}

	result := &dto.RepairResult{
		Detected:    len(affected),
		BackupID:    backup.ID,
		Invalidated: int(invalidated),
	}

	groupCodes := lo.Uniq(lo.Map(affected, func(row models.AcademicSchedule, _ int) string { return row.GroupCode }))
	sort.Strings(groupCodes)
	groupIDs := make([]string, 0, len(groupCodes))
	for _, code := range groupCodes {
		group, err := s.groups.FindByCode(ctx, code)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolving affected group "+code)
		}
		groupIDs = append(groupIDs, group.ID)
	}

	regenerated, err := s.generator.Generate(ctx, dto.GenerateRequest{
		Strategy: dto.StrategySequential,
		GroupIDs: groupIDs,
		Period:   req.Period,
		Version:  "repair-" + time.Now().UTC().Format("20060102T150405Z"),
		Actor:    req.Actor,
	})
	if err != nil {
		result.Unrepaired = groupCodes
		result.Message = fmt.Sprintf("regeneration failed (%s); backup %s can be restored", appErrors.FromError(err).Message, backup.ID)
		s.logger.Warn("repair regeneration failed", zap.String("teacher", req.TeacherID), zap.Error(err))
		return result, nil
	}

	result.Regenerated = regenerated
	for _, unit := range regenerated.Units {
		if unit.Status != dto.UnitStatusOK {
			result.Unrepaired = append(result.Unrepaired, unit.GroupCodes...)
		}
	}
	if len(result.Unrepaired) == 0 {
		result.Message = fmt.Sprintf("repaired %d assignments across %d groups", regenerated.Generated, len(groupCodes))
	} else {
		result.Message = fmt.Sprintf("partially repaired: %d groups could not be rescheduled; backup %s can be restored", len(result.Unrepaired), backup.ID)
	}
	return result, nil
}

// resolveLostSlots returns the coordinates the teacher can no longer serve
// and the feed row ids consumed to find them.
func (s *RepairService) resolveLostSlots(ctx context.Context, req dto.RepairRequest) ([]SlotCoord, []string, error) {
	if len(req.Changes) > 0 {
		coords := lo.Map(req.Changes, func(ref dto.SlotRef, _ int) SlotCoord {
			return SlotCoord{Weekday: ref.Weekday, TimeSlotID: ref.TimeSlotID}
		})
		return coords, nil, nil
	}

	feed, err := s.changes.ListUnprocessedByTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading availability change feed")
	}
	coords := make([]SlotCoord, 0, len(feed))
	ids := make([]string, 0, len(feed))
	for _, change := range feed {
		ids = append(ids, change.ID)
		if change.WasAvail && !change.NowAvail {
			coords = append(coords, SlotCoord{Weekday: change.Weekday, TimeSlotID: change.TimeSlotID})
		}
	}
	return coords, ids, nil
}

// backupAndInvalidate writes the backup, soft-deletes the affected rows and
// acknowledges the consumed feed rows in one transaction.
func (s *RepairService) backupAndInvalidate(ctx context.Context, backup *models.ScheduleBackup, affected []models.AcademicSchedule, feedIDs []string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "beginning repair transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := s.backups.Create(ctx, tx, backup, affected); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "writing schedule backup")
	}
	ids := lo.Map(affected, func(row models.AcademicSchedule, _ int) string { return row.ID })
	invalidated, err := s.schedules.DeactivateByIDs(ctx, tx, ids)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalidating affected assignments")
	}
	if len(feedIDs) > 0 {
		if err := s.changes.MarkProcessed(ctx, tx, feedIDs); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "acknowledging change feed")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "committing repair transaction")
	}
	return invalidated, nil
}

func (s *RepairService) acknowledge(ctx context.Context, feedIDs []string) error {
	if len(feedIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "beginning acknowledge transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.changes.MarkProcessed(ctx, tx, feedIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "acknowledging change feed")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "committing acknowledge transaction")
	}
	return nil
}

// Restore replays a backup: the affected groups' current active rows are
// superseded and the backed-up rows are reinserted with fresh identities but
// otherwise unchanged content.
func (s *RepairService) Restore(ctx context.Context, req dto.RestoreRequest) (*dto.RestoreResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	backup, err := s.backups.FindByID(ctx, req.BackupID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "backup not found: "+req.BackupID)
	}
	entries, err := backup.DecodeEntries()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decoding backup entries")
	}
	if len(entries) == 0 {
		return &dto.RestoreResult{BackupID: backup.ID}, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "beginning restore transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var deactivated int64
	groupCodes := lo.Uniq(lo.Map(entries, func(row models.AcademicSchedule, _ int) string { return row.GroupCode }))
	for _, code := range groupCodes {
		n, err := s.schedules.DeactivateByGroupPeriod(ctx, tx, code, backup.Period)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "superseding current assignments")
		}
		deactivated += n
	}

	restored := make([]models.AcademicSchedule, len(entries))
	copy(restored, entries)
	for i := range restored {
		restored[i].ID = ""
		restored[i].CreatedAt = time.Time{}
		restored[i].Active = true
	}
	if err := s.schedules.BulkCreateWithTx(ctx, tx, restored); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "reinserting backup entries")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "committing restore transaction")
	}

	if s.cache != nil {
		if err := s.cache.InvalidatePeriod(ctx, backup.Period); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("period", backup.Period), zap.Error(err))
		}
	}
	s.logger.Info("backup restored",
		zap.String("backup_id", backup.ID),
		zap.Int64("deactivated", deactivated),
		zap.Int("restored", len(restored)),
	)
	return &dto.RestoreResult{
		BackupID:    backup.ID,
		Deactivated: int(deactivated),
		Restored:    len(restored),
	}, nil
}
