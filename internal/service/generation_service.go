package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/solver"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type snapshotSource interface {
	Load(ctx context.Context, req SnapshotRequest) (*Snapshot, error)
	RefreshCommitted(ctx context.Context, snap *Snapshot) error
}

type scheduleWriter interface {
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, schedules []models.AcademicSchedule) error
	DeactivateByGroupPeriod(ctx context.Context, exec sqlx.ExtContext, groupCode, period string) (int64, error)
}

type cacheInvalidator interface {
	InvalidatePeriod(ctx context.Context, period string) error
}

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type generationObserver interface {
	ObserveSolve(status string, duration time.Duration)
	AddGenerated(count int)
}

// UnitOrdering orders groups before sequential solving. The default solves
// the least-contended groups first so early commits steal as little teacher
// capacity as possible from the groups still waiting.
type UnitOrdering func(groups []GroupPlan) []GroupPlan

// OrderByFewestSharedTeachers ranks groups by how many of their teachers
// also serve other groups in the same pass, ascending, ties by group code.
func OrderByFewestSharedTeachers(groups []GroupPlan) []GroupPlan {
	usage := make(map[string]int)
	for _, plan := range groups {
		for _, teacherID := range planTeachers(plan) {
			usage[teacherID]++
		}
	}
	score := func(plan GroupPlan) int {
		return lo.CountBy(planTeachers(plan), func(id string) bool { return usage[id] > 1 })
	}
	ordered := make([]GroupPlan, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := score(ordered[i]), score(ordered[j])
		if si != sj {
			return si < sj
		}
		return ordered[i].Group.Code < ordered[j].Group.Code
	})
	return ordered
}

func planTeachers(plan GroupPlan) []string {
	return lo.Uniq(lo.Map(plan.Courses, func(c CoursePlan, _ int) string { return c.Teacher.ID }))
}

// GenerationConfig tunes one GenerationService instance.
type GenerationConfig struct {
	TimeBudget      time.Duration
	Workers         int
	DefaultStrategy string
	DefaultDays     []int
	DefaultActor    string
}

// GenerationService orchestrates timetable generation: snapshot load, unit
// planning per strategy, feasibility pre-checks, solver runs and transactional
// commits with supersession of previous versions.
type GenerationService struct {
	snapshots snapshotSource
	schedules scheduleWriter
	cache     cacheInvalidator
	db        txBeginner
	observer  generationObserver
	order     UnitOrdering
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       GenerationConfig
}

func NewGenerationService(
	snapshots snapshotSource,
	schedules scheduleWriter,
	cache cacheInvalidator,
	db txBeginner,
	observer generationObserver,
	cfg GenerationConfig,
	logger *zap.Logger,
) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = dto.StrategySequential
	}
	if len(cfg.DefaultDays) == 0 {
		cfg.DefaultDays = []int{1, 2, 3, 4, 5}
	}
	if cfg.DefaultActor == "" {
		cfg.DefaultActor = "system"
	}
	return &GenerationService{
		snapshots: snapshots,
		schedules: schedules,
		cache:     cache,
		db:        db,
		observer:  observer,
		order:     OrderByFewestSharedTeachers,
		validate:  validator.New(),
		cfg:       cfg,
		logger:    logger,
	}
}

// SetOrdering swaps the sequential unit ordering heuristic.
func (s *GenerationService) SetOrdering(order UnitOrdering) {
	if order != nil {
		s.order = order
	}
}

// Generate runs one full generation pass. Input and snapshot errors abort the
// pass; solve failures of individual units do not, they are reported in the
// per-unit results instead.
func (s *GenerationService) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if req.Strategy == "" {
		req.Strategy = s.cfg.DefaultStrategy
	}
	if len(req.Days) == 0 {
		req.Days = s.cfg.DefaultDays
	}
	if req.Actor == "" {
		req.Actor = s.cfg.DefaultActor
	}
	if req.Version == "" {
		req.Version = "gen-" + time.Now().UTC().Format("20060102T150405Z")
	}

	snap, err := s.snapshots.Load(ctx, SnapshotRequest{
		Period:    req.Period,
		Days:      req.Days,
		GroupIDs:  req.GroupIDs,
		ProgramID: req.ProgramID,
		TermLevel: req.TermLevel,
	})
	if err != nil {
		return nil, err
	}

	units := s.planUnits(snap, req.Strategy)
	result := &dto.GenerateResult{
		Strategy: req.Strategy,
		Period:   req.Period,
		Version:  req.Version,
		Warnings: snap.Warnings,
	}

	for i, unit := range units {
		if i > 0 {
			if err := s.refresh(ctx, snap); err != nil {
				return nil, err
			}
		}
		unitResult := s.runUnit(ctx, snap, unit, req)
		result.Units = append(result.Units, unitResult)
		if unitResult.Status == dto.UnitStatusOK {
			result.Generated += unitResult.Records
		} else {
			result.Failed++
		}
	}

	result.Success = result.Failed == 0
	if result.Success {
		result.Message = fmt.Sprintf("generated %d assignments across %d units", result.Generated, len(result.Units))
	} else {
		result.Message = fmt.Sprintf("%d of %d units failed", result.Failed, len(result.Units))
	}
	s.logger.Info("generation pass finished",
		zap.String("strategy", req.Strategy),
		zap.String("period", req.Period),
		zap.Int("generated", result.Generated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// planUnits splits the snapshot into solve units: everything at once for
// single-pass, one batch per shift for staged, one group per unit ordered by
// the contention heuristic for sequential.
func (s *GenerationService) planUnits(snap *Snapshot, strategy string) [][]GroupPlan {
	switch strategy {
	case dto.StrategySinglePass:
		return [][]GroupPlan{snap.Groups}
	case dto.StrategyStagedShift:
		units := make([][]GroupPlan, 0, 2)
		for _, shift := range []models.Shift{models.ShiftMorning, models.ShiftEvening} {
			batch := lo.Filter(snap.Groups, func(g GroupPlan, _ int) bool { return g.Group.Shift == shift })
			if len(batch) > 0 {
				units = append(units, batch)
			}
		}
		return units
	default:
		ordered := s.order(snap.Groups)
		units := make([][]GroupPlan, 0, len(ordered))
		for _, plan := range ordered {
			units = append(units, []GroupPlan{plan})
		}
		return units
	}
}

// refresh reloads the snapshot's committed view so the next unit sees the
// rows the previous unit wrote. The cache entry was already dropped right
// after that commit, so the reload goes through to the database.
func (s *GenerationService) refresh(ctx context.Context, snap *Snapshot) error {
	return s.snapshots.RefreshCommitted(ctx, snap)
}

// invalidateCache drops the period's cached schedule view after a commit.
// Every write path must do this, otherwise a later snapshot load within the
// cache TTL would miss the fresh rows and re-book their coordinates.
func (s *GenerationService) invalidateCache(ctx context.Context, period string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePeriod(ctx, period); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("period", period), zap.Error(err))
	}
}

func (s *GenerationService) runUnit(ctx context.Context, snap *Snapshot, unit []GroupPlan, req dto.GenerateRequest) dto.UnitResult {
	unitResult := dto.UnitResult{
		GroupIDs:   lo.Map(unit, func(g GroupPlan, _ int) string { return g.Group.ID }),
		GroupCodes: lo.Map(unit, func(g GroupPlan, _ int) string { return g.Group.Code }),
	}

	report := CheckFeasibility(snap, unit)
	unitResult.Diagnostics = append(report.Blocking, report.Warnings...)
	if !report.Feasible() {
		unitResult.Status = dto.UnitStatusFailed
		unitResult.Error = "feasibility pre-check failed"
		return unitResult
	}

	model, meta := buildUnitModel(snap, unit)
	solveCtx, cancel := context.WithTimeout(ctx, s.cfg.TimeBudget)
	sol := solver.New(s.cfg.Workers).Solve(solveCtx, model)
	cancel()
	unitResult.SolverState = sol.Status.String()
	if s.observer != nil {
		s.observer.ObserveSolve(sol.Status.String(), sol.Stats.Duration)
	}
	s.logger.Debug("unit solved",
		zap.Strings("groups", unitResult.GroupCodes),
		zap.String("status", sol.Status.String()),
		zap.Int64("nodes", sol.Stats.Nodes),
		zap.Duration("duration", sol.Stats.Duration),
	)

	if !sol.Status.Succeeded() {
		unitResult.Status = dto.UnitStatusFailed
		if sol.Status == solver.StatusInfeasible {
			unitResult.Error = appErrors.ErrInfeasible.Message
		} else {
			unitResult.Error = appErrors.ErrSolverTimeout.Message
		}
		return unitResult
	}

	rows := interpretSolution(sol, meta, req.Period, req.Version, req.Actor)
	if err := s.commitUnit(ctx, unitResult.GroupCodes, req.Period, rows); err != nil {
		unitResult.Status = dto.UnitStatusFailed
		unitResult.Error = err.Error()
		return unitResult
	}
	s.invalidateCache(ctx, req.Period)

	unitResult.Status = dto.UnitStatusOK
	unitResult.Records = len(rows)
	if s.observer != nil {
		s.observer.AddGenerated(len(rows))
	}
	return unitResult
}

// commitUnit supersedes the unit groups' previous assignments and inserts
// the fresh ones inside a single transaction.
func (s *GenerationService) commitUnit(ctx context.Context, groupCodes []string, period string, rows []models.AcademicSchedule) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "beginning commit transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, code := range groupCodes {
		if _, err := s.schedules.DeactivateByGroupPeriod(ctx, tx, code, period); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "superseding previous assignments")
		}
	}
	if err := s.schedules.BulkCreateWithTx(ctx, tx, rows); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "inserting generated assignments")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "committing generated assignments")
	}
	return nil
}

func interpretSolution(sol solver.Solution, meta []varMeta, period, version, actor string) []models.AcademicSchedule {
	rows := make([]models.AcademicSchedule, 0)
	for i, selected := range sol.Values {
		if !selected {
			continue
		}
		rows = append(rows, models.AcademicSchedule{
			TeacherID:  meta[i].TeacherID,
			SubjectID:  meta[i].SubjectID,
			TimeSlotID: meta[i].TimeSlotID,
			Weekday:    meta[i].Weekday,
			GroupCode:  meta[i].GroupCode,
			Period:     period,
			Version:    version,
			Active:     true,
			CreatedBy:  actor,
		})
	}
	return rows
}
