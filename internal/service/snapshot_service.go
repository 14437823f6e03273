package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

// Weekly hour requirements outside [minWeeklyHours, maxWeeklyHours] are
// normalised before solving instead of failing the whole pass.
const (
	minWeeklyHours     = 1
	defaultWeeklyHours = 3
	maxWeeklyHours     = 15
)

type groupReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.Group, error)
	ListByProgramTerm(ctx context.Context, programID string, termLevel int) ([]models.Group, error)
}

type subjectReader interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Subject, error)
}

type bindingReader interface {
	FindBinding(ctx context.Context, groupID, subjectID string) (*models.Teacher, error)
	ListRosterBySubject(ctx context.Context, subjectID string) ([]models.Teacher, error)
}

type availabilityReader interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error)
}

type timeSlotReader interface {
	ListByShift(ctx context.Context, shift models.Shift) ([]models.TimeSlot, error)
}

type committedReader interface {
	ListActiveByPeriod(ctx context.Context, period string) ([]models.AcademicSchedule, error)
}

// SnapshotRequest scopes one snapshot load. GroupIDs wins over the
// program + term-level pair when both are set.
type SnapshotRequest struct {
	Period    string
	Days      []int
	GroupIDs  []string
	ProgramID string
	TermLevel int
}

// SnapshotService materialises the full dataset one generation pass works
// on: groups, their course plans with a selected teacher each, slot catalogs,
// availability facts and the committed assignments of the period.
type SnapshotService struct {
	groups       groupReader
	subjects     subjectReader
	teachers     bindingReader
	availability availabilityReader
	slots        timeSlotReader
	committed    committedReader
	logger       *zap.Logger
}

func NewSnapshotService(
	groups groupReader,
	subjects subjectReader,
	teachers bindingReader,
	availability availabilityReader,
	slots timeSlotReader,
	committed committedReader,
	logger *zap.Logger,
) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{
		groups:       groups,
		subjects:     subjects,
		teachers:     teachers,
		availability: availability,
		slots:        slots,
		committed:    committed,
		logger:       logger,
	}
}

// Load builds the snapshot for the requested scope. Selection failures are
// collected across every course plan of every group and raised together, so
// one call surfaces the complete offender list.
func (s *SnapshotService) Load(ctx context.Context, req SnapshotRequest) (*Snapshot, error) {
	groups, err := s.resolveGroups(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := s.committed.ListActiveByPeriod(ctx, req.Period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading committed assignments")
	}

	snap := &Snapshot{
		Period:       req.Period,
		Days:         req.Days,
		Slots:        make(map[models.Shift][]models.TimeSlot),
		Availability: make(AvailabilityIndex),
		Existing:     existing,
	}
	for _, shift := range lo.Uniq(lo.Map(groups, func(g models.Group, _ int) models.Shift { return g.Shift })) {
		catalog, err := s.slots.ListByShift(ctx, shift)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading time slots")
		}
		snap.Slots[shift] = catalog
	}

	var (
		emptyGroups  []string
		unservedMsgs []string
	)
	for _, group := range groups {
		subjects, err := s.subjects.ListByGroup(ctx, group.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading group subjects")
		}
		if len(subjects) == 0 {
			emptyGroups = append(emptyGroups, group.Code)
			continue
		}

		plan := GroupPlan{Group: group}
		for _, subject := range subjects {
			hours := s.clampHours(snap, group.Code, subject)
			course, diag, err := s.selectTeacher(ctx, snap, group, subject, hours)
			if err != nil {
				return nil, err
			}
			if diag != nil {
				unservedMsgs = append(unservedMsgs, diag.Message)
				snap.Warnings = append(snap.Warnings, *diag)
				continue
			}
			plan.Courses = append(plan.Courses, course)
		}
		snap.Groups = append(snap.Groups, plan)
	}

	if len(emptyGroups) > 0 {
		sort.Strings(emptyGroups)
		return nil, appErrors.Clone(appErrors.ErrNoSubjectsAssigned,
			fmt.Sprintf("groups without subjects: %s", strings.Join(emptyGroups, ", ")))
	}
	if len(unservedMsgs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrNoTeacherAvailable, strings.Join(unservedMsgs, "; "))
	}
	return snap, nil
}

// RefreshCommitted reloads the committed assignments of the snapshot's
// period. The sequential orchestrator calls this after every unit commit so
// the next unit's exclusivity constraints see the fresh rows.
func (s *SnapshotService) RefreshCommitted(ctx context.Context, snap *Snapshot) error {
	existing, err := s.committed.ListActiveByPeriod(ctx, snap.Period)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "refreshing committed assignments")
	}
	snap.Existing = existing
	return nil
}

func (s *SnapshotService) resolveGroups(ctx context.Context, req SnapshotRequest) ([]models.Group, error) {
	var (
		groups []models.Group
		err    error
	)
	if len(req.GroupIDs) > 0 {
		groups, err = s.groups.ListByIDs(ctx, req.GroupIDs)
	} else {
		groups, err = s.groups.ListByProgramTerm(ctx, req.ProgramID, req.TermLevel)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading groups")
	}
	if len(req.GroupIDs) > 0 && len(groups) < len(req.GroupIDs) {
		found := make(map[string]bool, len(groups))
		for _, g := range groups {
			found[g.ID] = true
		}
		missing := lo.Filter(req.GroupIDs, func(id string, _ int) bool { return !found[id] })
		sort.Strings(missing)
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unknown or inactive group ids: %s", strings.Join(missing, ", ")))
	}
	groups = lo.Filter(groups, func(g models.Group, _ int) bool { return g.Active })
	if len(groups) == 0 {
		return nil, appErrors.ErrNoGroupsFound
	}
	return groups, nil
}

func (s *SnapshotService) clampHours(snap *Snapshot, groupCode string, subject models.Subject) int {
	hours := subject.WeeklyHours
	switch {
	case hours < minWeeklyHours:
		snap.Warnings = append(snap.Warnings, dto.Diagnostic{
			Code:      "HOURS_DEFAULTED",
			Message:   fmt.Sprintf("subject %s in group %s has weekly hours %d, defaulting to %d", subject.Code, groupCode, hours, defaultWeeklyHours),
			GroupCode: groupCode,
			SubjectID: subject.ID,
		})
		return defaultWeeklyHours
	case hours > maxWeeklyHours:
		snap.Warnings = append(snap.Warnings, dto.Diagnostic{
			Code:      "HOURS_CLAMPED",
			Message:   fmt.Sprintf("subject %s in group %s has weekly hours %d, clamping to %d", subject.Code, groupCode, hours, maxWeeklyHours),
			GroupCode: groupCode,
			SubjectID: subject.ID,
		})
		return maxWeeklyHours
	default:
		return hours
	}
}

// selectTeacher applies the selection policy for one course plan: the
// explicit binding when it has enough remaining capacity, the binding with a
// shortfall warning when it has any capacity at all, otherwise the roster
// ranked by remaining capacity. Returning a diagnostic means nobody can
// serve the course.
func (s *SnapshotService) selectTeacher(ctx context.Context, snap *Snapshot, group models.Group, subject models.Subject, hours int) (CoursePlan, *dto.Diagnostic, error) {
	bound, err := s.teachers.FindBinding(ctx, group.ID, subject.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return CoursePlan{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading teacher binding")
	}

	if bound != nil && bound.Active {
		capacity, err := s.remainingCapacity(ctx, snap, *bound, group)
		if err != nil {
			return CoursePlan{}, nil, err
		}
		if capacity >= hours {
			return CoursePlan{Subject: subject, Teacher: *bound, Hours: hours, Reason: SelectionExplicitBinding}, nil, nil
		}
		if capacity > 0 {
			snap.Warnings = append(snap.Warnings, dto.Diagnostic{
				Code:      "CAPACITY_SHORTFALL",
				Message:   fmt.Sprintf("teacher %s keeps %s in group %s with capacity %d below the required %d hours", bound.Code, subject.Code, group.Code, capacity, hours),
				GroupCode: group.Code,
				SubjectID: subject.ID,
			})
			return CoursePlan{Subject: subject, Teacher: *bound, Hours: hours, Reason: SelectionCapacityFallback}, nil, nil
		}
	}

	roster, err := s.teachers.ListRosterBySubject(ctx, subject.ID)
	if err != nil {
		return CoursePlan{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading subject roster")
	}
	type candidate struct {
		teacher  models.Teacher
		capacity int
	}
	candidates := make([]candidate, 0, len(roster))
	for _, teacher := range roster {
		if !teacher.Active {
			continue
		}
		if bound != nil && teacher.ID == bound.ID {
			continue
		}
		capacity, err := s.remainingCapacity(ctx, snap, teacher, group)
		if err != nil {
			return CoursePlan{}, nil, err
		}
		if capacity > 0 {
			candidates = append(candidates, candidate{teacher: teacher, capacity: capacity})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].capacity != candidates[j].capacity {
			return candidates[i].capacity > candidates[j].capacity
		}
		return candidates[i].teacher.Code < candidates[j].teacher.Code
	})
	for _, c := range candidates {
		if c.capacity >= hours {
			return CoursePlan{Subject: subject, Teacher: c.teacher, Hours: hours, Reason: SelectionRosterFallback}, nil, nil
		}
	}
	if len(candidates) > 0 {
		best := candidates[0]
		snap.Warnings = append(snap.Warnings, dto.Diagnostic{
			Code:      "CAPACITY_SHORTFALL",
			Message:   fmt.Sprintf("teacher %s takes %s in group %s with capacity %d below the required %d hours", best.teacher.Code, subject.Code, group.Code, best.capacity, hours),
			GroupCode: group.Code,
			SubjectID: subject.ID,
		})
		return CoursePlan{Subject: subject, Teacher: best.teacher, Hours: hours, Reason: SelectionRosterFallback}, nil, nil
	}

	return CoursePlan{}, &dto.Diagnostic{
		Code:      appErrors.ErrNoTeacherAvailable.Code,
		Message:   fmt.Sprintf("no teacher with usable capacity for subject %s in group %s", subject.Code, group.Code),
		GroupCode: group.Code,
		SubjectID: subject.ID,
	}, nil
}

// remainingCapacity counts the teacher's available (weekday, slot)
// coordinates inside the group's shift and subtracts the committed hours the
// teacher already holds in other groups of the period.
func (s *SnapshotService) remainingCapacity(ctx context.Context, snap *Snapshot, teacher models.Teacher, group models.Group) (int, error) {
	if _, loaded := snap.Availability[teacher.ID]; !loaded {
		facts, err := s.availability.ListByTeacher(ctx, teacher.ID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loading teacher availability")
		}
		snap.Availability.put(teacher.ID, facts)
	}

	open := 0
	for _, day := range snap.Days {
		for _, slot := range snap.SlotsFor(group.Shift) {
			if snap.Availability.Available(teacher.ID, day, slot.ID) {
				open++
			}
		}
	}
	consumed := lo.CountBy(snap.Existing, func(row models.AcademicSchedule) bool {
		return row.TeacherID == teacher.ID && row.GroupCode != group.Code
	})
	return open - consumed, nil
}
