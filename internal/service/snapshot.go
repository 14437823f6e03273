package service

import (
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// SelectionReason explains why a teacher was chosen for a course plan.
type SelectionReason string

const (
	SelectionExplicitBinding  SelectionReason = "explicit_binding"
	SelectionCapacityFallback SelectionReason = "capacity_fallback"
	SelectionRosterFallback   SelectionReason = "roster_fallback"
)

// SlotCoord addresses one (weekday, time-slot) coordinate.
type SlotCoord struct {
	Weekday    int
	TimeSlotID string
}

// AvailabilityIndex holds explicit availability facts per teacher. A missing
// coordinate is unavailable; there is no implicit default to available.
type AvailabilityIndex map[string]map[SlotCoord]bool

// Available reports whether the teacher is explicitly available at the
// coordinate.
func (idx AvailabilityIndex) Available(teacherID string, weekday int, timeSlotID string) bool {
	facts, ok := idx[teacherID]
	if !ok {
		return false
	}
	return facts[SlotCoord{Weekday: weekday, TimeSlotID: timeSlotID}]
}

func (idx AvailabilityIndex) put(teacherID string, facts []models.TeacherAvailability) {
	coords, ok := idx[teacherID]
	if !ok {
		coords = make(map[SlotCoord]bool, len(facts))
		idx[teacherID] = coords
	}
	for _, fact := range facts {
		coords[SlotCoord{Weekday: fact.Weekday, TimeSlotID: fact.TimeSlotID}] = fact.Available
	}
}

// CoursePlan binds exactly one teacher to a subject inside a group, with the
// clamped weekly hour requirement the solver must satisfy.
type CoursePlan struct {
	Subject models.Subject
	Teacher models.Teacher
	Hours   int
	Reason  SelectionReason
}

// GroupPlan is one group with its resolved course plans.
type GroupPlan struct {
	Group   models.Group
	Courses []CoursePlan
}

// Snapshot is the immutable dataset for one generation pass. Existing is the
// only part the orchestrator refreshes between sequential units.
type Snapshot struct {
	Period       string
	Days         []int
	Groups       []GroupPlan
	Slots        map[models.Shift][]models.TimeSlot
	Availability AvailabilityIndex
	Existing     []models.AcademicSchedule
	Warnings     []dto.Diagnostic
}

// SlotsFor returns the ordered catalog for a shift.
func (s *Snapshot) SlotsFor(shift models.Shift) []models.TimeSlot {
	return s.Slots[shift]
}

// GroupByCode finds a loaded group plan by its code.
func (s *Snapshot) GroupByCode(code string) (GroupPlan, bool) {
	return lo.Find(s.Groups, func(g GroupPlan) bool { return g.Group.Code == code })
}

// TeacherIDs returns the distinct selected teachers across all group plans.
func (s *Snapshot) TeacherIDs() []string {
	ids := make([]string, 0)
	for _, group := range s.Groups {
		for _, course := range group.Courses {
			ids = append(ids, course.Teacher.ID)
		}
	}
	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids
}
