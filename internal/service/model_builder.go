package service

import (
	"fmt"

	"github.com/noah-isme/uni-timetable-api/internal/solver"
)

// Hard daily caps and objective weights. Edge slots are discouraged so free
// periods drift to the start and end of the day; repeating the same slot
// column across days for one subject costs more than sitting on an edge.
const (
	maxSubjectHoursPerDay = 3
	maxTeacherHoursPerDay = 8
	edgeSlotCost          = 2
	repeatSlotWeight      = 3
)

// varMeta maps one solver variable back to its scheduling meaning so a true
// assignment can be turned into a committed row.
type varMeta struct {
	GroupCode  string
	TeacherID  string
	SubjectID  string
	TimeSlotID string
	Weekday    int
}

type teacherDay struct {
	teacherID string
	weekday   int
}

type teacherCoord struct {
	teacherID string
	coord     SlotCoord
}

type groupCoord struct {
	groupCode string
	coord     SlotCoord
}

// buildUnitModel encodes one solve unit as a boolean model. One variable per
// (group, course, weekday, slot); committed assignments outside the unit are
// honoured by fixing the teacher's occupied coordinates to zero and by
// tightening the daily and weekly teacher caps.
func buildUnitModel(snap *Snapshot, unit []GroupPlan) (*solver.Model, []varMeta) {
	m := solver.NewModel()
	meta := make([]varMeta, 0)

	unitCodes := make(map[string]bool, len(unit))
	for _, plan := range unit {
		unitCodes[plan.Group.Code] = true
	}

	// Committed load of teachers outside the unit, per coordinate, per day
	// and in total. Rows belonging to unit groups are about to be superseded
	// and must not constrain the fresh solve.
	occupied := make(map[teacherCoord]bool)
	committedDaily := make(map[teacherDay]int)
	committedWeekly := make(map[string]int)
	for _, row := range snap.Existing {
		if unitCodes[row.GroupCode] {
			continue
		}
		coord := SlotCoord{Weekday: row.Weekday, TimeSlotID: row.TimeSlotID}
		occupied[teacherCoord{teacherID: row.TeacherID, coord: coord}] = true
		committedDaily[teacherDay{teacherID: row.TeacherID, weekday: row.Weekday}]++
		committedWeekly[row.TeacherID]++
	}

	byTeacherCoord := make(map[teacherCoord][]int)
	byGroupCoord := make(map[groupCoord][]int)
	byTeacherDay := make(map[teacherDay][]int)
	byTeacher := make(map[string][]int)
	weeklyCeiling := make(map[string]int)

	for _, plan := range unit {
		slots := snap.SlotsFor(plan.Group.Shift)
		if len(slots) == 0 {
			continue
		}
		minOrder, maxOrder := slots[0].OrderIndex, slots[0].OrderIndex
		for _, slot := range slots[1:] {
			if slot.OrderIndex < minOrder {
				minOrder = slot.OrderIndex
			}
			if slot.OrderIndex > maxOrder {
				maxOrder = slot.OrderIndex
			}
		}

		for _, course := range plan.Courses {
			courseVars := make([]int, 0, len(slots)*len(snap.Days))
			bySubjectDay := make(map[int][]int)
			bySlotColumn := make(map[string][]int)

			for _, day := range snap.Days {
				for _, slot := range slots {
					v := m.NewBool(fmt.Sprintf("%s/%s/d%d/%s", plan.Group.Code, course.Subject.Code, day, slot.ID))
					meta = append(meta, varMeta{
						GroupCode:  plan.Group.Code,
						TeacherID:  course.Teacher.ID,
						SubjectID:  course.Subject.ID,
						TimeSlotID: slot.ID,
						Weekday:    day,
					})

					coord := SlotCoord{Weekday: day, TimeSlotID: slot.ID}
					tc := teacherCoord{teacherID: course.Teacher.ID, coord: coord}
					switch {
					case !snap.Availability.Available(course.Teacher.ID, day, slot.ID):
						m.Fix(v, false)
					case occupied[tc]:
						m.Fix(v, false)
					}
					if slot.OrderIndex == minOrder || slot.OrderIndex == maxOrder {
						m.SetCost(v, edgeSlotCost)
					}

					courseVars = append(courseVars, v)
					bySubjectDay[day] = append(bySubjectDay[day], v)
					bySlotColumn[slot.ID] = append(bySlotColumn[slot.ID], v)
					byTeacherCoord[tc] = append(byTeacherCoord[tc], v)
					byGroupCoord[groupCoord{groupCode: plan.Group.Code, coord: coord}] = append(byGroupCoord[groupCoord{groupCode: plan.Group.Code, coord: coord}], v)
					byTeacherDay[teacherDay{teacherID: course.Teacher.ID, weekday: day}] = append(byTeacherDay[teacherDay{teacherID: course.Teacher.ID, weekday: day}], v)
					byTeacher[course.Teacher.ID] = append(byTeacher[course.Teacher.ID], v)
				}
			}

			m.AddExactly(courseVars, course.Hours)
			for _, vars := range bySubjectDay {
				m.AddAtMost(vars, maxSubjectHoursPerDay)
			}
			for _, column := range bySlotColumn {
				if len(column) > 1 {
					m.AddRepeatPenalty(column, repeatSlotWeight)
				}
			}
			weeklyCeiling[course.Teacher.ID] = course.Teacher.Category.WeeklyHourCeiling()
		}
	}

	for _, vars := range byTeacherCoord {
		if len(vars) > 1 {
			m.AddAtMost(vars, 1)
		}
	}
	for _, vars := range byGroupCoord {
		if len(vars) > 1 {
			m.AddAtMost(vars, 1)
		}
	}
	for key, vars := range byTeacherDay {
		limit := maxTeacherHoursPerDay - committedDaily[key]
		if limit < 0 {
			limit = 0
		}
		if limit < len(vars) {
			m.AddAtMost(vars, limit)
		}
	}
	for teacherID, vars := range byTeacher {
		limit := weeklyCeiling[teacherID] - committedWeekly[teacherID]
		if limit < 0 {
			limit = 0
		}
		if limit < len(vars) {
			m.AddAtMost(vars, limit)
		}
	}

	return m, meta
}
