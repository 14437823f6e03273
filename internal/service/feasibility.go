package service

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

// CheckFeasibility runs the cheap necessary-condition screen over one solve
// unit before any solver work. Two bounds are checked per group: total
// required hours against the raw grid size, and against the number of grid
// coordinates at least one of the group's teachers can actually serve. A
// blocking diagnostic names the group, the deficit and the dead coordinates,
// which is far more actionable than a bare infeasible verdict after a full
// search.
func CheckFeasibility(snap *Snapshot, unit []GroupPlan) dto.DiagnosticReport {
	var report dto.DiagnosticReport
	for _, plan := range unit {
		required := lo.SumBy(plan.Courses, func(c CoursePlan) int { return c.Hours })
		slots := snap.SlotsFor(plan.Group.Shift)
		grid := len(slots) * len(snap.Days)

		if required > grid {
			report.Blocking = append(report.Blocking, dto.Diagnostic{
				Code:      appErrors.ErrInfeasible.Code,
				Message:   fmt.Sprintf("group %s requires %d weekly hours but the grid only has %d coordinates", plan.Group.Code, required, grid),
				GroupCode: plan.Group.Code,
			})
			continue
		}

		covered := 0
		var dead []string
		for _, slot := range slots {
			deadDays := make([]int, 0, len(snap.Days))
			for _, day := range snap.Days {
				served := lo.SomeBy(plan.Courses, func(c CoursePlan) bool {
					return snap.Availability.Available(c.Teacher.ID, day, slot.ID)
				})
				if served {
					covered++
				} else {
					deadDays = append(deadDays, day)
				}
			}
			switch {
			case len(deadDays) == len(snap.Days):
				dead = append(dead, fmt.Sprintf("%s on all days", slot.Name))
			case len(deadDays) > 0:
				dead = append(dead, fmt.Sprintf("%s on days %s", slot.Name, joinInts(deadDays)))
			}
		}
		if required > covered {
			diag := dto.Diagnostic{
				Code:      appErrors.ErrInfeasible.Code,
				Message:   fmt.Sprintf("group %s requires %d weekly hours but its teachers only cover %d grid coordinates", plan.Group.Code, required, covered),
				GroupCode: plan.Group.Code,
			}
			if len(dead) > 0 {
				diag.Message += "; uncovered: " + strings.Join(dead, ", ")
			}
			report.Blocking = append(report.Blocking, diag)
		}
	}
	return report
}

func joinInts(values []int) string {
	parts := lo.Map(values, func(v int, _ int) string { return fmt.Sprintf("%d", v) })
	return strings.Join(parts, ",")
}
