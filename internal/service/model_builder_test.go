package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/solver"
)

func solveUnit(t *testing.T, snap *Snapshot, unit []GroupPlan) (solver.Solution, []varMeta) {
	t.Helper()
	model, meta := buildUnitModel(snap, unit)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sol := solver.New(2).Solve(ctx, model)
	return sol, meta
}

func selectedRows(sol solver.Solution, meta []varMeta) []varMeta {
	var rows []varMeta
	for i, v := range sol.Values {
		if v {
			rows = append(rows, meta[i])
		}
	}
	return rows
}

func TestBuildUnitModelDeclaresOneVarPerCoordinate(t *testing.T) {
	snap := testSnapshot([]int{1, 2, 3}, 4)
	addGroup(snap, "SW-101", course("MATH", "t1", 4), course("PHYS", "t2", 3))
	openEverywhere(snap, "t1")
	openEverywhere(snap, "t2")

	model, meta := buildUnitModel(snap, snap.Groups)
	// 2 courses x 3 days x 4 slots
	assert.Equal(t, 24, model.Len())
	assert.Len(t, meta, 24)
}

func TestSolvedUnitPlacesExactHours(t *testing.T) {
	snap := testSnapshot([]int{1, 2, 3, 4, 5}, 4)
	addGroup(snap, "SW-101", course("MATH", "t1", 4), course("PHYS", "t2", 3), course("CHEM", "t1", 2))
	openEverywhere(snap, "t1")
	openEverywhere(snap, "t2")

	sol, meta := solveUnit(t, snap, snap.Groups)
	require.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)

	perSubject := make(map[string]int)
	for _, row := range selectedRows(sol, meta) {
		perSubject[row.SubjectID]++
	}
	assert.Equal(t, 4, perSubject["MATH"])
	assert.Equal(t, 3, perSubject["PHYS"])
	assert.Equal(t, 2, perSubject["CHEM"])
}

func TestSolvedUnitNeverDoubleBooksGroupOrTeacher(t *testing.T) {
	snap := testSnapshot([]int{1, 2, 3, 4, 5}, 4)
	addGroup(snap, "SW-101", course("MATH", "t1", 4), course("PHYS", "t1", 4))
	addGroup(snap, "SW-202", course("MATH", "t1", 4))
	openEverywhere(snap, "t1")

	sol, meta := solveUnit(t, snap, snap.Groups)
	require.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)

	teacherSeen := make(map[string]bool)
	groupSeen := make(map[string]bool)
	for _, row := range selectedRows(sol, meta) {
		tKey := row.TeacherID + "|" + row.TimeSlotID + "|" + string(rune('0'+row.Weekday))
		gKey := row.GroupCode + "|" + row.TimeSlotID + "|" + string(rune('0'+row.Weekday))
		assert.False(t, teacherSeen[tKey], "teacher double-booked at %s", tKey)
		assert.False(t, groupSeen[gKey], "group double-booked at %s", gKey)
		teacherSeen[tKey] = true
		groupSeen[gKey] = true
	}
}

func TestSolvedUnitRespectsAvailability(t *testing.T) {
	snap := testSnapshot([]int{1, 2, 3}, 4)
	addGroup(snap, "SW-101", course("MATH", "t1", 3))
	// t1 is only open on day 2
	snap.Availability.put("t1", availableEverywhere("t1", []int{2}, snap.Slots[models.ShiftMorning]))

	sol, meta := solveUnit(t, snap, snap.Groups)
	require.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)

	for _, row := range selectedRows(sol, meta) {
		assert.Equal(t, 2, row.Weekday)
	}
}

func TestSolvedUnitRespectsDailySubjectCap(t *testing.T) {
	snap := testSnapshot([]int{1, 2}, 5)
	addGroup(snap, "SW-101", course("MATH", "t1", 6))
	openEverywhere(snap, "t1")

	sol, meta := solveUnit(t, snap, snap.Groups)
	require.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)

	perDay := make(map[int]int)
	for _, row := range selectedRows(sol, meta) {
		perDay[row.Weekday]++
	}
	for day, n := range perDay {
		assert.LessOrEqual(t, n, maxSubjectHoursPerDay, "day %d", day)
	}
}

func TestBuildUnitModelBlocksCommittedCoordinates(t *testing.T) {
	snap := testSnapshot([]int{1, 2}, 2)
	addGroup(snap, "SW-101", course("MATH", "t1", 2))
	openEverywhere(snap, "t1")
	// t1 already teaches another group at day 1 slot-1 in this period
	snap.Existing = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-999", TimeSlotID: "slot-1", Weekday: 1, Period: "2026-1", Active: true},
	}

	sol, meta := solveUnit(t, snap, snap.Groups)
	require.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)

	for _, row := range selectedRows(sol, meta) {
		blocked := row.Weekday == 1 && row.TimeSlotID == "slot-1"
		assert.False(t, blocked, "placed on an occupied coordinate")
	}
}

func TestBuildUnitModelIgnoresRowsOfUnitGroups(t *testing.T) {
	// rows about to be superseded must not constrain the fresh solve
	snap := testSnapshot([]int{1}, 2)
	addGroup(snap, "SW-101", course("MATH", "t1", 2))
	openEverywhere(snap, "t1")
	snap.Existing = []models.AcademicSchedule{
		{ID: "a1", TeacherID: "t1", GroupCode: "SW-101", TimeSlotID: "slot-1", Weekday: 1, Period: "2026-1", Active: true},
		{ID: "a2", TeacherID: "t1", GroupCode: "SW-101", TimeSlotID: "slot-2", Weekday: 1, Period: "2026-1", Active: true},
	}

	sol, _ := solveUnit(t, snap, snap.Groups)
	assert.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)
}

func TestSolvedUnitAvoidsRepeatingSlotColumns(t *testing.T) {
	// 2 hours in a 3-day x 3-slot grid: the optimum spreads them over
	// different slot columns on different days
	snap := testSnapshot([]int{1, 2, 3}, 3)
	addGroup(snap, "SW-101", course("MATH", "t1", 2))
	openEverywhere(snap, "t1")

	sol, meta := solveUnit(t, snap, snap.Groups)
	require.True(t, sol.Status.Succeeded(), "status: %s", sol.Status)
	require.Equal(t, solver.StatusOptimal, sol.Status)

	rows := selectedRows(sol, meta)
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].TimeSlotID, rows[1].TimeSlotID)
}

func TestBuildUnitModelInfeasibleWhenTeacherFullyBlocked(t *testing.T) {
	snap := testSnapshot([]int{1, 2}, 2)
	addGroup(snap, "SW-101", course("MATH", "t1", 2))
	// no availability facts at all

	sol, _ := solveUnit(t, snap, snap.Groups)
	assert.Equal(t, solver.StatusInfeasible, sol.Status)
}
