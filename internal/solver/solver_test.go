package solver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveExactSum(t *testing.T) {
	m := NewModel()
	vars := make([]int, 5)
	for i := range vars {
		vars[i] = m.NewBool(fmt.Sprintf("x%d", i))
	}
	m.AddExactly(vars, 3)

	sol := New(1).Solve(context.Background(), m)
	require.Equal(t, StatusOptimal, sol.Status)

	ones := 0
	for _, v := range sol.Values {
		if v {
			ones++
		}
	}
	assert.Equal(t, 3, ones)
}

func TestSolveInfeasible(t *testing.T) {
	m := NewModel()
	a := m.NewBool("a")
	b := m.NewBool("b")
	m.AddExactly([]int{a, b}, 2)
	m.AddAtMost([]int{a, b}, 1)

	sol := New(2).Solve(context.Background(), m)
	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.False(t, sol.Status.Succeeded())
}

func TestSolveRespectsFixedZero(t *testing.T) {
	m := NewModel()
	a := m.NewBool("a")
	b := m.NewBool("b")
	c := m.NewBool("c")
	m.AddExactly([]int{a, b, c}, 2)
	m.Fix(b, false)

	sol := New(1).Solve(context.Background(), m)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.True(t, sol.Values[a])
	assert.False(t, sol.Values[b])
	assert.True(t, sol.Values[c])
}

func TestSolvePrefersCheaperVariables(t *testing.T) {
	m := NewModel()
	cheap := m.NewBool("cheap")
	costly := m.NewBool("costly")
	m.AddExactly([]int{cheap, costly}, 1)
	m.SetCost(costly, 5)

	sol := New(1).Solve(context.Background(), m)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.True(t, sol.Values[cheap])
	assert.False(t, sol.Values[costly])
	assert.Equal(t, 0, sol.Objective)
}

func TestSolveRepeatPenaltySpreadsSelection(t *testing.T) {
	// Two "days" of two "slots"; two hours required. The repeat group on
	// the first slot of each day makes landing both hours there cost 4.
	m := NewModel()
	d1s1 := m.NewBool("d1s1")
	d1s2 := m.NewBool("d1s2")
	d2s1 := m.NewBool("d2s1")
	d2s2 := m.NewBool("d2s2")
	m.AddExactly([]int{d1s1, d1s2, d2s1, d2s2}, 2)
	m.AddRepeatPenalty([]int{d1s1, d2s1}, 4)
	m.AddRepeatPenalty([]int{d1s2, d2s2}, 4)

	sol := New(1).Solve(context.Background(), m)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 0, sol.Objective)
	assert.False(t, sol.Values[d1s1] && sol.Values[d2s1], "first slot should not repeat across days")
	assert.False(t, sol.Values[d1s2] && sol.Values[d2s2], "second slot should not repeat across days")
}

func TestSolveDeadlineKeepsIncumbent(t *testing.T) {
	// Large enough space that optimality cannot be proven instantly, but a
	// first feasible assignment is found well within the deadline.
	m := NewModel()
	const n = 24
	vars := make([]int, n)
	for i := range vars {
		vars[i] = m.NewBool(fmt.Sprintf("x%d", i))
		m.SetCost(vars[i], i%3)
	}
	m.AddExactly(vars, n/2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sol := New(2).Solve(ctx, m)
	require.True(t, sol.Status.Succeeded(), "expected optimal or feasible, got %s", sol.Status)

	ones := 0
	for _, v := range sol.Values {
		if v {
			ones++
		}
	}
	assert.Equal(t, n/2, ones)
}

func TestSolveEmptyModel(t *testing.T) {
	sol := New(1).Solve(context.Background(), NewModel())
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 0, sol.Objective)
}
