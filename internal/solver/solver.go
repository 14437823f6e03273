// Package solver implements a small boolean constraint solver used by the
// timetable generator. Models consist of boolean decision variables, unit
// coefficient sum bounds (lo <= Σx <= hi), per-variable linear costs and
// "repeat" penalty groups costing weight * max(0, Σx - 1).
//
// Solving runs propagation to a fixed point at every node and explores the
// remaining search space with parallel branch-and-bound workers sharing one
// incumbent. The context deadline is the time budget: a proven optimum is
// StatusOptimal, an incumbent at deadline is StatusFeasible, a proven empty
// space is StatusInfeasible, a deadline with no incumbent is StatusUnknown.
package solver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the terminal solver outcome.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusFeasible
	StatusInfeasible
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the status carries a usable solution.
func (s Status) Succeeded() bool {
	return s == StatusOptimal || s == StatusFeasible
}

type sumConstraint struct {
	vars []int
	lo   int
	hi   int
}

type penaltyGroup struct {
	vars   []int
	weight int
}

// Model is a boolean constraint model. Not safe for concurrent mutation.
type Model struct {
	names     []string
	fixed     []int8 // -1 free, 0 false, 1 true
	costs     []int
	sums      []sumConstraint
	penalties []penaltyGroup
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewBool declares a decision variable and returns its handle.
func (m *Model) NewBool(name string) int {
	m.names = append(m.names, name)
	m.fixed = append(m.fixed, -1)
	m.costs = append(m.costs, 0)
	return len(m.fixed) - 1
}

// Len returns the number of declared variables.
func (m *Model) Len() int {
	return len(m.fixed)
}

// Name returns the variable's declared name.
func (m *Model) Name(v int) string {
	return m.names[v]
}

// Fix pins a variable to a value before solving.
func (m *Model) Fix(v int, value bool) {
	if value {
		m.fixed[v] = 1
	} else {
		m.fixed[v] = 0
	}
}

// AddSum constrains lo <= Σ vars <= hi.
func (m *Model) AddSum(vars []int, lo, hi int) {
	m.sums = append(m.sums, sumConstraint{vars: vars, lo: lo, hi: hi})
}

// AddExactly constrains Σ vars == n.
func (m *Model) AddExactly(vars []int, n int) {
	m.AddSum(vars, n, n)
}

// AddAtMost constrains Σ vars <= n.
func (m *Model) AddAtMost(vars []int, n int) {
	m.AddSum(vars, 0, n)
}

// SetCost assigns a non-negative linear objective cost to a variable.
func (m *Model) SetCost(v, cost int) {
	if cost < 0 {
		cost = 0
	}
	m.costs[v] = cost
}

// AddRepeatPenalty charges weight for every true variable in the group
// beyond the first. Weights must be non-negative.
func (m *Model) AddRepeatPenalty(vars []int, weight int) {
	if weight <= 0 || len(vars) < 2 {
		return
	}
	m.penalties = append(m.penalties, penaltyGroup{vars: vars, weight: weight})
}

// Stats describes one solver run.
type Stats struct {
	Nodes    int64
	Duration time.Duration
	Workers  int
}

// Solution is the result of Solve. Values is only meaningful when
// Status.Succeeded() holds.
type Solution struct {
	Status    Status
	Values    []bool
	Objective int
	Stats     Stats
}

// Solver runs bounded parallel branch-and-bound over a Model.
type Solver struct {
	workers int
}

// New returns a solver with the given worker parallelism hint.
func New(workers int) *Solver {
	if workers < 1 {
		workers = 1
	}
	return &Solver{workers: workers}
}

type incumbent struct {
	mu     sync.Mutex
	found  bool
	best   int
	values []bool
}

func (inc *incumbent) offer(values []int8, objective int) {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	if inc.found && objective >= inc.best {
		return
	}
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v == 1
	}
	inc.found = true
	inc.best = objective
	inc.values = out
}

// bound returns (found, best) without copying values.
func (inc *incumbent) bound() (bool, int) {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	return inc.found, inc.best
}

type search struct {
	model    *Model
	inc      *incumbent
	ctx      context.Context
	nodes    atomic.Int64
	deadline atomic.Bool
}

// Solve explores the model's search space until exhaustion or deadline.
func (s *Solver) Solve(ctx context.Context, m *Model) Solution {
	start := time.Now()

	root := make([]int8, len(m.fixed))
	copy(root, m.fixed)

	run := &search{model: m, inc: &incumbent{}, ctx: ctx}

	if !run.propagate(root) {
		return Solution{
			Status: StatusInfeasible,
			Stats:  Stats{Duration: time.Since(start), Workers: s.workers},
		}
	}

	prefixes := run.split(root, s.workers)

	var wg sync.WaitGroup
	work := make(chan []int8, len(prefixes))
	for _, p := range prefixes {
		work <- p
	}
	close(work)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for state := range work {
				if run.deadline.Load() {
					return
				}
				run.dfs(state)
			}
		}()
	}
	wg.Wait()

	stats := Stats{Nodes: run.nodes.Load(), Duration: time.Since(start), Workers: s.workers}
	found, best := run.inc.bound()

	switch {
	case found && !run.deadline.Load():
		return Solution{Status: StatusOptimal, Values: run.inc.values, Objective: best, Stats: stats}
	case found:
		return Solution{Status: StatusFeasible, Values: run.inc.values, Objective: best, Stats: stats}
	case !run.deadline.Load():
		return Solution{Status: StatusInfeasible, Stats: stats}
	default:
		return Solution{Status: StatusUnknown, Stats: stats}
	}
}

// split carves the root state into up to ~workers*4 subproblems by
// enumerating assignments of the first branching variables. Conflicting
// prefixes are discarded on the spot.
func (run *search) split(root []int8, workers int) [][]int8 {
	states := [][]int8{root}
	if workers <= 1 {
		return states
	}

	target := workers * 4
	for len(states) < target {
		// branch the first splittable state
		var next [][]int8
		grew := false
		for _, state := range states {
			v := run.pickVar(state)
			if v < 0 || len(next) >= target {
				next = append(next, state)
				continue
			}
			for _, val := range [...]int8{1, 0} {
				child := make([]int8, len(state))
				copy(child, state)
				child[v] = val
				if run.propagate(child) {
					next = append(next, child)
				}
			}
			grew = true
		}
		states = next
		if !grew || len(states) == 0 {
			break
		}
	}
	return states
}

// dfs explores one subproblem with chronological backtracking.
func (run *search) dfs(state []int8) {
	if n := run.nodes.Add(1); n&255 == 0 {
		select {
		case <-run.ctx.Done():
			run.deadline.Store(true)
			return
		default:
		}
	}
	if run.deadline.Load() {
		return
	}

	if found, best := run.inc.bound(); found && run.lowerBound(state) >= best {
		return
	}

	v := run.pickVar(state)
	if v < 0 {
		if run.complete(state) {
			run.inc.offer(state, run.objective(state))
		}
		return
	}

	for _, val := range [...]int8{1, 0} {
		child := make([]int8, len(state))
		copy(child, state)
		child[v] = val
		if run.propagate(child) {
			run.dfs(child)
		}
		if run.deadline.Load() {
			return
		}
	}
}

// pickVar returns a free variable, preferring one from a sum whose lower
// bound is not yet met, or -1 when everything is fixed.
func (run *search) pickVar(state []int8) int {
	for _, c := range run.model.sums {
		ones, free, firstFree := tally(state, c.vars)
		if ones < c.lo && free > 0 {
			return firstFree
		}
	}
	for v, val := range state {
		if val == -1 {
			return v
		}
	}
	return -1
}

// propagate enforces sum bounds to a fixed point, mutating state in place.
// Returns false on conflict.
func (run *search) propagate(state []int8) bool {
	for {
		changed := false
		for _, c := range run.model.sums {
			ones, free, _ := tally(state, c.vars)
			switch {
			case ones > c.hi:
				return false
			case ones+free < c.lo:
				return false
			case ones == c.hi && free > 0:
				for _, v := range c.vars {
					if state[v] == -1 {
						state[v] = 0
					}
				}
				changed = true
			case ones+free == c.lo && free > 0:
				for _, v := range c.vars {
					if state[v] == -1 {
						state[v] = 1
					}
				}
				changed = true
			}
		}
		if !changed {
			return true
		}
	}
}

// complete verifies every sum bound for a fully fixed state.
func (run *search) complete(state []int8) bool {
	for _, c := range run.model.sums {
		ones, _, _ := tally(state, c.vars)
		if ones < c.lo || ones > c.hi {
			return false
		}
	}
	return true
}

// lowerBound computes an admissible objective bound from the variables
// already fixed to one. Costs and weights are non-negative, so fixing more
// variables can only raise the true objective.
func (run *search) lowerBound(state []int8) int {
	total := 0
	for v, val := range state {
		if val == 1 {
			total += run.model.costs[v]
		}
	}
	for _, p := range run.model.penalties {
		ones, _, _ := tally(state, p.vars)
		if ones > 1 {
			total += (ones - 1) * p.weight
		}
	}
	return total
}

func (run *search) objective(state []int8) int {
	return run.lowerBound(state)
}

func tally(state []int8, vars []int) (ones, free, firstFree int) {
	firstFree = -1
	for _, v := range vars {
		switch state[v] {
		case 1:
			ones++
		case -1:
			free++
			if firstFree == -1 {
				firstFree = v
			}
		}
	}
	return ones, free, firstFree
}
