// Package progress tracks per-step cooking status and the parallel-step
// relation for a session.
package progress

import (
	"sort"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Tracker holds the step identity and parallel relations seeded from a
// recipe. Statuses themselves live on the session (the one authoritative
// record); the tracker only decides how they may change. Callers are
// expected to serialize access to the session they pass in.
type Tracker struct {
	log      *logger.Logger
	steps    []domain.Step
	parallel map[int][]int // symmetrized parallel_with relation
}

// NewTracker creates a tracker seeded from the recipe.
func NewTracker(recipe *domain.Recipe, log *logger.Logger) *Tracker {
	t := &Tracker{log: log}
	t.Reseed(recipe)
	return t
}

// Reseed replaces the step universe, e.g. after the kitchen service
// rewrote the recipe mid-session. Existing session statuses are kept by
// the caller for step numbers that survive; SyncSession drops the rest.
func (t *Tracker) Reseed(recipe *domain.Recipe) {
	t.steps = make([]domain.Step, len(recipe.Steps))
	copy(t.steps, recipe.Steps)

	// Symmetrize: A parallel_with B implies B parallel_with A, whether or
	// not B declares it.
	t.parallel = make(map[int][]int, len(recipe.Steps))
	add := func(a, b int) {
		for _, n := range t.parallel[a] {
			if n == b {
				return
			}
		}
		t.parallel[a] = append(t.parallel[a], b)
	}
	for _, step := range recipe.Steps {
		for _, other := range step.ParallelWith {
			add(step.Number, other)
			add(other, step.Number)
		}
	}
	for n := range t.parallel {
		sort.Ints(t.parallel[n])
	}
}

// SyncSession aligns the session's status map with the current step
// universe: steps that no longer exist are dropped, new steps start as
// not_started, surviving statuses are untouched.
func (t *Tracker) SyncSession(s *domain.Session) {
	known := make(map[int]bool, len(t.steps))
	for _, step := range t.steps {
		known[step.Number] = true
		if _, ok := s.StepStatuses[step.Number]; !ok {
			s.StepStatuses[step.Number] = domain.StepNotStarted
		}
	}
	for n := range s.StepStatuses {
		if !known[n] {
			delete(s.StepStatuses, n)
		}
	}
}

// MarkInProgress moves a step to in_progress. Reports whether anything
// changed; a completed step never regresses.
func (t *Tracker) MarkInProgress(s *domain.Session, step int) bool {
	cur, ok := s.StepStatuses[step]
	if !ok {
		t.log.Debug("ignoring unknown step %d", step)
		return false
	}
	if cur >= domain.StepInProgress {
		return false
	}
	s.StepStatuses[step] = domain.StepInProgress
	return true
}

// MarkCompleted moves a step to completed. Reports whether anything
// changed.
func (t *Tracker) MarkCompleted(s *domain.Session, step int) bool {
	cur, ok := s.StepStatuses[step]
	if !ok {
		t.log.Debug("ignoring unknown step %d", step)
		return false
	}
	if cur >= domain.StepCompleted {
		return false
	}
	s.StepStatuses[step] = domain.StepCompleted
	return true
}

// Merge applies an explicit status map from the kitchen service. Explicit
// data wins over anything inferred locally, but statuses still never move
// backwards: monotonicity is the stronger rule.
func (t *Tracker) Merge(s *domain.Session, explicit map[int]domain.StepStatus) {
	for step, status := range explicit {
		cur, ok := s.StepStatuses[step]
		if !ok {
			t.log.Debug("merge: ignoring unknown step %d", step)
			continue
		}
		if status > cur {
			s.StepStatuses[step] = status
		} else if status < cur {
			t.log.Debug("merge: refusing regression of step %d (%s -> %s)",
				step, cur, status)
		}
	}
}

// ApplyTimer records what a running countdown says about progress: its
// step goes in_progress and its parallel tasks become the active parallel
// set.
func (t *Tracker) ApplyTimer(s *domain.Session, snap *domain.TimerSnapshot) {
	if snap == nil {
		return
	}
	t.MarkInProgress(s, snap.Step)

	s.ActiveParallel = s.ActiveParallel[:0]
	for _, task := range snap.ParallelTasks {
		t.MarkInProgress(s, task.Step)
		s.ActiveParallel = append(s.ActiveParallel, task.Step)
	}
}

// ClearParallel empties the active parallel set; called whenever no timer
// is running.
func (t *Tracker) ClearParallel(s *domain.Session) {
	s.ActiveParallel = nil
}

// Advance records that the narrated current step moved to number n: the
// previous current step (if it was underway) completes, n goes
// in_progress.
func (t *Tracker) Advance(s *domain.Session, n int) {
	if n == s.CurrentStep {
		return
	}
	if prev := s.CurrentStep; prev != 0 && s.StepStatuses[prev] == domain.StepInProgress {
		t.MarkCompleted(s, prev)
	}
	if t.MarkInProgress(s, n) || s.StepStatuses[n] >= domain.StepInProgress {
		s.CurrentStep = n
	}
}

// CompleteAll marks every remaining step completed; used when the service
// narrates that the dish is done.
func (t *Tracker) CompleteAll(s *domain.Session) {
	for _, step := range t.steps {
		t.MarkCompleted(s, step.Number)
	}
}

// ParallelWith returns the step numbers declared (or implied) parallel
// with the given step.
func (t *Tracker) ParallelWith(step int) []int {
	out := make([]int, len(t.parallel[step]))
	copy(out, t.parallel[step])
	return out
}

// Steps returns the seeded step list.
func (t *Tracker) Steps() []domain.Step {
	out := make([]domain.Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Completed counts completed steps against the total.
func (t *Tracker) Completed(s *domain.Session) (done, total int) {
	for _, step := range t.steps {
		if s.StepStatuses[step.Number] == domain.StepCompleted {
			done++
		}
	}
	return done, len(t.steps)
}
