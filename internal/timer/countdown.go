// Package timer implements the session countdown: a single ticking timer
// with a once-per-countdown warning, completion effects, and an attached
// list of parallel tasks the user can do while waiting.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Option configures the engine.
type Option func(*Engine)

// WithTickInterval sets the countdown tick. One second in production;
// tests shrink it.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.tickInterval = d
	}
}

// WithHooks sets the countdown side effects.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// Hooks are the countdown's side effects. They run on the countdown
// goroutine with no engine lock held, so they may call back into the
// engine. Warning fires at most once per countdown, exactly when
// remaining equals the warning threshold. Complete fires exactly once,
// when remaining reaches zero; after it the engine is already idle and
// the parallel-task set is gone with the snapshot.
type Hooks struct {
	Tick     func(remaining int)
	Warning  func(snap domain.TimerSnapshot)
	Complete func(snap domain.TimerSnapshot)
}

// Engine runs at most one countdown. Starting a new countdown supersedes
// the previous one: its ticker is fully stopped and joined before the new
// countdown begins, so a superseded countdown can never tick again.
type Engine struct {
	log          *logger.Logger
	tickInterval time.Duration
	hooks        Hooks

	mu      sync.Mutex
	gen     int // bumped on every Start/Stop; stale ticks check it
	cancel  context.CancelFunc
	done    chan struct{}
	current *domain.TimerSnapshot // nil when idle
	warned  bool
}

// New creates an idle countdown engine.
func New(log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:          log,
		tickInterval: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a countdown from snap.Total seconds, superseding any
// countdown already running. A WarningThreshold <= 0 or >= Total disables
// the warning. Remaining is reset to Total regardless of the value passed
// in.
func (e *Engine) Start(snap domain.TimerSnapshot) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	oldCancel, oldDone := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	// Join the superseded countdown before anything else ticks.
	if oldCancel != nil {
		oldCancel()
		<-oldDone
	}

	snap.Remaining = snap.Total
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	if e.gen != gen {
		// A concurrent Start or Stop won the race while we joined.
		e.mu.Unlock()
		cancel()
		close(done)
		return
	}
	cp := snap
	e.current = &cp
	e.warned = false
	e.cancel, e.done = cancel, done
	e.mu.Unlock()

	e.log.Info("countdown started: %s for step %d", FormatRemaining(snap.Total), snap.Step)
	go e.loop(ctx, gen, done)
}

// Stop cancels the countdown without firing the completion effect. Safe
// to call when idle, and repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	oldCancel, oldDone := e.cancel, e.done
	e.cancel, e.done = nil, nil
	wasRunning := e.current != nil
	e.current = nil
	e.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
		<-oldDone
	}
	if wasRunning {
		e.log.Info("countdown stopped")
	}
}

// Running reports whether a countdown is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Snapshot returns a copy of the active countdown, or nil when idle.
func (e *Engine) Snapshot() *domain.TimerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	cp := *e.current
	cp.ParallelTasks = append([]domain.ParallelTask(nil), e.current.ParallelTasks...)
	return &cp
}

// loop drives the ticker until the countdown completes or is superseded.
func (e *Engine) loop(ctx context.Context, gen int, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.tick(gen) {
				return
			}
		}
	}
}

// tick advances the countdown one second and fires due effects. Returns
// false once this countdown is over or no longer the live one.
func (e *Engine) tick(gen int) bool {
	e.mu.Lock()
	if e.gen != gen || e.current == nil {
		e.mu.Unlock()
		return false
	}

	e.current.Remaining--
	snap := *e.current

	fireWarning := !e.warned &&
		snap.WarningThreshold > 0 &&
		snap.Remaining == snap.WarningThreshold
	if fireWarning {
		e.warned = true
	}

	complete := snap.Remaining <= 0
	var selfCancel context.CancelFunc
	if complete {
		// Idle before the hook runs so Running() is already false inside it.
		e.current = nil
		selfCancel = e.cancel
		e.cancel, e.done = nil, nil
	}
	e.mu.Unlock()

	if fireWarning {
		e.log.Info("countdown warning: %s left on step %d", FormatRemaining(snap.Remaining), snap.Step)
		if e.hooks.Warning != nil {
			e.hooks.Warning(snap)
		}
	}

	if complete {
		if selfCancel != nil {
			selfCancel()
		}
		e.log.Info("countdown finished for step %d", snap.Step)
		if e.hooks.Complete != nil {
			e.hooks.Complete(snap)
		}
		return false
	}

	if e.hooks.Tick != nil {
		e.hooks.Tick(snap.Remaining)
	}
	return true
}

// FormatRemaining returns a spoken-friendly duration like "8 minutes" or
// "45 seconds". Rounds to the nearest minute once at least a minute is
// left.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		if seconds == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", seconds)
	}
	m := (seconds + 30) / 60
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
