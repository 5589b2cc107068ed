package storage

import (
	"context"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// AutosaveOption configures the autosaver.
type AutosaveOption func(*Autosaver)

// WithSaveInterval sets how often the autosaver snapshots the session.
func WithSaveInterval(d time.Duration) AutosaveOption {
	return func(a *Autosaver) {
		a.interval = d
	}
}

// Autosaver periodically persists the live session. The engine saves
// after every turn; this covers what happens between turns, mainly the
// countdown draining, so a crash loses at most one interval.
type Autosaver struct {
	store    domain.SessionStore
	snapshot func() *domain.Session
	log      *logger.Logger
	interval time.Duration
}

// NewAutosaver creates an autosaver. snapshot returns a copy of the
// live session, or nil when there is nothing to save yet.
func NewAutosaver(store domain.SessionStore, snapshot func() *domain.Session, log *logger.Logger, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		store:    store,
		snapshot: snapshot,
		log:      log,
		interval: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the autosave loop. Blocks until ctx is cancelled, then
// takes one final snapshot. Intended to be called as a goroutine.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.log.Info("autosave started (interval=%s)", a.interval)

	for {
		select {
		case <-ctx.Done():
			// Last chance to flush; the loop's ctx is already dead.
			a.save(context.Background())
			a.log.Info("autosave stopped")
			return
		case <-ticker.C:
			a.save(ctx)
		}
	}
}

// save persists one snapshot, if there is a session to snapshot.
func (a *Autosaver) save(ctx context.Context) {
	snap := a.snapshot()
	if snap == nil {
		return
	}
	if err := a.store.Save(ctx, snap); err != nil {
		a.log.Error("autosave: %v", err)
		return
	}
	a.log.Debug("autosave: session %s (step %d, state %s)", snap.ID, snap.CurrentStep, snap.State)
}
