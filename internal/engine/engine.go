// Package engine implements the conversation controller: the owner of
// the one authoritative session, the turn pipeline against the kitchen
// service, and the glue between timers, progress, audio, and persistence.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/progress"
	"github.com/hammamikhairi/souschef/internal/timer"
)

// Option configures the controller.
type Option func(*Controller)

// WithPlayback wires the narration output. Without it turns still
// apply; they are just silent.
func WithPlayback(p domain.Playback) Option {
	return func(c *Controller) { c.playback = p }
}

// WithCapture wires the speech input so the controller can reopen the
// mic after narration and timer completion.
func WithCapture(cap domain.Capture) Option {
	return func(c *Controller) { c.capture = cap }
}

// WithStore wires session persistence. Without it sessions are
// ephemeral.
func WithStore(s domain.SessionStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithCues sets the audio cues played at the timer warning threshold
// and on timer completion. Unset cues are skipped silently.
func WithCues(warning, completion []byte) Option {
	return func(c *Controller) {
		c.warningCue = warning
		c.completionCue = completion
	}
}

// WithTimerTick sets the countdown tick interval. One second in
// production; tests shrink it.
func WithTimerTick(d time.Duration) Option {
	return func(c *Controller) { c.tickInterval = d }
}

// Controller drives a cooking session: exactly one turn in flight,
// exactly one countdown, one authoritative Session mutated only here
// and in the timer hooks.
type Controller struct {
	dialogue domain.Dialogue
	recipes  domain.RecipeSource
	notifier domain.Notifier
	log      *logger.Logger

	playback domain.Playback
	capture  domain.Capture
	store    domain.SessionStore

	warningCue    []byte
	completionCue []byte
	tickInterval  time.Duration

	timers *timer.Engine

	onMessage func(domain.Message)

	mu       sync.Mutex
	session  *domain.Session
	recipe   *domain.Recipe
	tracker  *progress.Tracker
	inFlight bool
}

// New creates a controller. The dialogue client, recipe source, and
// notifier are required; audio and persistence arrive via options.
func New(dialogue domain.Dialogue, recipes domain.RecipeSource, notifier domain.Notifier, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		dialogue:     dialogue,
		recipes:      recipes,
		notifier:     notifier,
		log:          log,
		tickInterval: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timers = timer.New(log.Named("timer"),
		timer.WithTickInterval(c.tickInterval),
		timer.WithHooks(timer.Hooks{
			Tick:     c.onTimerTick,
			Warning:  c.onTimerWarning,
			Complete: c.onTimerComplete,
		}))
	return c
}

// SetOnMessage registers a hook called for every message appended to
// the transcript, user and assistant alike. Called without locks held.
func (c *Controller) SetOnMessage(fn func(domain.Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// ── Session lifecycle ────────────────────────────────────────────

// StartSession begins a fresh session for the recipe and performs the
// bootstrap turn that fetches the opening narration. Any previous
// session is discarded first.
func (c *Controller) StartSession(ctx context.Context, recipeID string) error {
	recipe, err := c.recipes.Get(ctx, recipeID)
	if err != nil {
		return fmt.Errorf("engine: loading recipe %s: %w", recipeID, err)
	}

	c.Reset()

	c.mu.Lock()
	c.recipe = recipe
	c.tracker = progress.NewTracker(recipe, c.log)
	c.session = domain.NewSession(uuid.NewString(), recipe)
	c.mu.Unlock()

	c.log.Info("session started for %q (%d steps)", recipe.Title, len(recipe.Steps))
	c.persist(ctx)

	// The opening narration comes from a turn with no transcript.
	return c.submit(ctx, "", true)
}

// Resume restores the most recent stored session for the recipe. The
// transcript, statuses, and conversation state come back; a countdown
// does not survive a restart.
func (c *Controller) Resume(ctx context.Context, recipeID string) error {
	if c.store == nil {
		return fmt.Errorf("engine: resume needs a session store")
	}

	sessions, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("engine: listing sessions: %w", err)
	}
	var found *domain.Session
	for _, s := range sessions {
		if s.RecipeID == recipeID {
			found = s
			break
		}
	}
	if found == nil {
		return domain.ErrNotFound
	}

	recipe, err := c.recipes.Get(ctx, recipeID)
	if err != nil {
		return fmt.Errorf("engine: loading recipe %s: %w", recipeID, err)
	}

	c.Reset()

	c.mu.Lock()
	c.recipe = recipe
	c.tracker = progress.NewTracker(recipe, c.log)
	found.Timer = nil
	found.ActiveParallel = nil
	c.tracker.SyncSession(found)
	c.session = found
	c.mu.Unlock()

	c.log.Info("resumed session %s at step %d (%s)", found.ID, found.CurrentStep, found.State)
	return nil
}

// Reset discards the session: the countdown stops silently, the audio
// device is released in both directions, nothing further is narrated.
// The stored snapshot survives for Resume.
func (c *Controller) Reset() {
	c.timers.Stop()
	if c.capture != nil {
		c.capture.Abort()
	}
	if c.playback != nil {
		c.playback.Stop()
	}

	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.recipe = nil
	c.tracker = nil
	c.mu.Unlock()

	if had {
		c.log.Info("session reset")
	}
}

// Active reports whether a session is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Recipe returns the recipe the live session cooks from, or nil.
// The returned value is shared and must be treated as read-only.
func (c *Controller) Recipe() *domain.Recipe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recipe
}

// Snapshot returns a copy of the live session safe to hand to other
// goroutines, or nil when no session is active. The message log is
// shared; it is concurrency-safe and append-only.
func (c *Controller) Snapshot() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	cp.StepStatuses = make(map[int]domain.StepStatus, len(c.session.StepStatuses))
	for step, status := range c.session.StepStatuses {
		cp.StepStatuses[step] = status
	}
	cp.ActiveParallel = append([]int(nil), c.session.ActiveParallel...)
	if c.session.Timer != nil {
		t := *c.session.Timer
		t.ParallelTasks = append([]domain.ParallelTask(nil), c.session.Timer.ParallelTasks...)
		cp.Timer = &t
	}
	return &cp
}

// ── Turn pipeline ────────────────────────────────────────────────

// Submit runs one user turn: transcript in, narration out. Returns
// domain.ErrRequestInFlight while a previous turn is unresolved and
// domain.ErrNoSession outside a session. A failed turn surfaces as a
// notification and mutates nothing; retrying is submitting again.
func (c *Controller) Submit(ctx context.Context, transcript string) error {
	return c.submit(ctx, transcript, false)
}

func (c *Controller) submit(ctx context.Context, transcript string, bootstrap bool) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	if c.inFlight {
		c.mu.Unlock()
		c.log.Warn("turn rejected, one already in flight")
		return domain.ErrRequestInFlight
	}
	c.inFlight = true

	req := domain.TurnRequest{
		RecipeID:   c.session.RecipeID,
		Transcript: transcript,
		State:      c.session.State,
	}
	var userMsg *domain.Message
	if !bootstrap {
		msg := domain.Message{
			ID:        uuid.NewString(),
			Sender:    domain.SenderUser,
			Text:      transcript,
			Timestamp: time.Now(),
		}
		c.session.Log.Append(msg)
		userMsg = &msg
	}
	sink := c.onMessage
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if userMsg != nil && sink != nil {
		sink(*userMsg)
	}

	result, err := c.dialogue.Send(ctx, req)
	if err != nil {
		c.log.Error("turn failed: %v", err)
		c.notifier.NotifyUrgent(ctx, "I couldn't reach the kitchen service. Give it a moment and say that again.")
		return fmt.Errorf("engine: turn: %w", err)
	}

	return c.apply(ctx, result)
}

// apply folds one dialogue response into the session, in the pipeline
// order: recipe switch, timer, assistant message, state transition,
// playback.
func (c *Controller) apply(ctx context.Context, result *domain.TurnResult) error {
	// The service may have rewritten the recipe (servings scaled, an
	// ingredient substituted). Refetch before touching the session.
	var newRecipe *domain.Recipe
	if result.UpdatedRecipeID != "" {
		r, err := c.recipes.Get(ctx, result.UpdatedRecipeID)
		if err != nil {
			c.log.Error("updated recipe %s not fetchable, keeping current: %v", result.UpdatedRecipeID, err)
		} else {
			newRecipe = r
		}
	}

	c.mu.Lock()
	session := c.session
	if session == nil {
		// Reset won the race against a slow response; drop it.
		c.mu.Unlock()
		return domain.ErrNoSession
	}

	if newRecipe != nil {
		c.recipe = newRecipe
		session.RecipeID = newRecipe.ID
		session.RecipeTitle = newRecipe.Title
		c.tracker.Reseed(newRecipe)
		c.tracker.SyncSession(session)
		c.log.Info("recipe switched to %q (%s)", newRecipe.Title, newRecipe.ID)
	}

	// Progress bookkeeping. Explicit statuses always merge; the current
	// step comes from the strongest available signal, and narration
	// inference is consulted only when the response carries nothing
	// explicit.
	if result.StepStatuses != nil {
		c.tracker.Merge(session, result.StepStatuses)
	}
	switch {
	case result.Timer != nil:
		c.tracker.Advance(session, result.Timer.Step)
	case result.StepStatuses != nil:
		if step := highestInProgress(session); step > 0 {
			session.CurrentStep = step
		}
	default:
		hint := progress.InferStep(result.Text)
		switch {
		case hint.AllDone:
			c.tracker.CompleteAll(session)
		case hint.Step > 0:
			c.tracker.Advance(session, hint.Step)
		}
	}

	var startSnap *domain.TimerSnapshot
	if result.Timer != nil {
		snap := *result.Timer
		snap.ParallelTasks = append([]domain.ParallelTask(nil), result.Timer.ParallelTasks...)
		snap.Remaining = snap.Total
		session.Timer = &snap
		c.tracker.ApplyTimer(session, &snap)
		st := snap
		startSnap = &st
	}

	msg := domain.Message{
		ID:            uuid.NewString(),
		Sender:        domain.SenderAssistant,
		Text:          result.Text,
		SpokenText:    result.SpokenText,
		Timestamp:     time.Now(),
		Timer:         result.Timer,
		Substitutions: result.Substitutions,
	}
	session.Log.Append(msg)

	if result.NextState != session.State {
		c.log.Info("state %s -> %s", session.State, result.NextState)
		session.State = result.NextState
	}

	session.UpdatedAt = time.Now()
	sink := c.onMessage
	c.mu.Unlock()

	if sink != nil {
		sink(msg)
	}

	c.persist(ctx)

	if startSnap != nil {
		c.timers.Start(*startSnap)
	}

	if len(result.Audio) > 0 && c.playback != nil {
		if err := c.playback.Play(result.Audio); err != nil {
			c.log.Error("playback failed: %v", err)
			// The device never started, so the ended hook will not
			// fire; reopen the mic here.
			c.maybeListen()
		}
	} else {
		c.maybeListen()
	}
	return nil
}

// ── Audio flow hooks ─────────────────────────────────────────────

// OnPlaybackEnded is wired to the playback manager's ended hook: when
// the assistant finishes speaking, the mic reopens.
func (c *Controller) OnPlaybackEnded() {
	c.maybeListen()
}

// maybeListen restarts capture unless the session is gone, a countdown
// owns what happens next, or the opening narration is still underway.
func (c *Controller) maybeListen() {
	if c.capture == nil {
		return
	}

	c.mu.Lock()
	active := c.session != nil
	state := domain.StateInitialSummary
	if active {
		state = c.session.State
	}
	c.mu.Unlock()

	if !active {
		return
	}
	if c.timers.Running() {
		c.log.Debug("not reopening mic, countdown active")
		return
	}
	if state == domain.StateInitialSummary {
		c.log.Debug("not reopening mic during opening narration")
		return
	}
	c.capture.Start()
}

// ── Timer hooks ──────────────────────────────────────────────────

// onTimerTick mirrors the countdown onto the session snapshot.
func (c *Controller) onTimerTick(remaining int) {
	c.mu.Lock()
	if c.session != nil && c.session.Timer != nil {
		c.session.Timer.Remaining = remaining
	}
	c.mu.Unlock()
}

func (c *Controller) onTimerWarning(snap domain.TimerSnapshot) {
	c.playCue(c.warningCue)
	c.notifier.NotifyUrgent(context.Background(),
		fmt.Sprintf("%s left on step %d.", timer.FormatRemaining(snap.Remaining), snap.Step))
}

func (c *Controller) onTimerComplete(snap domain.TimerSnapshot) {
	c.mu.Lock()
	session := c.session
	if session != nil {
		session.Timer = nil
		if c.tracker != nil {
			c.tracker.ClearParallel(session)
		}
		session.UpdatedAt = time.Now()
	}
	c.mu.Unlock()
	if session == nil {
		return
	}

	label := snap.Label
	if label == "" {
		label = "timer"
	}
	c.notifier.NotifyUrgent(context.Background(),
		fmt.Sprintf("Done: the %s timer for step %d is up.", label, snap.Step))
	c.persist(context.Background())

	// The user almost always wants to talk right after a timer ends.
	// The mic reopens when the cue finishes playing, or right here
	// when there is no cue to play.
	if !c.playCue(c.completionCue) && c.capture != nil {
		c.capture.Start()
	}
}

// playCue plays a built-in cue through the narration pipeline. Reports
// whether the cue actually started, so callers can fall back.
func (c *Controller) playCue(cue []byte) bool {
	if c.playback == nil || len(cue) == 0 {
		return false
	}
	if err := c.playback.Play(cue); err != nil {
		c.log.Error("cue playback: %v", err)
		return false
	}
	return true
}

// ── Helpers ──────────────────────────────────────────────────────

// persist saves a snapshot when a store is wired. Failures are logged,
// never surfaced; persistence is a convenience, not part of the turn.
func (c *Controller) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	snap := c.Snapshot()
	if snap == nil {
		return
	}
	if err := c.store.Save(ctx, snap); err != nil {
		c.log.Error("session save failed: %v", err)
	}
}

// highestInProgress picks the current step out of an explicit status
// map: the furthest step the service says is underway.
func highestInProgress(s *domain.Session) int {
	best := 0
	for step, status := range s.StepStatuses {
		if status == domain.StepInProgress && step > best {
			best = step
		}
	}
	return best
}
