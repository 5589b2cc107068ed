package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/storage"
)

// fakeDialogue replays scripted turn results. The last result repeats
// once the script runs out; with no script at all it echoes the request
// state back. setBlock makes the next Sends park until the channel
// closes.
type fakeDialogue struct {
	mu       sync.Mutex
	requests []domain.TurnRequest
	results  []*domain.TurnResult
	err      error
	block    chan struct{}
}

func (f *fakeDialogue) Send(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var res *domain.TurnResult
	if len(f.results) > 0 {
		res = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	err := f.err
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &domain.TurnResult{Text: "ok", NextState: req.State}
	}
	return res, nil
}

func (f *fakeDialogue) setBlock(ch chan struct{}) {
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
}

func (f *fakeDialogue) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeDialogue) sent() []domain.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TurnRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

type fakeRecipeSource struct {
	mu      sync.Mutex
	recipes map[string]*domain.Recipe
	gets    []string
}

func (f *fakeRecipeSource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	r, ok := f.recipes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRecipeSource) List(ctx context.Context) ([]domain.RecipeSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RecipeSummary, 0, len(f.recipes))
	for _, r := range f.recipes {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (f *fakeRecipeSource) Import(ctx context.Context, content, kind string) (*domain.Recipe, error) {
	return nil, errors.New("import not supported")
}

type mockNotifier struct {
	mu     sync.Mutex
	notes  []string
	urgent []string
}

func (m *mockNotifier) Notify(ctx context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, msg)
	return nil
}

func (m *mockNotifier) NotifyUrgent(ctx context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urgent = append(m.urgent, msg)
	return nil
}

func (m *mockNotifier) urgentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.urgent)
}

type fakePlayback struct {
	mu     sync.Mutex
	played [][]byte
	stops  int
}

func (f *fakePlayback) Play(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, payload)
	return nil
}

func (f *fakePlayback) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakePlayback) Playing() bool { return false }

func (f *fakePlayback) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

func (f *fakePlayback) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeCapture struct {
	mu     sync.Mutex
	starts int
	aborts int
	active bool
}

func (f *fakeCapture) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.active = true
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
}

func (f *fakeCapture) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	f.active = false
}

func (f *fakeCapture) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeCapture) abortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborts
}

func testRecipe() *domain.Recipe {
	return &domain.Recipe{
		ID:       "pasta-aglio-olio",
		Title:    "Pasta Aglio e Olio",
		Metadata: domain.Metadata{Servings: 2},
		Ingredients: []domain.Ingredient{
			{Item: "spaghetti", Amount: 200, Unit: "g"},
			{Item: "garlic", Amount: 4, Unit: "cloves"},
		},
		Steps: []domain.Step{
			{Number: 1, Instruction: "Bring a large pot of salted water to a boil."},
			{Number: 2, Instruction: "Cook the spaghetti until al dente.", Timer: &domain.StepTimer{Duration: 480, Type: "cooking"}},
			{Number: 3, Instruction: "Slice the garlic thinly.", ParallelWith: []int{2}},
			{Number: 4, Instruction: "Toss everything together and serve."},
		},
	}
}

type rig struct {
	ctrl     *Controller
	dialogue *fakeDialogue
	recipes  *fakeRecipeSource
	notifier *mockNotifier
	playback *fakePlayback
	capture  *fakeCapture
	store    *storage.MemoryStore
}

func setupController(t *testing.T, d *fakeDialogue) *rig {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	r := &rig{
		dialogue: d,
		recipes:  &fakeRecipeSource{recipes: map[string]*domain.Recipe{"pasta-aglio-olio": testRecipe()}},
		notifier: &mockNotifier{},
		playback: &fakePlayback{},
		capture:  &fakeCapture{},
		store:    storage.NewMemoryStore(log),
	}
	r.ctrl = New(d, r.recipes, r.notifier, log,
		WithPlayback(r.playback),
		WithCapture(r.capture),
		WithStore(r.store),
		WithTimerTick(10*time.Millisecond))
	return r
}

func startSession(t *testing.T, r *rig) {
	t.Helper()
	if err := r.ctrl.StartSession(context.Background(), "pasta-aglio-olio"); err != nil {
		t.Fatalf("starting session: %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartSessionBootstraps(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{{
		Text:       "Welcome! Today we're making Pasta Aglio e Olio. How many servings?",
		SpokenText: "Welcome! How many servings would you like?",
		NextState:  domain.StateAskingServings,
		Audio:      []byte("narration-audio"),
	}}}
	r := setupController(t, d)
	startSession(t, r)

	reqs := d.sent()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Transcript != "" {
		t.Fatalf("bootstrap transcript should be empty, got %q", reqs[0].Transcript)
	}
	if reqs[0].State != domain.StateInitialSummary {
		t.Fatalf("bootstrap state = %s, want initial_summary", reqs[0].State)
	}

	snap := r.ctrl.Snapshot()
	if snap == nil {
		t.Fatal("no session after start")
	}
	if snap.State != domain.StateAskingServings {
		t.Fatalf("state = %s, want asking_servings", snap.State)
	}
	msgs := snap.Log.All()
	if len(msgs) != 1 {
		t.Fatalf("expected only the assistant message, got %d messages", len(msgs))
	}
	if msgs[0].Sender != domain.SenderAssistant {
		t.Fatal("bootstrap must not append a user message")
	}
	if r.playback.playCount() != 1 {
		t.Fatalf("expected the narration to play once, got %d plays", r.playback.playCount())
	}
	if _, err := r.store.Load(context.Background(), snap.ID); err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
}

func TestStartSessionUnknownRecipe(t *testing.T) {
	r := setupController(t, &fakeDialogue{})

	err := r.ctrl.StartSession(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if r.ctrl.Active() {
		t.Fatal("no session should exist after a failed start")
	}
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	d := &fakeDialogue{}
	r := setupController(t, d)
	startSession(t, r)

	release := make(chan struct{})
	d.setBlock(release)

	done := make(chan error, 1)
	go func() { done <- r.ctrl.Submit(context.Background(), "next step") }()
	waitUntil(t, func() bool { return len(d.sent()) == 2 }, "first submit never reached the service")

	if err := r.ctrl.Submit(context.Background(), "hello?"); !errors.Is(err, domain.ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}

	snap := r.ctrl.Snapshot()
	if got := snap.Log.Len(); got != 2 {
		t.Fatalf("rejected turn must not touch the log, len = %d", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if got := len(d.sent()); got != 2 {
		t.Fatalf("rejected turn must not reach the service, sent %d requests", got)
	}
}

func TestSubmitFailureMutatesNothing(t *testing.T) {
	d := &fakeDialogue{}
	r := setupController(t, d)
	startSession(t, r)

	d.setErr(errors.New("connection refused"))
	if err := r.ctrl.Submit(context.Background(), "what's next?"); err == nil {
		t.Fatal("expected an error from a failed turn")
	}

	snap := r.ctrl.Snapshot()
	if snap.State != domain.StateInitialSummary {
		t.Fatalf("failed turn changed state to %s", snap.State)
	}
	msgs := snap.Log.All()
	// The user's words stay on the transcript; no assistant reply arrived.
	if len(msgs) != 2 {
		t.Fatalf("expected bootstrap + user message, got %d", len(msgs))
	}
	if msgs[1].Sender != domain.SenderUser {
		t.Fatalf("last message sender = %s, want user", msgs[1].Sender)
	}
	if snap.Timer != nil {
		t.Fatal("failed turn must not start a countdown")
	}
	if r.notifier.urgentCount() != 1 {
		t.Fatalf("expected 1 urgent notification, got %d", r.notifier.urgentCount())
	}

	// Retry is just submitting again.
	d.setErr(nil)
	if err := r.ctrl.Submit(context.Background(), "what's next?"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestTimerTurnStartsCountdown(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "Welcome!", NextState: domain.StateReadyToCook},
		{
			Text:      "Step 2: Cook the spaghetti until al dente. I've set a timer for 8 minutes.",
			NextState: domain.StateCooking,
			Audio:     []byte("narration-audio"),
			Timer: &domain.TimerSnapshot{
				Total:            480,
				Step:             2,
				Label:            "cooking",
				WarningThreshold: 20,
				ParallelTasks: []domain.ParallelTask{
					{Step: 3, Instruction: "Slice the garlic thinly.", EstimatedTime: 120},
				},
			},
		},
	}}
	r := setupController(t, d)
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "let's start cooking"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := r.ctrl.Snapshot()
	if snap.State != domain.StateCooking {
		t.Fatalf("state = %s, want cooking", snap.State)
	}
	if snap.Timer == nil {
		t.Fatal("session timer mirror not set")
	}
	if snap.Timer.Total != 480 {
		t.Fatalf("timer total = %d, want 480", snap.Timer.Total)
	}
	if snap.Timer.Remaining <= 0 || snap.Timer.Remaining > 480 {
		t.Fatalf("timer remaining = %d, want within (0, 480]", snap.Timer.Remaining)
	}
	if snap.CurrentStep != 2 {
		t.Fatalf("current step = %d, want 2", snap.CurrentStep)
	}
	if snap.StepStatuses[2] != domain.StepInProgress {
		t.Fatalf("step 2 status = %s, want in_progress", snap.StepStatuses[2])
	}
	if snap.StepStatuses[3] != domain.StepInProgress {
		t.Fatalf("parallel step 3 status = %s, want in_progress", snap.StepStatuses[3])
	}
	if len(snap.ActiveParallel) != 1 || snap.ActiveParallel[0] != 3 {
		t.Fatalf("active parallel = %v, want [3]", snap.ActiveParallel)
	}

	last, ok := snap.Log.Last()
	if !ok || last.Timer == nil || last.Timer.Total != 480 {
		t.Fatal("assistant message should carry the timer snapshot")
	}

	// The countdown is live: the mirror keeps shrinking.
	waitUntil(t, func() bool {
		s := r.ctrl.Snapshot()
		return s.Timer != nil && s.Timer.Remaining < 480
	}, "countdown never ticked")
}

func TestTimerCompletionRestartsCapture(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "Welcome!", NextState: domain.StateReadyToCook},
		{
			Text:      "Step 2: Cook the spaghetti. This one is quick.",
			NextState: domain.StateCooking,
			Timer: &domain.TimerSnapshot{
				Total: 3,
				Step:  2,
				Label: "cooking",
				ParallelTasks: []domain.ParallelTask{
					{Step: 3, Instruction: "Slice the garlic thinly.", EstimatedTime: 120},
				},
			},
		},
	}}
	r := setupController(t, d)
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "start"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitUntil(t, func() bool { return r.capture.startCount() >= 1 }, "capture never restarted after completion")

	snap := r.ctrl.Snapshot()
	if snap.Timer != nil {
		t.Fatal("timer mirror should be cleared on completion")
	}
	if len(snap.ActiveParallel) != 0 {
		t.Fatalf("parallel set should empty on completion, got %v", snap.ActiveParallel)
	}
	if r.notifier.urgentCount() < 1 {
		t.Fatal("completion should notify")
	}
	// Finishing a countdown does not finish the step; only the service
	// or its narration does that.
	if snap.StepStatuses[2] != domain.StepInProgress {
		t.Fatalf("step 2 status = %s, want in_progress", snap.StepStatuses[2])
	}
}

func TestUnchangedStateAppendsExactlyOneMessage(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "How many servings?", NextState: domain.StateAskingServings},
		{Text: "Two servings it is. Any substitutions?", NextState: domain.StateAskingServings},
	}}
	r := setupController(t, d)
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "two please"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := r.ctrl.Snapshot()
	if snap.State != domain.StateAskingServings {
		t.Fatalf("state = %s, want asking_servings", snap.State)
	}
	if got := snap.Log.Len(); got != 3 {
		t.Fatalf("log len = %d, want 3 (bootstrap + user + assistant)", got)
	}
}

func TestExplicitStatusesBeatInference(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "Welcome!", NextState: domain.StateCooking},
		{
			Text:      "Step 4: Toss everything together and serve.",
			NextState: domain.StateCooking,
			StepStatuses: map[int]domain.StepStatus{
				1: domain.StepCompleted,
				2: domain.StepInProgress,
			},
		},
	}}
	r := setupController(t, d)
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "done with the water"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := r.ctrl.Snapshot()
	if snap.StepStatuses[1] != domain.StepCompleted {
		t.Fatalf("step 1 status = %s, want completed", snap.StepStatuses[1])
	}
	if snap.StepStatuses[2] != domain.StepInProgress {
		t.Fatalf("step 2 status = %s, want in_progress", snap.StepStatuses[2])
	}
	if snap.CurrentStep != 2 {
		t.Fatalf("current step = %d, want 2 (explicit beats the narrated step 4)", snap.CurrentStep)
	}
	if snap.StepStatuses[4] != domain.StepNotStarted {
		t.Fatalf("step 4 status = %s, want not_started", snap.StepStatuses[4])
	}
}

func TestNarrationInferenceFallback(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "Welcome!", NextState: domain.StateCooking},
		{Text: "Step 3: Slice the garlic thinly.", NextState: domain.StateCooking},
		{Text: "Amazing work! You've completed all the steps.", NextState: domain.StateCooking},
	}}
	r := setupController(t, d)
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "next"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := r.ctrl.Snapshot()
	if snap.CurrentStep != 3 {
		t.Fatalf("current step = %d, want 3", snap.CurrentStep)
	}
	if snap.StepStatuses[3] != domain.StepInProgress {
		t.Fatalf("step 3 status = %s, want in_progress", snap.StepStatuses[3])
	}

	if err := r.ctrl.Submit(context.Background(), "all done"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap = r.ctrl.Snapshot()
	for step, status := range snap.StepStatuses {
		if status != domain.StepCompleted {
			t.Fatalf("step %d status = %s, want completed", step, status)
		}
	}
}

func TestRecipeSwitchReseeds(t *testing.T) {
	scaled := testRecipe()
	scaled.ID = "pasta-aglio-olio-x4"
	scaled.Title = "Pasta Aglio e Olio (4 servings)"
	scaled.Metadata.Servings = 4
	scaled.Steps = append(scaled.Steps, domain.Step{Number: 5, Instruction: "Garnish with extra parsley."})

	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "How many servings?", NextState: domain.StateAskingServings},
		{
			Text:            "I've scaled the recipe to 4 servings. Any substitutions?",
			NextState:       domain.StateAskingSubstitution,
			UpdatedRecipeID: "pasta-aglio-olio-x4",
		},
	}}
	r := setupController(t, d)
	r.recipes.recipes["pasta-aglio-olio-x4"] = scaled
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "four servings"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := r.ctrl.Snapshot()
	if snap.RecipeID != "pasta-aglio-olio-x4" {
		t.Fatalf("recipe id = %s, want pasta-aglio-olio-x4", snap.RecipeID)
	}
	if snap.RecipeTitle != scaled.Title {
		t.Fatalf("recipe title = %q, want %q", snap.RecipeTitle, scaled.Title)
	}
	if len(snap.StepStatuses) != len(scaled.Steps) {
		t.Fatalf("status universe = %d steps, want %d", len(snap.StepStatuses), len(scaled.Steps))
	}
	if snap.StepStatuses[5] != domain.StepNotStarted {
		t.Fatalf("new step 5 status = %s, want not_started", snap.StepStatuses[5])
	}
	if got := r.ctrl.Recipe().ID; got != "pasta-aglio-olio-x4" {
		t.Fatalf("controller recipe = %s, want pasta-aglio-olio-x4", got)
	}
}

func TestResumeRestoresSnapshot(t *testing.T) {
	r := setupController(t, &fakeDialogue{})

	stored := domain.NewSession("sess-1", testRecipe())
	stored.State = domain.StateCooking
	stored.CurrentStep = 2
	stored.StepStatuses[1] = domain.StepCompleted
	stored.StepStatuses[2] = domain.StepInProgress
	stored.ActiveParallel = []int{3}
	stored.Timer = &domain.TimerSnapshot{Total: 480, Remaining: 130, Step: 2, Label: "cooking"}
	stored.Log.Append(domain.Message{ID: "m1", Sender: domain.SenderAssistant, Text: "Step 2: Cook the spaghetti."})
	if err := r.store.Save(context.Background(), stored); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	if err := r.ctrl.Resume(context.Background(), "pasta-aglio-olio"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	snap := r.ctrl.Snapshot()
	if snap.ID != "sess-1" {
		t.Fatalf("session id = %s, want sess-1", snap.ID)
	}
	if snap.State != domain.StateCooking {
		t.Fatalf("state = %s, want cooking", snap.State)
	}
	if snap.CurrentStep != 2 {
		t.Fatalf("current step = %d, want 2", snap.CurrentStep)
	}
	if snap.StepStatuses[1] != domain.StepCompleted {
		t.Fatalf("step 1 status = %s, want completed", snap.StepStatuses[1])
	}
	if snap.Timer != nil {
		t.Fatal("a countdown must not survive a restart")
	}
	if len(snap.ActiveParallel) != 0 {
		t.Fatalf("parallel set should reset on resume, got %v", snap.ActiveParallel)
	}
	if snap.Log.Len() != 1 {
		t.Fatalf("transcript lost on resume, len = %d", snap.Log.Len())
	}
}

func TestResumeWithoutSnapshot(t *testing.T) {
	r := setupController(t, &fakeDialogue{})

	err := r.ctrl.Resume(context.Background(), "pasta-aglio-olio")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetStopsEverything(t *testing.T) {
	d := &fakeDialogue{results: []*domain.TurnResult{
		{Text: "Welcome!", NextState: domain.StateCooking},
		{
			Text:      "Step 2: Cook the spaghetti.",
			NextState: domain.StateCooking,
			Timer:     &domain.TimerSnapshot{Total: 480, Step: 2, Label: "cooking"},
		},
	}}
	r := setupController(t, d)
	startSession(t, r)

	if err := r.ctrl.Submit(context.Background(), "start"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r.ctrl.Reset()

	if r.ctrl.Active() {
		t.Fatal("session should be gone after reset")
	}
	if r.ctrl.Snapshot() != nil {
		t.Fatal("snapshot should be nil after reset")
	}
	if err := r.ctrl.Submit(context.Background(), "anyone there?"); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if r.capture.abortCount() < 1 {
		t.Fatal("reset should abort capture")
	}
	if r.playback.stopCount() < 1 {
		t.Fatal("reset should stop playback")
	}
}
