package progress

import (
	"testing"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

func testRecipe() *domain.Recipe {
	return &domain.Recipe{
		ID:    "pasta-1",
		Title: "Test Pasta",
		Steps: []domain.Step{
			{Number: 1, Instruction: "Fill a large pot with water and bring to a boil."},
			{Number: 2, Instruction: "Dice the onion.", ParallelWith: []int{3}},
			{Number: 3, Instruction: "Simmer the sauce.", Timer: &domain.StepTimer{Duration: 480, Type: "cooking"}},
			{Number: 4, Instruction: "Drain the pasta."},
		},
	}
}

func setupTracker(t *testing.T) (*Tracker, *domain.Session) {
	t.Helper()
	recipe := testRecipe()
	tracker := NewTracker(recipe, logger.New(logger.LevelOff, nil))
	session := domain.NewSession("sess-1", recipe)
	return tracker, session
}

func TestParallelRelationIsSymmetric(t *testing.T) {
	tracker, _ := setupTracker(t)

	// Step 2 declares parallel_with 3; step 3 declares nothing.
	got := tracker.ParallelWith(3)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected step 3 to be parallel with [2], got %v", got)
	}
	got = tracker.ParallelWith(2)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected step 2 to be parallel with [3], got %v", got)
	}
}

func TestStatusesNeverRegress(t *testing.T) {
	tracker, session := setupTracker(t)

	if !tracker.MarkInProgress(session, 1) {
		t.Fatalf("expected first in_progress mark to change status")
	}
	if !tracker.MarkCompleted(session, 1) {
		t.Fatalf("expected completion mark to change status")
	}

	// Neither a repeat completion nor a new in_progress may move it back.
	if tracker.MarkCompleted(session, 1) {
		t.Fatalf("repeat completion reported a change")
	}
	if tracker.MarkInProgress(session, 1) {
		t.Fatalf("in_progress after completed reported a change")
	}
	if got := session.StepStatuses[1]; got != domain.StepCompleted {
		t.Fatalf("step 1 regressed to %s", got)
	}
}

func TestMergeExplicitWinsButNeverRegresses(t *testing.T) {
	tracker, session := setupTracker(t)
	tracker.MarkInProgress(session, 1)
	tracker.MarkCompleted(session, 2)

	tracker.Merge(session, map[int]domain.StepStatus{
		1: domain.StepCompleted,  // forward: applied
		2: domain.StepNotStarted, // backward: refused
		3: domain.StepInProgress, // fresh: applied
		9: domain.StepCompleted,  // unknown step: ignored
	})

	if got := session.StepStatuses[1]; got != domain.StepCompleted {
		t.Fatalf("expected explicit completion of step 1, got %s", got)
	}
	if got := session.StepStatuses[2]; got != domain.StepCompleted {
		t.Fatalf("step 2 regressed to %s", got)
	}
	if got := session.StepStatuses[3]; got != domain.StepInProgress {
		t.Fatalf("expected step 3 in_progress, got %s", got)
	}
	if _, ok := session.StepStatuses[9]; ok {
		t.Fatalf("unknown step 9 was added to the session")
	}
}

func TestApplyTimerSetsParallelSet(t *testing.T) {
	tracker, session := setupTracker(t)

	tracker.ApplyTimer(session, &domain.TimerSnapshot{
		Total: 480, Remaining: 480, Step: 3, WarningThreshold: 20,
		ParallelTasks: []domain.ParallelTask{
			{Step: 2, Instruction: "Dice the onion.", EstimatedTime: 120},
		},
	})

	if got := session.StepStatuses[3]; got != domain.StepInProgress {
		t.Fatalf("expected timer step in_progress, got %s", got)
	}
	if got := session.StepStatuses[2]; got != domain.StepInProgress {
		t.Fatalf("expected parallel task step in_progress, got %s", got)
	}
	if len(session.ActiveParallel) != 1 || session.ActiveParallel[0] != 2 {
		t.Fatalf("expected active parallel set [2], got %v", session.ActiveParallel)
	}

	tracker.ClearParallel(session)
	if len(session.ActiveParallel) != 0 {
		t.Fatalf("expected empty parallel set after clear, got %v", session.ActiveParallel)
	}
}

func TestAdvanceCompletesPreviousStep(t *testing.T) {
	tracker, session := setupTracker(t)

	tracker.Advance(session, 1)
	if session.CurrentStep != 1 {
		t.Fatalf("expected current step 1, got %d", session.CurrentStep)
	}
	tracker.Advance(session, 2)
	if got := session.StepStatuses[1]; got != domain.StepCompleted {
		t.Fatalf("expected step 1 completed after advancing, got %s", got)
	}
	if got := session.StepStatuses[2]; got != domain.StepInProgress {
		t.Fatalf("expected step 2 in_progress, got %s", got)
	}

	// Advancing to the same step is a no-op.
	tracker.Advance(session, 2)
	if got := session.StepStatuses[2]; got != domain.StepInProgress {
		t.Fatalf("re-advance changed step 2 to %s", got)
	}
}

func TestReseedKeepsSurvivingStatuses(t *testing.T) {
	tracker, session := setupTracker(t)
	tracker.MarkCompleted(session, 1)
	tracker.MarkInProgress(session, 2)

	rewritten := &domain.Recipe{
		ID:    "pasta-1",
		Title: "Test Pasta (adjusted)",
		Steps: []domain.Step{
			{Number: 1, Instruction: "Fill a large pot with water."},
			{Number: 2, Instruction: "Dice the onion finely."},
			{Number: 5, Instruction: "Garnish and serve."},
		},
	}
	tracker.Reseed(rewritten)
	tracker.SyncSession(session)

	if got := session.StepStatuses[1]; got != domain.StepCompleted {
		t.Fatalf("surviving step 1 lost its status, got %s", got)
	}
	if got := session.StepStatuses[2]; got != domain.StepInProgress {
		t.Fatalf("surviving step 2 lost its status, got %s", got)
	}
	if _, ok := session.StepStatuses[3]; ok {
		t.Fatalf("step 3 should have been dropped with the rewrite")
	}
	if got := session.StepStatuses[5]; got != domain.StepNotStarted {
		t.Fatalf("new step 5 should start not_started, got %s", got)
	}
}

func TestCompleteAll(t *testing.T) {
	tracker, session := setupTracker(t)
	tracker.MarkInProgress(session, 1)

	tracker.CompleteAll(session)
	done, total := tracker.Completed(session)
	if done != total || total != 4 {
		t.Fatalf("expected 4/4 completed, got %d/%d", done, total)
	}
}
