package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/recipe"
)

const demoRecipe = "pasta-aglio-olio"

func newTestStub(t *testing.T) (*stub, *recipe.MemorySource) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	source := recipe.NewMemorySource(log)
	return newStub(source, log), source
}

// TestConversationFlow walks a full session against the built-in
// recipe: summary, scaling, a substitution, then cooking to the end.
func TestConversationFlow(t *testing.T) {
	b, source := newTestStub(t)
	ctx := context.Background()
	id := demoRecipe

	rep, err := b.turn(ctx, id, domain.StateInitialSummary, "")
	if err != nil {
		t.Fatalf("opening turn: %v", err)
	}
	if rep.next != domain.StateAskingServings {
		t.Fatalf("opening next = %s, want asking_servings", rep.next)
	}
	if !strings.Contains(rep.text, "How many servings") {
		t.Errorf("opening text missing servings question: %q", rep.text)
	}
	if !strings.Contains(rep.text, "spaghetti") {
		t.Errorf("opening text should read the ingredients: %q", rep.text)
	}

	rep, err = b.turn(ctx, id, domain.StateAskingServings, "there's four of us tonight")
	if err != nil {
		t.Fatalf("servings turn: %v", err)
	}
	if rep.updatedID != "pasta-aglio-olio-x4" {
		t.Fatalf("updatedID = %q, want pasta-aglio-olio-x4", rep.updatedID)
	}
	if rep.next != domain.StateAskingSubstitution {
		t.Errorf("servings next = %s, want asking_substitution", rep.next)
	}
	id = rep.updatedID

	scaled, err := source.Get(ctx, id)
	if err != nil {
		t.Fatalf("scaled recipe not stored: %v", err)
	}
	if scaled.Metadata.Servings != 4 {
		t.Errorf("scaled servings = %d, want 4", scaled.Metadata.Servings)
	}
	if got := scaled.Ingredients[0].Amount; got != 400 {
		t.Errorf("spaghetti amount = %v, want 400 after doubling", got)
	}

	rep, err = b.turn(ctx, id, domain.StateAskingSubstitution, "can I swap the parsley")
	if err != nil {
		t.Fatalf("substitution turn: %v", err)
	}
	if len(rep.subs) != 2 {
		t.Fatalf("expected 2 parsley options, got %d", len(rep.subs))
	}
	if rep.next != domain.StateAskingSubstitution {
		t.Errorf("offer should stay in asking_substitution, got %s", rep.next)
	}

	rep, err = b.turn(ctx, id, domain.StateAskingSubstitution, "option one please")
	if err != nil {
		t.Fatalf("pick turn: %v", err)
	}
	if rep.updatedID != "pasta-aglio-olio-sub-basil" {
		t.Fatalf("updatedID = %q, want pasta-aglio-olio-sub-basil", rep.updatedID)
	}
	id = rep.updatedID

	swapped, err := source.Get(ctx, id)
	if err != nil {
		t.Fatalf("swapped recipe not stored: %v", err)
	}
	var found bool
	for _, ing := range swapped.Ingredients {
		if ing.Item == "basil" {
			found = true
		}
		if ing.Item == "parsley" {
			t.Errorf("parsley should have been replaced")
		}
	}
	if !found {
		t.Errorf("basil missing from swapped recipe")
	}
	if last := swapped.Steps[len(swapped.Steps)-1].Instruction; !strings.Contains(last, "basil") {
		t.Errorf("final step instruction should mention basil: %q", last)
	}

	rep, err = b.turn(ctx, id, domain.StateAskingSubstitution, "no, that's everything")
	if err != nil {
		t.Fatalf("decline turn: %v", err)
	}
	if rep.next != domain.StateReadyToCook {
		t.Fatalf("decline next = %s, want ready_to_cook", rep.next)
	}

	rep, err = b.turn(ctx, id, domain.StateReadyToCook, "let's start")
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	if rep.next != domain.StateCooking {
		t.Fatalf("start next = %s, want cooking", rep.next)
	}
	if rep.statuses[1] != domain.StepInProgress {
		t.Errorf("step 1 should be in progress, got %v", rep.statuses[1])
	}
	if rep.timer == nil || rep.timer.Duration != 300 || rep.timer.Step != 1 {
		t.Fatalf("step 1 timer wrong: %+v", rep.timer)
	}

	// Step 2 has the pasta timer and step 3 runs alongside it.
	rep, err = b.turn(ctx, id, domain.StateCooking, "done, next")
	if err != nil {
		t.Fatalf("advance turn: %v", err)
	}
	if rep.statuses[1] != domain.StepCompleted || rep.statuses[2] != domain.StepInProgress {
		t.Errorf("statuses after advance = %v", rep.statuses)
	}
	if rep.statuses[3] != domain.StepInProgress {
		t.Errorf("parallel step 3 should be in progress, got %v", rep.statuses[3])
	}
	if rep.timer == nil || rep.timer.Duration != 480 {
		t.Fatalf("step 2 timer wrong: %+v", rep.timer)
	}
	if len(rep.timer.ParallelTasks) != 1 || rep.timer.ParallelTasks[0].Step != 3 {
		t.Errorf("parallel tasks = %+v", rep.timer.ParallelTasks)
	}
	if !strings.Contains(rep.text, "Meanwhile") {
		t.Errorf("narration should mention the parallel work: %q", rep.text)
	}

	// Repeating never re-emits the timer; that would restart it.
	rep, err = b.turn(ctx, id, domain.StateCooking, "say that again")
	if err != nil {
		t.Fatalf("repeat turn: %v", err)
	}
	if rep.timer != nil {
		t.Errorf("repeat should not carry a timer")
	}
	if !strings.Contains(rep.text, "Step 2:") {
		t.Errorf("repeat should re-read step 2: %q", rep.text)
	}

	// Walk the remaining steps off the end.
	for range swapped.Steps {
		rep, err = b.turn(ctx, id, domain.StateCooking, "next")
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if !strings.Contains(rep.text, "completed all the steps") {
		t.Errorf("final turn should announce completion: %q", rep.text)
	}
	for n := 1; n <= len(swapped.Steps); n++ {
		if rep.statuses[n] != domain.StepCompleted {
			t.Errorf("step %d = %v after completion, want completed", n, rep.statuses[n])
		}
	}
}

func TestTurnUnknownRecipe(t *testing.T) {
	b, _ := newTestStub(t)
	_, err := b.turn(context.Background(), "no-such-dish", domain.StateInitialSummary, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServingsReprompt(t *testing.T) {
	b, _ := newTestStub(t)
	rep, err := b.turn(context.Background(), demoRecipe, domain.StateAskingServings, "hmm not sure yet")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if rep.next != domain.StateAskingServings {
		t.Errorf("should re-ask, got %s", rep.next)
	}
	if rep.updatedID != "" {
		t.Errorf("no recipe should be derived, got %q", rep.updatedID)
	}
}

func TestServingsAlreadyMatching(t *testing.T) {
	b, _ := newTestStub(t)
	rep, err := b.turn(context.Background(), demoRecipe, domain.StateAskingServings, "just 2")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if rep.updatedID != "" {
		t.Errorf("matching count should not derive a recipe, got %q", rep.updatedID)
	}
	if rep.next != domain.StateAskingSubstitution {
		t.Errorf("next = %s, want asking_substitution", rep.next)
	}
}

func TestSubstitutionUnknownIngredient(t *testing.T) {
	b, _ := newTestStub(t)
	rep, err := b.turn(context.Background(), demoRecipe, domain.StateAskingSubstitution, "swap the saffron")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if rep.next != domain.StateAskingSubstitution || len(rep.subs) != 0 {
		t.Errorf("unknown ingredient should re-prompt without options")
	}
}

func TestSubstitutionNoKnownAlternative(t *testing.T) {
	b, _ := newTestStub(t)
	rep, err := b.turn(context.Background(), demoRecipe, domain.StateAskingSubstitution, "what about the salt")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if len(rep.subs) != 0 {
		t.Errorf("salt has no canned options, got %d", len(rep.subs))
	}
	if !strings.Contains(rep.text, "salt") {
		t.Errorf("reply should name the ingredient: %q", rep.text)
	}
}

func TestCheckpointQuestionDoesNotAdvance(t *testing.T) {
	b, _ := newTestStub(t)
	ctx := context.Background()

	if _, err := b.turn(ctx, demoRecipe, domain.StateReadyToCook, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := b.turn(ctx, demoRecipe, domain.StateCooking, "next"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	rep, err := b.turn(ctx, demoRecipe, domain.StateCooking, "how do I know when it's done?")
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	if !strings.Contains(rep.text, "look for") {
		t.Errorf("question should read checkpoints: %q", rep.text)
	}
	if b.currentStep(demoRecipe) != 2 {
		t.Errorf("question must not advance the step, now on %d", b.currentStep(demoRecipe))
	}
}

func TestIngredientAmountQuestion(t *testing.T) {
	b, _ := newTestStub(t)
	ctx := context.Background()

	if _, err := b.turn(ctx, demoRecipe, domain.StateReadyToCook, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	rep, err := b.turn(ctx, demoRecipe, domain.StateCooking, "how much garlic do I need")
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	if !strings.Contains(rep.text, "4 cloves of garlic") {
		t.Errorf("amount answer wrong: %q", rep.text)
	}
}

func TestOpeningResetsProgress(t *testing.T) {
	b, _ := newTestStub(t)
	ctx := context.Background()

	if _, err := b.turn(ctx, demoRecipe, domain.StateReadyToCook, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := b.turn(ctx, demoRecipe, domain.StateInitialSummary, ""); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := b.currentStep(demoRecipe); got != 0 {
		t.Errorf("opening should reset progress, step = %d", got)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"4", 4, true},
		{"make it 6 please", 6, true},
		{"there's four of us", 4, true},
		{"a dozen", 12, true},
		{"just the two of us", 2, true},
		{"not sure yet", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCount(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseCount(%q) = %d, %v; want %d, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestScaleForServingsRounds(t *testing.T) {
	r := &domain.Recipe{
		ID:       "soup",
		Metadata: domain.Metadata{Servings: 3},
		Ingredients: []domain.Ingredient{
			{Item: "stock", Amount: 1, Unit: "liter"},
		},
	}
	scaled := scaleForServings(r, 4)
	if scaled.ID != "soup-x4" {
		t.Errorf("id = %q", scaled.ID)
	}
	if scaled.Ingredients[0].Amount != 1.33 {
		t.Errorf("amount = %v, want 1.33", scaled.Ingredients[0].Amount)
	}
	// The source recipe stays untouched.
	if r.Ingredients[0].Amount != 1 || r.Metadata.Servings != 3 {
		t.Errorf("scaling must not mutate the original")
	}
}

func TestScaleStripsDerivedSuffix(t *testing.T) {
	r := &domain.Recipe{ID: "soup-x4", Metadata: domain.Metadata{Servings: 4}}
	if got := scaleForServings(r, 2).ID; got != "soup-x2" {
		t.Errorf("id = %q, want soup-x2", got)
	}
	r = &domain.Recipe{ID: "soup-x4-sub-basil", Metadata: domain.Metadata{Servings: 4}}
	if got := scaleForServings(r, 6).ID; got != "soup-x6" {
		t.Errorf("id = %q, want soup-x6", got)
	}
}

func TestReplaceFoldPreservesCase(t *testing.T) {
	got := replaceFold("Add the Parsley, then more parsley.", "parsley", "basil")
	want := "Add the basil, then more basil."
	if got != want {
		t.Errorf("replaceFold = %q, want %q", got, want)
	}
}
