package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/recipe"
)

// stub is the canned conversation brain. It walks the same state machine
// as the real kitchen service but matches keywords instead of calling a
// language model. Swap in the real service for actual cooking.
type stub struct {
	source *recipe.MemorySource
	log    *logger.Logger

	mu     sync.Mutex
	steps  map[string]int                         // recipe id -> current step number
	offers map[string][]domain.SubstitutionOption // recipe id -> last offered substitutions
}

func newStub(source *recipe.MemorySource, log *logger.Logger) *stub {
	return &stub{
		source: source,
		log:    log,
		steps:  make(map[string]int),
		offers: make(map[string][]domain.SubstitutionOption),
	}
}

// reply is the outcome of one turn, ready for header encoding.
type reply struct {
	text      string
	spoken    string
	next      domain.ConversationState
	updatedID string
	timer     *wireTimer
	statuses  map[int]domain.StepStatus
	subs      []domain.SubstitutionOption
}

// wireTimer matches the timer JSON the client decodes. The service
// sends the enveloped form, so the stub does too.
type wireTimer struct {
	Duration      int                   `json:"duration"`
	Type          string                `json:"type"`
	Step          int                   `json:"step"`
	WarningTime   int                   `json:"warning_time"`
	ParallelTasks []domain.ParallelTask `json:"parallel_tasks,omitempty"`
}

// turn produces the canned response for one voice interaction.
func (b *stub) turn(ctx context.Context, recipeID string, state domain.ConversationState, transcript string) (*reply, error) {
	r, err := b.source.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	transcript = strings.TrimSpace(transcript)
	b.log.Debug("turn: recipe=%s state=%s transcript=%q", recipeID, state, transcript)

	switch state {
	case domain.StateInitialSummary:
		return b.opening(r), nil
	case domain.StateAskingServings:
		return b.servings(r, transcript), nil
	case domain.StateAskingSubstitution:
		return b.substitution(r, transcript), nil
	case domain.StateReadyToCook:
		return b.readyToCook(r, transcript), nil
	case domain.StateCooking:
		return b.cooking(r, transcript), nil
	default:
		return nil, fmt.Errorf("unhandled state %s", state)
	}
}

// ── Opening ──────────────────────────────────────────────────────

func (b *stub) opening(r *domain.Recipe) *reply {
	b.mu.Lock()
	b.steps[r.ID] = 0
	delete(b.offers, r.ID)
	b.mu.Unlock()

	items := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		items = append(items, ingredientLine(ing))
	}

	var t strings.Builder
	fmt.Fprintf(&t, "Let's make %s. It serves %d", r.Title, r.Metadata.Servings)
	if r.Metadata.CookTime != "" {
		fmt.Fprintf(&t, " and cooks in about %s", r.Metadata.CookTime)
	}
	t.WriteString(". You'll need: ")
	t.WriteString(joinSpoken(items))
	t.WriteString(". How many servings are you cooking for?")

	return &reply{
		text:   t.String(),
		spoken: fmt.Sprintf("Let's make %s. How many servings are you cooking for?", r.Title),
		next:   domain.StateAskingServings,
	}
}

// ── Servings ─────────────────────────────────────────────────────

func (b *stub) servings(r *domain.Recipe, transcript string) *reply {
	n, ok := parseCount(transcript)
	if !ok {
		return &reply{
			text: "Sorry, I didn't catch a number. How many servings should I plan for?",
			next: domain.StateAskingServings,
		}
	}

	if n == r.Metadata.Servings {
		return &reply{
			text: fmt.Sprintf("Perfect, the recipe already serves %d. Would you like to substitute any ingredient?", n),
			next: domain.StateAskingSubstitution,
		}
	}

	scaled := scaleForServings(r, n)
	b.source.Add(scaled)
	b.log.Info("scaled %s to %d servings as %s", r.ID, n, scaled.ID)

	return &reply{
		text:      fmt.Sprintf("Done, I've adjusted the quantities for %d servings. Would you like to substitute any ingredient?", n),
		next:      domain.StateAskingSubstitution,
		updatedID: scaled.ID,
	}
}

// ── Substitution ─────────────────────────────────────────────────

var (
	declineRe = regexp.MustCompile(`(?i)\b(no|nope|none|nothing|all good|as is|keep it)\b`)
	pickRe    = regexp.MustCompile(`(?i)\b(?:option|number)?\s*(one|two|first|second|1|2)\b`)
)

func (b *stub) substitution(r *domain.Recipe, transcript string) *reply {
	if declineRe.MatchString(transcript) {
		b.clearOffer(r.ID)
		return &reply{
			text: "Great, we'll keep the recipe as written. Tell me when you're ready to start cooking.",
			next: domain.StateReadyToCook,
		}
	}

	// A pending offer plus a pick ("option one") applies the swap.
	if offered := b.lastOffer(r.ID); len(offered) > 0 {
		if m := pickRe.FindStringSubmatch(transcript); m != nil {
			idx := pickIndex(m[1])
			if idx < len(offered) {
				opt := offered[idx]
				swapped := substituteIngredient(r, opt)
				b.source.Add(swapped)
				b.clearOffer(r.ID)
				b.log.Info("substituted %s with %s as %s", opt.Original, opt.Substitute, swapped.ID)
				return &reply{
					text:      fmt.Sprintf("Swapped %s for %s. Anything else, or are we ready to cook?", opt.Original, opt.Substitute),
					next:      domain.StateAskingSubstitution,
					updatedID: swapped.ID,
				}
			}
		}
	}

	// Name an ingredient and the stub offers its canned alternatives.
	if ing := matchIngredient(r, transcript); ing != nil {
		options := substitutionsFor(ing.Item)
		if len(options) == 0 {
			return &reply{
				text: fmt.Sprintf("I don't have a good substitute for %s, sorry. Anything else, or say no to keep the recipe as is.", ing.Item),
				next: domain.StateAskingSubstitution,
			}
		}
		b.setOffer(r.ID, options)

		lines := make([]string, 0, len(options))
		for i, opt := range options {
			lines = append(lines, fmt.Sprintf("option %s, %s", ordinalWord(i), opt.Substitute))
		}
		return &reply{
			text: fmt.Sprintf("For %s I can offer %s. Say which option you'd like, or no to keep it.",
				ing.Item, joinSpoken(lines)),
			next: domain.StateAskingSubstitution,
			subs: options,
		}
	}

	return &reply{
		text: "Name an ingredient you'd like to swap, or say no to keep the recipe as is.",
		next: domain.StateAskingSubstitution,
	}
}

func (b *stub) lastOffer(id string) []domain.SubstitutionOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offers[id]
}

func (b *stub) setOffer(id string, opts []domain.SubstitutionOption) {
	b.mu.Lock()
	b.offers[id] = opts
	b.mu.Unlock()
}

func (b *stub) clearOffer(id string) {
	b.mu.Lock()
	delete(b.offers, id)
	b.mu.Unlock()
}

// ── Ready to cook ────────────────────────────────────────────────

var startRe = regexp.MustCompile(`(?i)\b(start|begin|ready|yes|yeah|go|let'?s go)\b`)

func (b *stub) readyToCook(r *domain.Recipe, transcript string) *reply {
	if !startRe.MatchString(transcript) {
		return &reply{
			text: "Take your time. Say start whenever you're ready.",
			next: domain.StateReadyToCook,
		}
	}
	return b.advanceTo(r, 1)
}

// ── Cooking ──────────────────────────────────────────────────────

var (
	advanceRe  = regexp.MustCompile(`(?i)\b(next|done|finished|moving on|complete)\b`)
	repeatRe   = regexp.MustCompile(`(?i)\b(repeat|again|say that again|come again)\b`)
	howMuchRe  = regexp.MustCompile(`(?i)how (?:much|many)\s+(.+?)(?:\s+do\b|\?|$)`)
	whereRe    = regexp.MustCompile(`(?i)\b(where (are|were) we|which step|what step|status)\b`)
	checkRe    = regexp.MustCompile(`(?i)\b(how do i know|how can i tell|what should|look like|look for|is it (done|ready))\b`)
	ingWhatsRe = regexp.MustCompile(`(?i)\b(ingredients|what do i need)\b`)
)

func (b *stub) cooking(r *domain.Recipe, transcript string) *reply {
	current := b.currentStep(r.ID)

	switch {
	// Checkpoint questions first: "how do I know it's done" must not
	// trip the advance keywords.
	case checkRe.MatchString(transcript):
		step := r.StepByNumber(current)
		if step != nil && len(step.Checkpoints) > 0 {
			return &reply{
				text: "Here's what to look for: " + joinSpoken(step.Checkpoints) + ".",
				next: domain.StateCooking,
			}
		}
		return &reply{
			text: "Nothing specific to check here. Say next when you're done.",
			next: domain.StateCooking,
		}

	case advanceRe.MatchString(transcript):
		return b.advanceTo(r, current+1)

	case repeatRe.MatchString(transcript):
		step := r.StepByNumber(current)
		if step == nil {
			return b.advanceTo(r, 1)
		}
		// Re-narration never re-emits the timer; that would restart
		// the countdown on the client.
		return &reply{
			text: fmt.Sprintf("Step %d: %s", step.Number, step.Instruction),
			next: domain.StateCooking,
		}

	case howMuchRe.MatchString(transcript):
		m := howMuchRe.FindStringSubmatch(transcript)
		if ing := matchIngredient(r, m[1]); ing != nil {
			return &reply{
				text: fmt.Sprintf("You need %s.", ingredientLine(*ing)),
				next: domain.StateCooking,
			}
		}
		return &reply{
			text: "I don't see that ingredient in this recipe.",
			next: domain.StateCooking,
		}

	case ingWhatsRe.MatchString(transcript):
		items := make([]string, 0, len(r.Ingredients))
		for _, ing := range r.Ingredients {
			items = append(items, ingredientLine(ing))
		}
		return &reply{
			text: "You'll need " + joinSpoken(items) + ".",
			next: domain.StateCooking,
		}

	case whereRe.MatchString(transcript):
		step := r.StepByNumber(current)
		if step == nil {
			return &reply{text: "We haven't started yet. Say next to begin.", next: domain.StateCooking}
		}
		return &reply{
			text: fmt.Sprintf("We're on step %d of %d: %s", current, len(r.Steps), step.Instruction),
			next: domain.StateCooking,
		}
	}

	if current == 0 {
		return &reply{text: "Say next whenever you're ready for the first step.", next: domain.StateCooking}
	}
	return &reply{
		text: fmt.Sprintf("We're on step %d. Say next when you're done, or repeat to hear it again.", current),
		next: domain.StateCooking,
	}
}

// advanceTo moves the tracked position to step n and narrates it. Past
// the last step it announces completion instead.
func (b *stub) advanceTo(r *domain.Recipe, n int) *reply {
	statuses := make(map[int]domain.StepStatus, n)
	for i := 1; i < n; i++ {
		statuses[i] = domain.StepCompleted
	}

	if n > len(r.Steps) {
		b.setStep(r.ID, len(r.Steps))
		statuses[len(r.Steps)] = domain.StepCompleted
		return &reply{
			text:     "That's it, you completed all the steps. Enjoy your meal!",
			next:     domain.StateCooking,
			statuses: statuses,
		}
	}

	b.setStep(r.ID, n)
	statuses[n] = domain.StepInProgress

	step := r.StepByNumber(n)
	var t strings.Builder
	fmt.Fprintf(&t, "Step %d: %s", step.Number, step.Instruction)

	rep := &reply{
		spoken:   fmt.Sprintf("Step %d: %s", step.Number, firstSentence(step.Instruction)),
		next:     domain.StateCooking,
		statuses: statuses,
	}

	if step.Timer != nil {
		tasks := parallelTasksFor(r, n)
		rep.timer = &wireTimer{
			Duration:      step.Timer.Duration,
			Type:          step.Timer.Type,
			Step:          n,
			WarningTime:   20,
			ParallelTasks: tasks,
		}
		fmt.Fprintf(&t, " I've set a timer for %s.", spokenDuration(step.Timer.Duration))
		for _, task := range tasks {
			statuses[task.Step] = domain.StepInProgress
			fmt.Fprintf(&t, " Meanwhile: %s", task.Instruction)
		}
	}

	rep.text = t.String()
	return rep
}

func (b *stub) currentStep(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.steps[id]
}

func (b *stub) setStep(id string, n int) {
	b.mu.Lock()
	b.steps[id] = n
	b.mu.Unlock()
}

// parallelTasksFor lists the steps declared to run alongside step n.
func parallelTasksFor(r *domain.Recipe, n int) []domain.ParallelTask {
	var tasks []domain.ParallelTask
	for _, step := range r.Steps {
		for _, with := range step.ParallelWith {
			if with == n {
				tasks = append(tasks, domain.ParallelTask{
					Step:          step.Number,
					Instruction:   step.Instruction,
					EstimatedTime: step.EstimatedTime,
				})
				break
			}
		}
	}
	return tasks
}

// ── Recipe derivation ────────────────────────────────────────────

// derivedSuffixRe strips derivation markers so chained adjustments
// ("6 servings, then swap parsley") don't stack suffixes forever.
var derivedSuffixRe = regexp.MustCompile(`-(x\d+|sub-[a-z0-9-]+)$`)

func baseID(id string) string {
	for {
		stripped := derivedSuffixRe.ReplaceAllString(id, "")
		if stripped == id {
			return id
		}
		id = stripped
	}
}

// scaleForServings clones the recipe with ingredient amounts scaled to
// the requested serving count.
func scaleForServings(r *domain.Recipe, servings int) *domain.Recipe {
	scaled := cloneRecipe(r)
	if base := r.Metadata.Servings; base > 0 {
		factor := float64(servings) / float64(base)
		for i := range scaled.Ingredients {
			scaled.Ingredients[i].Amount = roundAmount(scaled.Ingredients[i].Amount * factor)
		}
	}
	scaled.Metadata.Servings = servings
	scaled.ID = fmt.Sprintf("%s-x%d", baseID(r.ID), servings)
	return scaled
}

// substituteIngredient clones the recipe with one ingredient replaced,
// rewriting step instructions that mention it so the narration stays
// consistent.
func substituteIngredient(r *domain.Recipe, opt domain.SubstitutionOption) *domain.Recipe {
	out := cloneRecipe(r)
	for i := range out.Ingredients {
		if !strings.EqualFold(out.Ingredients[i].Item, opt.Original) {
			continue
		}
		out.Ingredients[i].Item = opt.Substitute
		if amt, err := strconv.ParseFloat(opt.Amount, 64); err == nil && amt > 0 {
			out.Ingredients[i].Amount = amt
			out.Ingredients[i].Unit = opt.Unit
		}
		out.Ingredients[i].Notes = opt.Notes
		break
	}
	for i := range out.Steps {
		out.Steps[i].Instruction = replaceFold(out.Steps[i].Instruction, opt.Original, opt.Substitute)
	}
	out.ID = fmt.Sprintf("%s-sub-%s", baseID(r.ID), slug(opt.Substitute))
	return out
}

func cloneRecipe(r *domain.Recipe) *domain.Recipe {
	out := *r
	out.Ingredients = append([]domain.Ingredient(nil), r.Ingredients...)
	out.Steps = append([]domain.Step(nil), r.Steps...)
	for i := range out.Steps {
		if t := out.Steps[i].Timer; t != nil {
			copied := *t
			out.Steps[i].Timer = &copied
		}
		out.Steps[i].Checkpoints = append([]string(nil), out.Steps[i].Checkpoints...)
		out.Steps[i].ParallelWith = append([]int(nil), out.Steps[i].ParallelWith...)
	}
	out.Equipment = append([]string(nil), r.Equipment...)
	return &out
}

// replaceFold replaces old with new case-insensitively, preserving the
// surrounding text's casing.
func replaceFold(s, old, new string) string {
	lower := strings.ToLower(s)
	target := strings.ToLower(old)
	var out strings.Builder
	for {
		pos := strings.Index(lower, target)
		if pos == -1 {
			out.WriteString(s)
			return out.String()
		}
		out.WriteString(s[:pos])
		out.WriteString(new)
		s = s[pos+len(old):]
		lower = lower[pos+len(target):]
	}
}

// matchIngredient finds the first recipe ingredient mentioned in the
// text.
func matchIngredient(r *domain.Recipe, text string) *domain.Ingredient {
	lower := strings.ToLower(text)
	for i := range r.Ingredients {
		if strings.Contains(lower, strings.ToLower(r.Ingredients[i].Item)) {
			return &r.Ingredients[i]
		}
	}
	return nil
}

// ── Canned substitution knowledge ────────────────────────────────

var substitutionTable = map[string][]domain.SubstitutionOption{
	"parsley": {
		{Original: "parsley", Substitute: "basil", Amount: "2", Unit: "tablespoons",
			Notes: "sweeter, add at the very end", Instructions: "Tear the leaves rather than chopping to keep the aroma."},
		{Original: "parsley", Substitute: "chives", Amount: "3", Unit: "tablespoons",
			Notes: "mild onion note"},
	},
	"spaghetti": {
		{Original: "spaghetti", Substitute: "linguine", Amount: "200", Unit: "grams",
			Notes: "same cooking time"},
	},
	"red pepper flakes": {
		{Original: "red pepper flakes", Substitute: "cayenne pepper", Amount: "0.25", Unit: "teaspoon",
			Notes: "hotter, use half as much"},
	},
	"olive oil": {
		{Original: "olive oil", Substitute: "butter", Amount: "3", Unit: "tablespoons",
			Notes: "richer", Instructions: "Keep the heat lower so it doesn't brown too fast."},
	},
	"garlic": {
		{Original: "garlic", Substitute: "shallots", Amount: "2", Unit: "small",
			Notes: "milder", Instructions: "Slice thin and give them an extra minute to soften."},
	},
}

func substitutionsFor(item string) []domain.SubstitutionOption {
	return substitutionTable[strings.ToLower(item)]
}

// ── Text helpers ─────────────────────────────────────────────────

// countRe matches a bare serving count in the transcript.
var countRe = regexp.MustCompile(`\b(\d{1,2})\b`)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"dozen": 12,
}

// parseCount extracts a count from speech: digits first, then number
// words ("we're four tonight").
func parseCount(text string) (int, bool) {
	if m := countRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, true
		}
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if n, ok := numberWords[w]; ok {
			return n, true
		}
	}
	return 0, false
}

func pickIndex(word string) int {
	switch strings.ToLower(word) {
	case "one", "first", "1":
		return 0
	default:
		return 1
	}
}

func ordinalWord(i int) string {
	if i == 0 {
		return "one"
	}
	return "two"
}

// joinSpoken joins items for narration: "a, b, and c".
func joinSpoken(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 && i == len(items)-1 {
			b.WriteString(", and ")
		} else if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item)
	}
	return b.String()
}

func ingredientLine(ing domain.Ingredient) string {
	amount := strconv.FormatFloat(ing.Amount, 'f', -1, 64)
	if ing.Unit != "" {
		return fmt.Sprintf("%s %s of %s", amount, ing.Unit, ing.Item)
	}
	return fmt.Sprintf("%s %s", amount, ing.Item)
}

// firstSentence truncates text at the first sentence boundary, capped
// for the spoken-summary header.
func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i != -1 {
		text = text[:i+1]
	}
	r := []rune(text)
	if len(r) > 100 {
		text = string(r[:97]) + "..."
	}
	return text
}

func spokenDuration(seconds int) string {
	m := seconds / 60
	s := seconds % 60
	switch {
	case m == 0:
		return fmt.Sprintf("%d seconds", s)
	case s == 0 && m == 1:
		return "1 minute"
	case s == 0:
		return fmt.Sprintf("%d minutes", m)
	default:
		return fmt.Sprintf("%d minutes %d seconds", m, s)
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// roundAmount keeps scaled quantities speakable (2 decimal places).
func roundAmount(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
