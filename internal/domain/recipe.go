// Package domain defines the core types and interfaces for the cooking
// companion. All other packages depend on domain; domain depends on nothing.
package domain

// Recipe is a parsed recipe as served by the kitchen service. Field tags
// match the service's JSON and the on-disk YAML recipe format.
type Recipe struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Metadata    Metadata     `json:"metadata" yaml:"metadata"`
	Ingredients []Ingredient `json:"ingredients" yaml:"ingredients"`
	Steps       []Step       `json:"steps" yaml:"steps"`
	Equipment   []string     `json:"equipment" yaml:"equipment"`
}

// Metadata carries recipe-level facts. Times are human strings
// ("15 minutes"), not durations; the service never computes with them.
type Metadata struct {
	Servings   int    `json:"servings" yaml:"servings"`
	PrepTime   string `json:"prepTime" yaml:"prepTime"`
	CookTime   string `json:"cookTime" yaml:"cookTime"`
	Difficulty string `json:"difficulty" yaml:"difficulty"`
}

// RecipeSummary is a lightweight view of a recipe for listing.
type RecipeSummary struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Servings int    `json:"servings" yaml:"servings"`
	Steps    int    `json:"steps" yaml:"steps"`
}

// Ingredient is a single ingredient line.
type Ingredient struct {
	Item   string  `json:"item" yaml:"item"`
	Amount float64 `json:"amount" yaml:"amount"`
	Unit   string  `json:"unit" yaml:"unit"`
	Notes  string  `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Step is a single numbered cooking step. Number is 1-based and unique
// within a recipe.
type Step struct {
	Number        int        `json:"step" yaml:"step"`
	Instruction   string     `json:"instruction" yaml:"instruction"`
	Timer         *StepTimer `json:"timer,omitempty" yaml:"timer,omitempty"`
	Checkpoints   []string   `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
	ParallelWith  []int      `json:"parallel_with,omitempty" yaml:"parallel_with,omitempty"`
	EstimatedTime int        `json:"estimated_time,omitempty" yaml:"estimated_time,omitempty"` // seconds
}

// StepTimer is the optional countdown attached to a timed step.
type StepTimer struct {
	Duration int    `json:"duration" yaml:"duration"` // seconds
	Type     string `json:"type" yaml:"type"`         // "prep", "cooking", "resting", ...
}

// Summary derives a RecipeSummary.
func (r *Recipe) Summary() RecipeSummary {
	return RecipeSummary{
		ID:       r.ID,
		Title:    r.Title,
		Servings: r.Metadata.Servings,
		Steps:    len(r.Steps),
	}
}

// StepByNumber returns the step with the given number, or nil.
func (r *Recipe) StepByNumber(n int) *Step {
	for i := range r.Steps {
		if r.Steps[i].Number == n {
			return &r.Steps[i]
		}
	}
	return nil
}
