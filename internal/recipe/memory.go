package recipe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.RecipeSource = (*MemorySource)(nil)

// MemorySource holds recipes in memory. It backs the stub kitchen
// service and tests. Safe for concurrent use.
type MemorySource struct {
	mu      sync.RWMutex
	recipes map[string]*domain.Recipe
	log     *logger.Logger
}

// NewMemorySource creates a recipe source preloaded with the built-in
// demo recipe.
func NewMemorySource(log *logger.Logger) *MemorySource {
	src := &MemorySource{
		recipes: make(map[string]*domain.Recipe),
		log:     log,
	}
	src.seed()
	return src
}

// Get returns a recipe by ID.
func (s *MemorySource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		s.log.Debug("recipe not found: %s", id)
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// List returns summaries of all recipes, sorted by title.
func (s *MemorySource) List(ctx context.Context) ([]domain.RecipeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RecipeSummary, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// Import accepts YAML recipe text, like FileSource. The stub service
// wraps this with its own plain-text parsing.
func (s *MemorySource) Import(ctx context.Context, content, kind string) (*domain.Recipe, error) {
	if kind != "text" {
		return nil, fmt.Errorf("recipe: memory source cannot import from %q", kind)
	}

	var r domain.Recipe
	if err := yaml.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("recipe: parse yaml: %w", err)
	}
	if r.Title == "" || len(r.Steps) == 0 {
		return nil, fmt.Errorf("recipe: yaml is missing a title or steps")
	}

	return s.Add(&r), nil
}

// All returns every stored recipe, sorted by title. The stub service
// serves its listing endpoint from this.
func (s *MemorySource) All() []*domain.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// Add stores a recipe, assigning an ID if it has none, and returns it.
// The service creates derived recipes this way (servings adjustments and
// substitutions always produce a new recipe with a new ID).
func (s *MemorySource) Add(r *domain.Recipe) *domain.Recipe {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.recipes[r.ID] = r
	s.mu.Unlock()

	s.log.Debug("stored recipe %q as %s", r.Title, r.ID)
	return r
}

// Delete removes a recipe. Returns domain.ErrNotFound if absent.
func (s *MemorySource) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recipes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.recipes, id)
	return nil
}

// seed populates the source with built-in recipes.
func (s *MemorySource) seed() {
	for _, r := range []*domain.Recipe{pastaAglioOlio()} {
		s.recipes[r.ID] = r
	}
	s.log.Debug("seeded %d recipe(s)", len(s.recipes))
}

// pastaAglioOlio is the built-in demo recipe. Step 3 runs in parallel
// with step 2 (the garlic oil is made while the pasta cooks).
func pastaAglioOlio() *domain.Recipe {
	return &domain.Recipe{
		ID:    "pasta-aglio-olio",
		Title: "Spaghetti Aglio e Olio",
		Metadata: domain.Metadata{
			Servings:   2,
			PrepTime:   "5 minutes",
			CookTime:   "15 minutes",
			Difficulty: "easy",
		},
		Ingredients: []domain.Ingredient{
			{Item: "spaghetti", Amount: 200, Unit: "grams"},
			{Item: "olive oil", Amount: 3, Unit: "tablespoons", Notes: "extra virgin"},
			{Item: "garlic", Amount: 4, Unit: "cloves", Notes: "thinly sliced"},
			{Item: "red pepper flakes", Amount: 0.5, Unit: "teaspoon", Notes: "optional"},
			{Item: "parsley", Amount: 2, Unit: "tablespoons", Notes: "freshly chopped"},
			{Item: "salt", Amount: 1, Unit: "teaspoon", Notes: "for pasta water"},
		},
		Steps: []domain.Step{
			{
				Number:      1,
				Instruction: "Bring a large pot of water to a boil. Add salt.",
				Timer:       &domain.StepTimer{Duration: 300, Type: "prep"},
				Checkpoints: []string{
					"Water should be rolling with big bubbles",
					"Water should taste like the sea",
				},
			},
			{
				Number:      2,
				Instruction: "Add pasta to the boiling water and cook until al dente.",
				Timer:       &domain.StepTimer{Duration: 480, Type: "cooking"},
				Checkpoints: []string{
					"Stir immediately after adding to prevent sticking",
					"Test pasta 1 minute before timer ends",
					"Pasta should be firm but not hard when bitten",
				},
			},
			{
				Number:        3,
				Instruction:   "While pasta cooks, heat olive oil in a large pan over medium heat. Add sliced garlic and red pepper flakes.",
				Timer:         &domain.StepTimer{Duration: 120, Type: "cooking"},
				ParallelWith:  []int{2},
				EstimatedTime: 120,
				Checkpoints: []string{
					"Garlic should turn golden, not brown",
					"If garlic browns, it will become bitter",
					"Oil should be shimmering but not smoking",
				},
			},
			{
				Number:      4,
				Instruction: "Reserve 1 cup of pasta water, then drain pasta.",
				Checkpoints: []string{
					"Don't forget to save the pasta water",
					"Pasta should still be very hot",
					"Don't rinse the pasta",
				},
			},
			{
				Number:      5,
				Instruction: "Add pasta to the pan with garlic oil. Toss well. Add some pasta water if needed.",
				Timer:       &domain.StepTimer{Duration: 60, Type: "cooking"},
				Checkpoints: []string{
					"Pasta should be well coated with oil",
					"Add pasta water gradually, 2-3 tablespoons at a time",
					"Sauce should cling to pasta",
				},
			},
			{
				Number:      6,
				Instruction: "Finish with fresh parsley, toss once more, and serve immediately.",
				Checkpoints: []string{
					"Parsley should be fresh and bright green",
					"Pasta should be glossy with oil",
					"Serve while very hot",
				},
			},
		},
		Equipment: []string{
			"Large pot for pasta",
			"Large frying pan",
			"Colander",
			"Measuring cups and spoons",
			"Sharp knife",
			"Cutting board",
		},
	}
}
