package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

func TestMemorySourceGet(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	src := NewMemorySource(log)
	ctx := context.Background()

	tests := []struct {
		id      string
		wantErr error
	}{
		{"pasta-aglio-olio", nil},
		{"nonexistent", domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r, err := src.Get(ctx, tt.id)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(r.Steps) != 6 {
				t.Fatalf("expected 6 steps, got %d", len(r.Steps))
			}
			if len(r.Ingredients) == 0 || len(r.Equipment) == 0 {
				t.Fatal("recipe is missing ingredients or equipment")
			}
		})
	}
}

func TestMemorySourceSeededTimers(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	src := NewMemorySource(log)

	r, err := src.Get(context.Background(), "pasta-aglio-olio")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	wantTimers := map[int]int{1: 300, 2: 480, 3: 120, 5: 60}
	for n, duration := range wantTimers {
		step := r.StepByNumber(n)
		if step == nil || step.Timer == nil {
			t.Fatalf("step %d should carry a timer", n)
		}
		if step.Timer.Duration != duration {
			t.Fatalf("step %d timer = %ds, want %ds", n, step.Timer.Duration, duration)
		}
	}
	if step := r.StepByNumber(4); step.Timer != nil {
		t.Fatal("step 4 should not carry a timer")
	}
	if step := r.StepByNumber(3); len(step.ParallelWith) != 1 || step.ParallelWith[0] != 2 {
		t.Fatalf("step 3 should run parallel with step 2, got %v", step.ParallelWith)
	}
}

func TestMemorySourceAddAssignsID(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	src := NewMemorySource(log)

	added := src.Add(&domain.Recipe{Title: "Toast"})
	if added.ID == "" {
		t.Fatal("Add should assign an ID")
	}

	got, err := src.Get(context.Background(), added.ID)
	if err != nil {
		t.Fatalf("get after add: %v", err)
	}
	if got.Title != "Toast" {
		t.Fatalf("got %q", got.Title)
	}

	if err := src.Delete(added.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := src.Get(context.Background(), added.ID); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

const soupYAML = `title: Quick Tomato Soup
metadata:
  servings: 4
  prepTime: 10 minutes
  cookTime: 20 minutes
  difficulty: easy
ingredients:
  - item: canned tomatoes
    amount: 800
    unit: grams
steps:
  - step: 1
    instruction: Simmer the tomatoes with the stock.
    timer:
      duration: 900
      type: cooking
  - step: 2
    instruction: Blend until smooth and season.
equipment:
  - Blender
`

func TestFileSourceLoadsYAML(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "soup.yaml"), []byte(soupYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	// Non-recipe junk must not break loading.
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(":\t:::"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src, err := NewFileSource(dir, log)
	if err != nil {
		t.Fatalf("new file source: %v", err)
	}

	// ID defaults to the filename.
	r, err := src.Get(context.Background(), "soup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Title != "Quick Tomato Soup" || len(r.Steps) != 2 {
		t.Fatalf("unexpected recipe: %+v", r)
	}
	if r.Steps[0].Timer == nil || r.Steps[0].Timer.Duration != 900 {
		t.Fatalf("step timer lost in yaml decode: %+v", r.Steps[0].Timer)
	}

	summaries, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 recipe (broken one skipped), got %d", len(summaries))
	}
}

func TestFileSourceImport(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	src, err := NewFileSource(t.TempDir(), log)
	if err != nil {
		t.Fatalf("new file source: %v", err)
	}

	r, err := src.Import(context.Background(), soupYAML, "text")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if r.ID == "" {
		t.Fatal("imported recipe should get an ID")
	}

	if _, err := src.Import(context.Background(), "https://example.com/soup", "url"); err == nil {
		t.Fatal("url import should fail without a parser")
	}
	if _, err := src.Import(context.Background(), "just some words", "text"); err == nil {
		t.Fatal("non-recipe text should fail validation")
	}
}

// setupRecipeService runs a kitchen-service double serving the memory
// source's recipes over the real routes.
func setupRecipeService(t *testing.T) (*HTTPSource, *MemorySource) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	mem := NewMemorySource(log)

	router := chi.NewRouter()
	router.Get("/recipes", func(w http.ResponseWriter, r *http.Request) {
		all, _ := mem.List(r.Context())
		full := make([]*domain.Recipe, 0, len(all))
		for _, summary := range all {
			rec, _ := mem.Get(r.Context(), summary.ID)
			full = append(full, rec)
		}
		json.NewEncoder(w).Encode(full)
	})
	router.Get("/recipes/{recipeID}", func(w http.ResponseWriter, r *http.Request) {
		rec, err := mem.Get(r.Context(), chi.URLParam(r, "recipeID"))
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(rec)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return NewHTTPSource(srv.URL, log), mem
}

func TestHTTPSourceGetAndList(t *testing.T) {
	src, _ := setupRecipeService(t)
	ctx := context.Background()

	r, err := src.Get(ctx, "pasta-aglio-olio")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Title != "Spaghetti Aglio e Olio" || len(r.Steps) != 6 {
		t.Fatalf("recipe did not survive the wire: %+v", r)
	}

	if _, err := src.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	summaries, err := src.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Steps != 6 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}
