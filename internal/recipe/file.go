package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.RecipeSource = (*FileSource)(nil)

// FileSource reads recipes from YAML files in a directory. Files are
// loaded once at construction; recipes imported afterwards live only in
// memory. A recipe file without an id gets one derived from its filename.
type FileSource struct {
	mu      sync.RWMutex
	recipes map[string]*domain.Recipe
	log     *logger.Logger
}

// NewFileSource loads every *.yaml/*.yml file under dir. Files that fail
// to parse are skipped with a warning; an unreadable directory is an error.
func NewFileSource(dir string, log *logger.Logger) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recipe: read dir %s: %w", dir, err)
	}

	s := &FileSource{
		recipes: make(map[string]*domain.Recipe),
		log:     log,
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("skipping %s: %v", path, err)
			continue
		}

		var r domain.Recipe
		if err := yaml.Unmarshal(data, &r); err != nil {
			s.log.Warn("skipping %s: %v", path, err)
			continue
		}
		if r.ID == "" {
			r.ID = strings.TrimSuffix(entry.Name(), ext)
		}
		s.recipes[r.ID] = &r
	}

	s.log.Info("loaded %d recipe(s) from %s", len(s.recipes), dir)
	return s, nil
}

// Get returns a recipe by ID.
func (s *FileSource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// List returns summaries of all loaded recipes, sorted by title.
func (s *FileSource) List(ctx context.Context) ([]domain.RecipeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RecipeSummary, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// Import accepts YAML recipe text. There is no parser behind this source,
// so kind must be "text" and the content must already be a recipe document.
func (s *FileSource) Import(ctx context.Context, content, kind string) (*domain.Recipe, error) {
	if kind != "text" {
		return nil, fmt.Errorf("recipe: file source cannot import from %q, only yaml text", kind)
	}

	var r domain.Recipe
	if err := yaml.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("recipe: parse yaml: %w", err)
	}
	if r.Title == "" || len(r.Steps) == 0 {
		return nil, fmt.Errorf("recipe: yaml is missing a title or steps")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.recipes[r.ID] = &r
	s.mu.Unlock()

	s.log.Info("imported recipe %q as %s", r.Title, r.ID)
	return &r, nil
}
