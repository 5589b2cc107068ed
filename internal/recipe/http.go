// Package recipe provides recipe source implementations: the kitchen
// service API, YAML files on disk, and an in-memory store.
package recipe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.RecipeSource = (*HTTPSource)(nil)

// HTTPSource fetches recipes from the kitchen service.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithClient replaces the underlying HTTP client. Used by tests.
func WithClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.httpClient = c }
}

// NewHTTPSource creates a recipe source backed by the service at baseURL.
func NewHTTPSource(baseURL string, log *logger.Logger, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches one recipe by ID. A 404 maps to domain.ErrNotFound.
func (s *HTTPSource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	endpoint := fmt.Sprintf("%s/recipes/%s", s.baseURL, url.PathEscape(id))

	var r domain.Recipe
	if err := s.getJSON(ctx, endpoint, &r); err != nil {
		return nil, err
	}
	s.log.Debug("fetched recipe %s (%d steps)", r.ID, len(r.Steps))
	return &r, nil
}

// List fetches all recipes and reduces them to summaries.
func (s *HTTPSource) List(ctx context.Context) ([]domain.RecipeSummary, error) {
	var recipes []domain.Recipe
	if err := s.getJSON(ctx, s.baseURL+"/recipes", &recipes); err != nil {
		return nil, err
	}

	out := make([]domain.RecipeSummary, 0, len(recipes))
	for i := range recipes {
		out = append(out, recipes[i].Summary())
	}
	return out, nil
}

// Import sends raw recipe content (pasted text or a URL) to the service
// for parsing and returns the stored recipe.
func (s *HTTPSource) Import(ctx context.Context, content, kind string) (*domain.Recipe, error) {
	payload, err := json.Marshal(map[string]string{"content": content, "type": kind})
	if err != nil {
		return nil, fmt.Errorf("recipe: marshal import request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/recipes/import", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("recipe: build import request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recipe: import: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recipe: import returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r domain.Recipe
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("recipe: decode imported recipe: %w", err)
	}
	s.log.Info("imported recipe %q as %s", r.Title, r.ID)
	return &r, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("recipe: build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("recipe: fetch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("recipe: service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("recipe: decode response: %w", err)
	}
	return nil
}
