package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/recipe"
)

// server exposes the kitchen service wire contract over a canned brain.
type server struct {
	source *recipe.MemorySource
	brain  *stub
	chime  []byte // audio body for voice responses, nil in silent mode
	log    *logger.Logger
}

func newServer(source *recipe.MemorySource, brain *stub, chime []byte, log *logger.Logger) *server {
	return &server{source: source, brain: brain, chime: chime, log: log}
}

func (s *server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/import", s.handleImport)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/voice-interaction", s.handleVoice)
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// ── Recipe endpoints ─────────────────────────────────────────────

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.All())
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.source.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "recipe not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.source.Delete(chi.URLParam(r, "id")); errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "recipe not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad import request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var rec *domain.Recipe
	var err error
	switch in.Type {
	case "url":
		// Fetching and scraping pages is the real service's job.
		http.Error(w, "the stub service does not fetch URLs; paste the recipe as markdown", http.StatusBadRequest)
		return
	case "markdown":
		rec, err = parseMarkdownRecipe(in.Content)
	default:
		rec, err = s.source.Import(r.Context(), in.Content, "text")
	}
	if err != nil {
		http.Error(w, "could not parse recipe: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.Type == "markdown" {
		rec = s.source.Add(rec)
	}

	s.log.Info("imported recipe %q as %s (%d steps)", rec.Title, rec.ID, len(rec.Steps))
	writeJSON(w, http.StatusOK, rec)
}

// ── Voice interaction ────────────────────────────────────────────

// voiceRequest mirrors the client's turn payload.
type voiceRequest struct {
	RecipeID     string `json:"recipe_id"`
	Transcript   string `json:"transcript"`
	CurrentState string `json:"current_state"`
}

func (s *server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var in voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad turn request: "+err.Error(), http.StatusBadRequest)
		return
	}
	state, ok := domain.StateFromString(in.CurrentState)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown state %q", in.CurrentState), http.StatusBadRequest)
		return
	}

	rep, err := s.brain.turn(r.Context(), chi.URLParam(r, "id"), state, in.Transcript)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "recipe not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeReply(w, rep)
}

// writeReply encodes a turn outcome into the response headers and audio
// body.
func (s *server) writeReply(w http.ResponseWriter, rep *reply) {
	b64 := func(v []byte) string { return base64.StdEncoding.EncodeToString(v) }

	spoken := rep.spoken
	if spoken == "" {
		spoken = firstSentence(rep.text)
	}

	h := w.Header()
	h.Set("X-Next-State", rep.next.String())
	h.Set("X-Response-Text", b64([]byte(spoken)))
	h.Set("X-Full-Response", b64([]byte(rep.text)))
	h.Set("X-Response-Text-Encoded", "true")
	if rep.updatedID != "" {
		h.Set("X-Updated-Recipe-Id", rep.updatedID)
	}

	if rep.timer != nil {
		// The real service wraps the timer in an envelope.
		payload, err := json.Marshal(map[string]*wireTimer{"timer": rep.timer})
		if err == nil {
			h.Set("X-Timer-Data", b64(payload))
		}
	}
	if len(rep.statuses) > 0 {
		wire := make(map[string]string, len(rep.statuses))
		for step, status := range rep.statuses {
			wire[strconv.Itoa(step)] = status.String()
		}
		if payload, err := json.Marshal(wire); err == nil {
			h.Set("X-Step-Statuses", b64(payload))
		}
	}
	if len(rep.subs) > 0 {
		if payload, err := json.Marshal(rep.subs); err == nil {
			h.Set("X-Substitution-Options", b64(payload))
		}
	}

	if len(s.chime) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.Set("Content-Type", "audio/wav")
	w.Write(s.chime)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
