package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
)

// sessionRecord is the on-disk JSON shape of a session snapshot. The
// live types carry a mutex-guarded message log and int enums, so they
// go through an explicit conversion rather than direct marshaling.
type sessionRecord struct {
	ID             string          `json:"id"`
	RecipeID       string          `json:"recipe_id"`
	RecipeTitle    string          `json:"recipe_title"`
	State          string          `json:"state"`
	CurrentStep    int             `json:"current_step"`
	StepStatuses   map[int]string  `json:"step_statuses"`
	ActiveParallel []int           `json:"active_parallel,omitempty"`
	Timer          *timerRecord    `json:"timer,omitempty"`
	Messages       []messageRecord `json:"messages"`
	StartedAt      time.Time       `json:"started_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type messageRecord struct {
	ID            string                      `json:"id"`
	Sender        string                      `json:"sender"`
	Text          string                      `json:"text"`
	SpokenText    string                      `json:"spoken_text,omitempty"`
	Timestamp     time.Time                   `json:"timestamp"`
	Timer         *timerRecord                `json:"timer,omitempty"`
	Substitutions []domain.SubstitutionOption `json:"substitutions,omitempty"`
}

type timerRecord struct {
	Total            int                   `json:"total"`
	Remaining        int                   `json:"remaining"`
	Step             int                   `json:"step"`
	Label            string                `json:"label,omitempty"`
	WarningThreshold int                   `json:"warning_threshold,omitempty"`
	ParallelTasks    []domain.ParallelTask `json:"parallel_tasks,omitempty"`
}

// encodeSession renders a session snapshot as JSON.
func encodeSession(s *domain.Session) ([]byte, error) {
	rec := sessionRecord{
		ID:             s.ID,
		RecipeID:       s.RecipeID,
		RecipeTitle:    s.RecipeTitle,
		State:          s.State.String(),
		CurrentStep:    s.CurrentStep,
		StepStatuses:   make(map[int]string, len(s.StepStatuses)),
		ActiveParallel: s.ActiveParallel,
		Timer:          encodeTimer(s.Timer),
		StartedAt:      s.StartedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	for step, status := range s.StepStatuses {
		rec.StepStatuses[step] = status.String()
	}
	if s.Log != nil {
		for _, msg := range s.Log.All() {
			rec.Messages = append(rec.Messages, messageRecord{
				ID:            msg.ID,
				Sender:        msg.Sender.String(),
				Text:          msg.Text,
				SpokenText:    msg.SpokenText,
				Timestamp:     msg.Timestamp,
				Timer:         encodeTimer(msg.Timer),
				Substitutions: msg.Substitutions,
			})
		}
	}
	return json.Marshal(rec)
}

// decodeSession rebuilds a session from its JSON snapshot.
func decodeSession(data []byte) (*domain.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode session: %w", err)
	}

	state, ok := domain.StateFromString(rec.State)
	if !ok {
		return nil, fmt.Errorf("storage: session %s has unknown state %q", rec.ID, rec.State)
	}

	s := &domain.Session{
		ID:             rec.ID,
		RecipeID:       rec.RecipeID,
		RecipeTitle:    rec.RecipeTitle,
		State:          state,
		Log:            domain.NewMessageLog(),
		CurrentStep:    rec.CurrentStep,
		StepStatuses:   make(map[int]domain.StepStatus, len(rec.StepStatuses)),
		ActiveParallel: rec.ActiveParallel,
		Timer:          decodeTimer(rec.Timer),
		StartedAt:      rec.StartedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	for step, name := range rec.StepStatuses {
		status, ok := domain.StepStatusFromString(name)
		if !ok {
			return nil, fmt.Errorf("storage: session %s has unknown status %q for step %d", rec.ID, name, step)
		}
		s.StepStatuses[step] = status
	}
	for _, msg := range rec.Messages {
		sender := domain.SenderAssistant
		if msg.Sender == domain.SenderUser.String() {
			sender = domain.SenderUser
		}
		s.Log.Append(domain.Message{
			ID:            msg.ID,
			Sender:        sender,
			Text:          msg.Text,
			SpokenText:    msg.SpokenText,
			Timestamp:     msg.Timestamp,
			Timer:         decodeTimer(msg.Timer),
			Substitutions: msg.Substitutions,
		})
	}
	return s, nil
}

func encodeTimer(t *domain.TimerSnapshot) *timerRecord {
	if t == nil {
		return nil
	}
	return &timerRecord{
		Total:            t.Total,
		Remaining:        t.Remaining,
		Step:             t.Step,
		Label:            t.Label,
		WarningThreshold: t.WarningThreshold,
		ParallelTasks:    t.ParallelTasks,
	}
}

func decodeTimer(r *timerRecord) *domain.TimerSnapshot {
	if r == nil {
		return nil
	}
	return &domain.TimerSnapshot{
		Total:            r.Total,
		Remaining:        r.Remaining,
		Step:             r.Step,
		Label:            r.Label,
		WarningThreshold: r.WarningThreshold,
		ParallelTasks:    r.ParallelTasks,
	}
}
