package dialogue

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hammamikhairi/souschef/internal/domain"
)

// Response headers set by the kitchen service.
const (
	headerNextState       = "X-Next-State"
	headerUpdatedRecipeID = "X-Updated-Recipe-Id"
	headerResponseText    = "X-Response-Text"
	headerFullResponse    = "X-Full-Response"
	headerTextEncoded     = "X-Response-Text-Encoded"
	headerTimerData       = "X-Timer-Data"
	headerStepStatuses    = "X-Step-Statuses"
	headerSubstitutions   = "X-Substitution-Options"
)

// defaultWarningThreshold is what the service uses when a timer payload
// omits warning_time.
const defaultWarningThreshold = 20

// wireTimer is the timer payload. The service wraps it in an envelope
// ({"timer": {...}}); the flat form is accepted too.
type wireTimer struct {
	Duration      int                   `json:"duration"`
	Type          string                `json:"type"`
	Step          int                   `json:"step"`
	WarningTime   int                   `json:"warning_time"`
	ParallelTasks []domain.ParallelTask `json:"parallel_tasks"`
}

type wireTimerEnvelope struct {
	Timer *wireTimer `json:"timer"`
}

// parseHeaders decodes the side-channel metadata. Every optional field
// degrades independently: a field that fails to decode is logged and
// dropped, the rest of the turn survives.
func (c *Client) parseHeaders(h http.Header, req domain.TurnRequest) *domain.TurnResult {
	result := &domain.TurnResult{NextState: req.State}

	if raw := h.Get(headerNextState); raw != "" {
		if state, ok := domain.StateFromString(raw); ok {
			result.NextState = state
		} else {
			c.log.Warn("unknown next state %q, keeping %s", raw, req.State)
		}
	}

	result.UpdatedRecipeID = h.Get(headerUpdatedRecipeID)

	encoded := h.Get(headerTextEncoded) == "true"
	result.SpokenText = c.decodeText(h.Get(headerResponseText), encoded)
	result.Text = c.decodeText(h.Get(headerFullResponse), encoded)
	if result.Text == "" {
		result.Text = result.SpokenText
	}

	if raw := h.Get(headerTimerData); raw != "" {
		result.Timer = c.decodeTimer(raw)
	}
	if raw := h.Get(headerStepStatuses); raw != "" {
		result.StepStatuses = c.decodeStepStatuses(raw)
	}
	if raw := h.Get(headerSubstitutions); raw != "" {
		result.Substitutions = c.decodeSubstitutions(raw)
	}

	return result
}

// decodeText unpacks a header value that may be base64-wrapped. A value
// that fails to decode is used as-is; text is too important to drop.
func (c *Client) decodeText(raw string, encoded bool) string {
	if raw == "" || !encoded {
		return raw
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.log.Warn("undecodable text header, using raw value: %v", err)
		return raw
	}
	return string(data)
}

func (c *Client) decodeTimer(raw string) *domain.TimerSnapshot {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.log.Warn("dropping timer payload: bad base64: %v", err)
		return nil
	}

	var envelope wireTimerEnvelope
	wt := &wireTimer{}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Timer != nil {
		wt = envelope.Timer
	} else if err := json.Unmarshal(data, wt); err != nil {
		c.log.Warn("dropping timer payload: bad json: %v", err)
		return nil
	}

	if wt.Duration <= 0 {
		c.log.Warn("dropping timer payload: non-positive duration %d", wt.Duration)
		return nil
	}
	warning := wt.WarningTime
	if warning <= 0 {
		warning = defaultWarningThreshold
	}
	return &domain.TimerSnapshot{
		Total:            wt.Duration,
		Remaining:        wt.Duration,
		Step:             wt.Step,
		Label:            wt.Type,
		WarningThreshold: warning,
		ParallelTasks:    wt.ParallelTasks,
	}
}

func (c *Client) decodeStepStatuses(raw string) map[int]domain.StepStatus {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.log.Warn("dropping step statuses: bad base64: %v", err)
		return nil
	}
	var wire map[string]string
	if err := json.Unmarshal(data, &wire); err != nil {
		c.log.Warn("dropping step statuses: bad json: %v", err)
		return nil
	}

	out := make(map[int]domain.StepStatus, len(wire))
	for key, name := range wire {
		step, err := strconv.Atoi(key)
		if err != nil || step <= 0 {
			c.log.Warn("skipping step status with bad step %q", key)
			continue
		}
		status, ok := domain.StepStatusFromString(name)
		if !ok {
			c.log.Warn("skipping step %d with unknown status %q", step, name)
			continue
		}
		out[step] = status
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Client) decodeSubstitutions(raw string) []domain.SubstitutionOption {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.log.Warn("dropping substitution options: bad base64: %v", err)
		return nil
	}
	var options []domain.SubstitutionOption
	if err := json.Unmarshal(data, &options); err != nil {
		c.log.Warn("dropping substitution options: bad json: %v", err)
		return nil
	}
	return options
}
