package domain

import "time"

// Session is the single authoritative record of one cooking run. It is
// owned exclusively by the conversation engine; every other component
// reads it through snapshots. There is deliberately no second copy of
// any of these fields anywhere in the program.
type Session struct {
	ID             string
	RecipeID       string
	RecipeTitle    string
	State          ConversationState
	Log            *MessageLog
	CurrentStep    int                // 0 until the first step is narrated
	StepStatuses   map[int]StepStatus // step number -> status
	ActiveParallel []int              // step numbers doable during the countdown
	Timer          *TimerSnapshot     // nil when no countdown is running
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// NewSession creates a session for the given recipe, starting at the
// opening narration phase.
func NewSession(id string, recipe *Recipe) *Session {
	now := time.Now()
	s := &Session{
		ID:           id,
		RecipeID:     recipe.ID,
		RecipeTitle:  recipe.Title,
		State:        StateInitialSummary,
		Log:          NewMessageLog(),
		StepStatuses: make(map[int]StepStatus, len(recipe.Steps)),
		StartedAt:    now,
		UpdatedAt:    now,
	}
	for _, step := range recipe.Steps {
		s.StepStatuses[step.Number] = StepNotStarted
	}
	return s
}

// StepStatus is the lifecycle marker of one recipe step. Within a session
// it only ever moves forward: not_started -> in_progress -> completed.
type StepStatus int

const (
	StepNotStarted StepStatus = iota
	StepInProgress
	StepCompleted
)

// String returns the wire name of the status.
func (s StepStatus) String() string {
	switch s {
	case StepNotStarted:
		return "not_started"
	case StepInProgress:
		return "in_progress"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StepStatusFromString converts a wire name to a StepStatus. The second
// return is false for unrecognized names.
func StepStatusFromString(name string) (StepStatus, bool) {
	switch name {
	case "not_started":
		return StepNotStarted, true
	case "in_progress":
		return StepInProgress, true
	case "completed":
		return StepCompleted, true
	default:
		return StepNotStarted, false
	}
}
