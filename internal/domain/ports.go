package domain

import "context"

// TurnRequest is one user (or bootstrap) turn sent to the kitchen service.
// An empty Transcript requests the opening narration for the current state.
type TurnRequest struct {
	RecipeID   string
	Transcript string
	State      ConversationState
}

// TurnResult is the decoded response to a TurnRequest. Audio is the raw
// encoded payload; everything else arrives as side-channel metadata.
// Optional fields that fail to decode are dropped by the dialogue client,
// never surfaced as turn failures.
type TurnResult struct {
	Audio           []byte
	Text            string // full assistant text
	SpokenText      string // shorter spoken summary
	NextState       ConversationState
	UpdatedRecipeID string // non-empty when the service rewrote the recipe
	Timer           *TimerSnapshot
	StepStatuses    map[int]StepStatus // explicit statuses, nil if absent
	Substitutions   []SubstitutionOption
}

// Dialogue is the remote collaborator that decides what to say next.
// Exactly one Send may be outstanding at a time; the engine enforces that.
type Dialogue interface {
	Send(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// RecipeSource provides recipes. Implementations can be API-backed,
// YAML-file-based, or in-memory.
type RecipeSource interface {
	Get(ctx context.Context, id string) (*Recipe, error)
	List(ctx context.Context) ([]RecipeSummary, error)
	Import(ctx context.Context, content, kind string) (*Recipe, error)
}

// SessionStore persists session snapshots so a run can be resumed.
// Implementations can be in-memory or SQLite.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

// Notifier delivers messages to the user. Implementations can write to
// stdout or render into the TUI.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}

// Capture is the speech-input lifecycle. Start is a no-op while already
// capturing or while playback holds the audio device. Stop and Abort are
// idempotent and safe when idle.
type Capture interface {
	Start()
	Stop()
	Abort()
	Active() bool
}

// Playback is the speech-output lifecycle. Play decodes and plays one
// payload, stopping any active capture first; it returns once playback
// has started. Stop interrupts and is safe when idle.
type Playback interface {
	Play(payload []byte) error
	Stop()
	Playing() bool
}
