package domain

// ConversationState is the phase of the guided dialogue. The wire protocol
// carries the snake_case names, so String and StateFromString must stay in
// sync with the kitchen service.
type ConversationState int

const (
	// StateInitialSummary is the opening narration phase, before the first
	// real user turn. Capture must not auto-start after playback here.
	StateInitialSummary ConversationState = iota
	// StateAskingServings collects the desired serving count.
	StateAskingServings
	// StateAskingSubstitution offers ingredient substitutions.
	StateAskingSubstitution
	// StateReadyToCook waits for the user to confirm they want to start.
	StateReadyToCook
	// StateCooking is the long-lived step-by-step phase. There is no
	// terminal state; cooking ends only with a session reset.
	StateCooking
)

// String returns the wire name of the state.
func (s ConversationState) String() string {
	switch s {
	case StateInitialSummary:
		return "initial_summary"
	case StateAskingServings:
		return "asking_servings"
	case StateAskingSubstitution:
		return "asking_substitution"
	case StateReadyToCook:
		return "ready_to_cook"
	case StateCooking:
		return "cooking"
	default:
		return "unknown"
	}
}

// stateNames maps wire names to ConversationState values.
var stateNames = map[string]ConversationState{
	"initial_summary":     StateInitialSummary,
	"asking_servings":     StateAskingServings,
	"asking_substitution": StateAskingSubstitution,
	"ready_to_cook":       StateReadyToCook,
	"cooking":             StateCooking,
}

// StateFromString converts a wire name to a ConversationState. The second
// return is false for unrecognized names.
func StateFromString(name string) (ConversationState, bool) {
	s, ok := stateNames[name]
	return s, ok
}
