package domain

import (
	"sync"
	"time"
)

// Sender identifies who produced a message.
type Sender int

const (
	SenderUser Sender = iota
	SenderAssistant
)

// String returns a human-readable sender name.
func (s Sender) String() string {
	if s == SenderUser {
		return "user"
	}
	return "assistant"
}

// Message is one entry of the dialogue transcript. Messages are immutable
// once appended; the log hands out copies only.
type Message struct {
	ID            string
	Sender        Sender
	Text          string // full text for display
	SpokenText    string // shorter spoken summary, may equal Text
	Timestamp     time.Time
	Timer         *TimerSnapshot // countdown attached to this turn, if any
	Substitutions []SubstitutionOption
}

// TimerSnapshot describes a countdown as attached to a message and as
// mirrored on the session while it runs. Total is always explicit; nothing
// in the program derives a duration from the step number.
type TimerSnapshot struct {
	Total            int // seconds
	Remaining        int // seconds
	Step             int // step number the countdown belongs to
	Label            string
	WarningThreshold int // seconds remaining at which the warning fires
	ParallelTasks    []ParallelTask
}

// ParallelTask is a step the user can safely work on while a countdown
// runs.
type ParallelTask struct {
	Step          int    `json:"step_number"`
	Instruction   string `json:"instruction"`
	EstimatedTime int    `json:"estimated_time"` // seconds
}

// SubstitutionOption is one ingredient swap offered by the kitchen
// service during the substitution phase.
type SubstitutionOption struct {
	Original     string `json:"original"`
	Substitute   string `json:"substitute"`
	Amount       string `json:"amount"`
	Unit         string `json:"unit"`
	Notes        string `json:"notes"`
	Instructions string `json:"instructions"`
}

// MessageLog is the append-only transcript of a session. Entries are never
// edited, reordered, or removed. Safe for concurrent use.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds a message to the end of the log.
func (l *MessageLog) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// All returns a copy of the transcript in arrival order.
func (l *MessageLog) All() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Last returns the most recent message and true, or a zero message and
// false when the log is empty.
func (l *MessageLog) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Len reports the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
