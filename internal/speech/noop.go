package speech

import (
	"sync"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.Capture  = (*NoopCapture)(nil)
	_ domain.Playback = (*NoopPlayback)(nil)
)

// NoopCapture is a capture that never hears anything. Used when voice
// is disabled; the session runs on typed input alone.
type NoopCapture struct{}

// NewNoopCapture creates a no-op capture.
func NewNoopCapture() *NoopCapture { return &NoopCapture{} }

// Start does nothing.
func (*NoopCapture) Start() {}

// Stop does nothing.
func (*NoopCapture) Stop() {}

// Abort does nothing.
func (*NoopCapture) Abort() {}

// Active reports false.
func (*NoopCapture) Active() bool { return false }

// C returns a nil channel, which blocks forever in a select.
func (*NoopCapture) C() <-chan string { return nil }

// NoopPlayback discards audio. It still honors the playback lifecycle:
// every Play "completes" immediately, so the session flow that waits
// for narration to end keeps working without a sound device.
type NoopPlayback struct {
	log *logger.Logger

	mu      sync.Mutex
	onEnded func()
}

// NewNoopPlayback creates a playback that discards audio.
func NewNoopPlayback(log *logger.Logger) *NoopPlayback {
	return &NoopPlayback{log: log}
}

// SetOnEnded registers the completion callback.
func (p *NoopPlayback) SetOnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

// Play discards the payload and reports immediate completion.
func (p *NoopPlayback) Play(payload []byte) error {
	p.log.Debug("playback no-op: discarding %d bytes", len(payload))
	p.mu.Lock()
	cb := p.onEnded
	p.mu.Unlock()
	if cb != nil {
		go cb()
	}
	return nil
}

// Stop does nothing.
func (p *NoopPlayback) Stop() {}

// Playing reports false.
func (p *NoopPlayback) Playing() bool { return false }
