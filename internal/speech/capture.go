package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.Capture = (*CaptureManager)(nil)

// Backend records one spoken utterance and returns its finalized
// transcript. Interim results never leave the backend. A backend
// returns domain.ErrNoSignal when the utterance window closes without
// speech; any other error is treated as fatal for this capture.
type Backend interface {
	Record(ctx context.Context) (string, error)
}

// CaptureOption configures the CaptureManager.
type CaptureOption func(*CaptureManager)

// WithRestartBackoff sets the initial backoff before a no-signal
// restart. It doubles per consecutive restart, capped at 8x.
func WithRestartBackoff(d time.Duration) CaptureOption {
	return func(m *CaptureManager) { m.backoff = d }
}

// CaptureManager owns the listening half of the audio device. One
// Start produces at most one finalized transcript, delivered on C(),
// after which the manager returns to idle on its own.
type CaptureManager struct {
	backend  Backend
	playback domain.Playback // nil when running without audio out
	notifier domain.Notifier
	log      *logger.Logger
	backoff  time.Duration

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	textCh chan string
}

// NewCaptureManager creates a capture manager over a backend. playback
// may be nil; when set, Start refuses the device while audio is playing.
func NewCaptureManager(backend Backend, playback domain.Playback, notifier domain.Notifier, log *logger.Logger, opts ...CaptureOption) *CaptureManager {
	m := &CaptureManager{
		backend:  backend,
		playback: playback,
		notifier: notifier,
		log:      log,
		backoff:  500 * time.Millisecond,
		textCh:   make(chan string, 8),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// C returns the channel that delivers finalized transcripts.
func (m *CaptureManager) C() <-chan string { return m.textCh }

// Start begins listening for one utterance. No-op while already
// capturing or while playback holds the device.
func (m *CaptureManager) Start() {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		m.log.Debug("capture: start ignored, already listening")
		return
	}
	if m.playback != nil && m.playback.Playing() {
		m.mu.Unlock()
		m.log.Debug("capture: start ignored, playback holds the device")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.active = true
	m.cancel = cancel
	m.mu.Unlock()

	m.log.Debug("capture: listening")
	go m.run(ctx)
}

// run records until one transcript is finalized, a fatal error occurs,
// or the manager is stopped. No-signal windows restart recording with
// growing backoff, invisible to the user.
func (m *CaptureManager) run(ctx context.Context) {
	backoff := m.backoff

	for {
		transcript, err := m.backend.Record(ctx)
		if ctx.Err() != nil {
			// Stop or Abort already flipped the state.
			return
		}

		switch {
		case err == nil && transcript != "":
			m.idle()
			select {
			case m.textCh <- transcript:
			default:
				m.log.Warn("capture: transcript dropped, consumer not keeping up")
			}
			return

		case err == nil || errors.Is(err, domain.ErrNoSignal):
			m.log.Debug("capture: no speech, restarting in %s", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 8*m.backoff {
				backoff *= 2
			}

		default:
			m.log.Error("capture: %v", err)
			m.idle()
			if m.notifier != nil {
				m.notifier.NotifyUrgent(context.Background(), "Voice input failed. Type your reply, or say nothing and try again.")
			}
			return
		}
	}
}

func (m *CaptureManager) idle() {
	m.mu.Lock()
	m.active = false
	m.cancel = nil
	m.mu.Unlock()
}

// Stop cancels listening. Idempotent, safe when idle.
func (m *CaptureManager) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.active = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.log.Debug("capture: stopped")
}

// Abort cancels listening and throws away any transcript that was
// finalized but not yet consumed. Idempotent, safe when idle.
func (m *CaptureManager) Abort() {
	m.Stop()
	for {
		select {
		case <-m.textCh:
		default:
			return
		}
	}
}

// Active reports whether the manager is currently listening.
func (m *CaptureManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
