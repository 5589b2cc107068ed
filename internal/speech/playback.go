package speech

import (
	"sync"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.Playback = (*PlaybackManager)(nil)

// Sink is the low-level audio output PlaybackManager drives. *Player
// satisfies it; tests substitute a fake.
type Sink interface {
	// PlayPCM blocks until the PCM finishes playing or Stop is called.
	PlayPCM(pcm []byte) error
	Stop()
}

// PlaybackManager owns the speaking half of the audio device. One
// payload plays at a time; a new Play fully releases the previous one
// before starting. Capture is stopped before the device is taken.
type PlaybackManager struct {
	sink Sink
	log  *logger.Logger

	mu          sync.Mutex
	playing     bool
	interrupted bool
	gen         uint64
	capture     domain.Capture
	onEnded     func()
}

// NewPlaybackManager creates a playback manager on top of a sink.
func NewPlaybackManager(sink Sink, log *logger.Logger) *PlaybackManager {
	return &PlaybackManager{sink: sink, log: log}
}

// BindCapture points the manager at the capture side so it can evict it
// from the device before playing. Called once during wiring.
func (p *PlaybackManager) BindCapture(c domain.Capture) {
	p.mu.Lock()
	p.capture = c
	p.mu.Unlock()
}

// SetOnEnded registers the playback-ended hook. It fires after natural
// completion and after a playback error (the session must return to an
// interactable condition either way), never after Stop or replacement.
func (p *PlaybackManager) SetOnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

// Play decodes the payload, stops any active capture, releases the
// previous playback if one is running, and starts the new one. Returns
// once playback has started; decode failures are returned synchronously.
func (p *PlaybackManager) Play(payload []byte) error {
	pcm, err := DecodePCM(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	capture := p.capture
	wasPlaying := p.playing
	p.playing = true
	p.interrupted = false
	p.mu.Unlock()

	// Device exclusivity: the microphone goes first.
	if capture != nil {
		capture.Abort()
	}
	if wasPlaying {
		// The superseded goroutine unblocks, sees a newer generation,
		// and exits without touching state.
		p.sink.Stop()
	}

	go p.run(gen, pcm)
	return nil
}

func (p *PlaybackManager) run(gen uint64, pcm []byte) {
	err := p.sink.PlayPCM(pcm)

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.playing = false
	fireEnded := !p.interrupted
	cb := p.onEnded
	p.mu.Unlock()

	if err != nil {
		p.log.Error("playback: %v", err)
	}
	if fireEnded && cb != nil {
		cb()
	}
}

// Stop interrupts playback without firing the ended hook. Safe and
// idempotent when idle.
func (p *PlaybackManager) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.interrupted = true
	p.mu.Unlock()

	p.sink.Stop()
	p.log.Debug("playback: stopped")
}

// Playing reports whether a payload is currently playing.
func (p *PlaybackManager) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
