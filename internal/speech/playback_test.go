package speech

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/souschef/internal/logger"
)

// fakeSink is a Sink whose playback blocks until released.
type fakeSink struct {
	mu      sync.Mutex
	plays   int
	stops   int
	release chan struct{}
	err     error
}

func (s *fakeSink) PlayPCM(pcm []byte) error {
	s.mu.Lock()
	s.plays++
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	release := make(chan struct{})
	s.release = release
	s.mu.Unlock()

	<-release
	return nil
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	s.stops++
	if s.release != nil {
		close(s.release)
		s.release = nil
	}
	s.mu.Unlock()
}

// finish simulates the payload reaching its natural end.
func (s *fakeSink) finish() {
	s.mu.Lock()
	if s.release != nil {
		close(s.release)
		s.release = nil
	}
	s.mu.Unlock()
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

func (s *fakeSink) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// fakeDeviceCapture tracks the capture side of device arbitration.
type fakeDeviceCapture struct {
	mu     sync.Mutex
	active bool
	aborts int
}

func (c *fakeDeviceCapture) Start() {
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
}

func (c *fakeDeviceCapture) Stop() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func (c *fakeDeviceCapture) Abort() {
	c.mu.Lock()
	c.active = false
	c.aborts++
	c.mu.Unlock()
}

func (c *fakeDeviceCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeDeviceCapture) abortCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborts
}

func setupPlayback(t *testing.T) (*PlaybackManager, *fakeSink) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	sink := &fakeSink{}
	return NewPlaybackManager(sink, log), sink
}

func TestPlayEvictsCapture(t *testing.T) {
	mgr, sink := setupPlayback(t)
	capture := &fakeDeviceCapture{}
	mgr.BindCapture(capture)
	capture.Start()

	if err := mgr.Play(WarningCue()); err != nil {
		t.Fatalf("play: %v", err)
	}

	if capture.Active() {
		t.Fatal("capture still active while playback holds the device")
	}
	if capture.abortCount() != 1 {
		t.Fatalf("expected 1 capture abort, got %d", capture.abortCount())
	}
	if !mgr.Playing() {
		t.Fatal("expected playback active")
	}

	sink.finish()
}

func TestPlayFiresEndedOnNaturalCompletion(t *testing.T) {
	mgr, sink := setupPlayback(t)

	var mu sync.Mutex
	ended := 0
	mgr.SetOnEnded(func() {
		mu.Lock()
		ended++
		mu.Unlock()
	})

	if err := mgr.Play(CompletionCue()); err != nil {
		t.Fatalf("play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	sink.finish()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := ended
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected ended hook once, got %d", got)
	}
	if mgr.Playing() {
		t.Fatal("expected playback idle after completion")
	}
}

func TestStopSuppressesEndedHook(t *testing.T) {
	mgr, _ := setupPlayback(t)

	var mu sync.Mutex
	ended := 0
	mgr.SetOnEnded(func() {
		mu.Lock()
		ended++
		mu.Unlock()
	})

	if err := mgr.Play(WarningCue()); err != nil {
		t.Fatalf("play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	mgr.Stop()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := ended
	mu.Unlock()
	if got != 0 {
		t.Fatalf("ended hook fired %d times after interrupt", got)
	}
	if mgr.Playing() {
		t.Fatal("expected playback idle after stop")
	}

	// Safe when already idle.
	mgr.Stop()
}

func TestNewPlayReleasesPrevious(t *testing.T) {
	mgr, sink := setupPlayback(t)

	var mu sync.Mutex
	ended := 0
	mgr.SetOnEnded(func() {
		mu.Lock()
		ended++
		mu.Unlock()
	})

	if err := mgr.Play(WarningCue()); err != nil {
		t.Fatalf("first play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := mgr.Play(CompletionCue()); err != nil {
		t.Fatalf("second play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if sink.stopCount() != 1 {
		t.Fatalf("expected previous playback released once, got %d stops", sink.stopCount())
	}
	if !mgr.Playing() {
		t.Fatal("expected replacement playback active")
	}

	sink.finish()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := ended
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected ended hook only for the replacement, got %d", got)
	}
	if sink.playCount() != 2 {
		t.Fatalf("expected 2 sink plays, got %d", sink.playCount())
	}
}

func TestPlayRejectsUndecodablePayload(t *testing.T) {
	mgr, sink := setupPlayback(t)

	if err := mgr.Play([]byte("definitely not audio")); err == nil {
		t.Fatal("expected decode error")
	}
	if mgr.Playing() {
		t.Fatal("nothing should be playing after a decode failure")
	}
	if sink.playCount() != 0 {
		t.Fatalf("sink touched %d times for an undecodable payload", sink.playCount())
	}
}

func TestPlaybackErrorStillFiresEnded(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	sink := &fakeSink{err: errors.New("device gone")}
	mgr := NewPlaybackManager(sink, log)

	var mu sync.Mutex
	ended := 0
	mgr.SetOnEnded(func() {
		mu.Lock()
		ended++
		mu.Unlock()
	})

	if err := mgr.Play(WarningCue()); err != nil {
		t.Fatalf("play: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := ended
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected ended hook after playback error, got %d", got)
	}
	if mgr.Playing() {
		t.Fatal("expected playback idle after error")
	}
}
