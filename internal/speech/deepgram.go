package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gen2brain/malgo"
	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ Backend = (*DeepgramBackend)(nil)

// DeepgramOption configures the DeepgramBackend.
type DeepgramOption func(*DeepgramBackend)

// WithDeepgramListenWindow caps how long one Record call streams before
// giving up on the utterance.
func WithDeepgramListenWindow(d time.Duration) DeepgramOption {
	return func(b *DeepgramBackend) { b.listenWindow = d }
}

// DeepgramBackend streams microphone audio to Deepgram's realtime API
// and collects one utterance per Record call. The capture device is
// opened once at construction; each Record starts it, routes its frames
// into a fresh websocket, and stops it again.
type DeepgramBackend struct {
	apiKey string
	log    *logger.Logger

	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	listenWindow time.Duration

	mu      sync.Mutex
	onAudio func([]byte)
}

// NewDeepgramBackend creates a capture backend streaming to Deepgram.
// Returns domain.ErrCaptureUnavailable (wrapped) when the API key is
// missing or no capture device can be opened, so the caller can fall
// back to typed input.
func NewDeepgramBackend(log *logger.Logger, opts ...DeepgramOption) (*DeepgramBackend, error) {
	apiKey := os.Getenv(EnvDeepgramKey)
	if apiKey == "" {
		return nil, fmt.Errorf("speech: %s not set: %w", EnvDeepgramKey, domain.ErrCaptureUnavailable)
	}

	b := &DeepgramBackend{
		apiKey:       apiKey,
		log:          log,
		listenWindow: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("speech: audio backend init (%v): %w", err, domain.ErrCaptureUnavailable)
	}
	b.audioContext = audioCtx

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * CaptureChannels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = CaptureSampleRate
	cfg.Capture.Format = format
	cfg.Capture.Channels = CaptureChannels
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = 480
	cfg.Periods = 3

	device, err := malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			b.mu.Lock()
			sink := b.onAudio
			b.mu.Unlock()
			if sink != nil {
				sink(pInput[:n])
			}
		},
	})
	if err != nil {
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("speech: capture device init (%v): %w", err, domain.ErrCaptureUnavailable)
	}
	b.device = device

	return b, nil
}

// Close releases the capture device and the audio context. The backend
// cannot Record afterwards.
func (b *DeepgramBackend) Close() {
	b.setSink(nil)
	if b.device != nil {
		b.device.Uninit()
		b.device = nil
	}
	if b.audioContext != nil {
		_ = b.audioContext.Uninit()
		b.audioContext.Free()
		b.audioContext = nil
	}
}

// Record streams the microphone until Deepgram reports the end of the
// utterance, then returns the accumulated transcript. A window with no
// speech at all returns domain.ErrNoSignal.
func (b *DeepgramBackend) Record(ctx context.Context) (string, error) {
	conn, err := b.dial()
	if err != nil {
		return "", err
	}

	var (
		finalsMu sync.Mutex
		finals   []string
		writeMu  sync.Mutex
	)
	ended := make(chan struct{})
	var endOnce sync.Once
	endUtterance := func() { endOnce.Do(func() { close(ended) }) }

	readErr := make(chan error, 1)
	go func() {
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if err.Error() != "websocket: close 1000 (normal)" {
					readErr <- err
				}
				return
			}
			if msgType == websocket.BinaryMessage {
				continue
			}
			b.processMessage(msg, &finalsMu, &finals, endUtterance)
		}
	}()

	b.setSink(func(audio []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
			b.log.Debug("deepgram: dropped audio frame: %v", err)
		}
	})

	teardown := func() {
		b.setSink(nil)
		if err := b.stopDevice(); err != nil {
			b.log.Warn("deepgram: %v", err)
		}
		writeMu.Lock()
		_ = conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)})
		writeMu.Unlock()
		conn.Close()
	}

	if err := b.startDevice(); err != nil {
		teardown()
		return "", err
	}

	window := time.NewTimer(b.listenWindow)
	defer window.Stop()

	select {
	case <-ctx.Done():
		teardown()
		return "", ctx.Err()
	case err := <-readErr:
		teardown()
		return "", fmt.Errorf("speech: deepgram stream: %w", err)
	case <-window.C:
	case <-ended:
	}
	teardown()

	finalsMu.Lock()
	combined := strings.TrimSpace(strings.Join(finals, " "))
	finalsMu.Unlock()
	if combined == "" {
		return "", domain.ErrNoSignal
	}
	b.log.Info("deepgram: heard %q", combined)
	return combined, nil
}

// processMessage handles one non-binary websocket message. Finals
// accumulate; SpeechFinal or UtteranceEnd after at least one final ends
// the utterance.
func (b *DeepgramBackend) processMessage(msg []byte, finalsMu *sync.Mutex, finals *[]string, endUtterance func()) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		b.log.Warn("deepgram: unparseable message: %v", err)
		return
	}

	switch api.TypeResponse(head.Type) {
	case api.TypeMessageResponse:
		var res api.MessageResponse
		if err := json.Unmarshal(msg, &res); err != nil {
			b.log.Warn("deepgram: unparseable result: %v", err)
			return
		}
		if len(res.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(res.Channel.Alternatives[0].Transcript)
		if !res.IsFinal {
			return
		}

		finalsMu.Lock()
		if transcript != "" {
			b.log.Debug("deepgram: final %q", transcript)
			*finals = append(*finals, transcript)
		}
		heard := len(*finals) > 0
		finalsMu.Unlock()

		if res.SpeechFinal && heard {
			endUtterance()
		}

	case api.TypeUtteranceEndResponse:
		finalsMu.Lock()
		heard := len(*finals) > 0
		finalsMu.Unlock()
		if heard {
			endUtterance()
		}

	case api.TypeSpeechStartedResponse:
		b.log.Debug("deepgram: speech started")
	}
}

func (b *DeepgramBackend) setSink(sink func([]byte)) {
	b.mu.Lock()
	b.onAudio = sink
	b.mu.Unlock()
}

func (b *DeepgramBackend) startDevice() error {
	if b.device == nil {
		return fmt.Errorf("speech: capture device not initialized")
	}
	if b.device.IsStarted() {
		return nil
	}
	if err := b.device.Start(); err != nil {
		return fmt.Errorf("speech: capture device start: %w", err)
	}
	return nil
}

func (b *DeepgramBackend) stopDevice() error {
	if b.device == nil || !b.device.IsStarted() {
		return nil
	}
	if err := b.device.Stop(); err != nil {
		return fmt.Errorf("speech: capture device stop: %w", err)
	}
	return nil
}

func (b *DeepgramBackend) dial() (*websocket.Conn, error) {
	listenURL, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	q := listenURL.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(CaptureSampleRate))
	q.Set("channels", strconv.Itoa(CaptureChannels))
	q.Set("model", "nova-3")
	q.Set("language", "en-US")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("endpointing", "300")
	q.Set("vad_events", "true")
	listenURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + b.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("speech: deepgram connect: %w", err)
	}
	return conn, nil
}
