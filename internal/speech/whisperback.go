package speech

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ Backend = (*WhisperBackend)(nil)

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)", "[laughter]", "(speaking French)", etc.
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z\s]*[\)\]]`)

// WhisperOption configures the WhisperBackend.
type WhisperOption func(*WhisperBackend)

// WithChunkDuration sets how long each recording chunk lasts.
func WithChunkDuration(d time.Duration) WhisperOption {
	return func(b *WhisperBackend) { b.chunkDuration = d }
}

// WithListenWindow caps how long one Record call listens before giving
// up on the utterance.
func WithListenWindow(d time.Duration) WhisperOption {
	return func(b *WhisperBackend) { b.listenWindow = d }
}

// WithTempDir sets the directory for temporary WAV files.
func WithTempDir(dir string) WhisperOption {
	return func(b *WhisperBackend) { b.tempDir = dir }
}

// WhisperBackend captures speech with a local Whisper model. It records
// short chunks, transcribing each, and treats a run of empty chunks as
// the end of the utterance. Fully offline.
type WhisperBackend struct {
	whisperBin string
	modelPath  string
	tempDir    string
	log        *logger.Logger

	chunkDuration time.Duration
	listenWindow  time.Duration
}

// NewWhisperBackend creates a whisper-based capture backend.
// Returns domain.ErrCaptureUnavailable (wrapped) when the whisper
// binary is not reachable, so the caller can fall back to typed input.
func NewWhisperBackend(whisperBin, modelPath string, log *logger.Logger, opts ...WhisperOption) (*WhisperBackend, error) {
	if _, err := exec.LookPath(whisperBin); err != nil {
		return nil, fmt.Errorf("speech: whisper binary %q: %w", whisperBin, domain.ErrCaptureUnavailable)
	}

	b := &WhisperBackend{
		whisperBin:    whisperBin,
		modelPath:     modelPath,
		tempDir:       ".souschef-stt",
		log:           log,
		chunkDuration: 1 * time.Second,
		listenWindow:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Record listens for one utterance and returns its transcript. A window
// with no speech at all returns domain.ErrNoSignal.
func (b *WhisperBackend) Record(ctx context.Context) (string, error) {
	deadline := time.After(b.listenWindow)
	var parts []string
	emptyRuns := 0
	heardSpeech := false
	// Before any speech, tolerate more silence. Once the user has
	// started, a shorter gap means they are done.
	const graceEmpty = 4
	const postSpeechEmpty = 2

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return b.finish(parts)
		default:
		}

		chunk, err := b.recordChunk(ctx, b.chunkDuration)
		if err != nil {
			return "", err
		}
		chunk = cleanTranscription(chunk)

		if chunk == "" {
			emptyRuns++
			maxEmpty := graceEmpty
			if heardSpeech {
				maxEmpty = postSpeechEmpty
			}
			if emptyRuns >= maxEmpty {
				return b.finish(parts)
			}
			continue
		}

		emptyRuns = 0
		heardSpeech = true
		b.log.Debug("whisper: chunk %q", chunk)
		parts = append(parts, chunk)
	}
}

func (b *WhisperBackend) finish(parts []string) (string, error) {
	combined := strings.TrimSpace(strings.Join(parts, " "))
	if combined == "" {
		return "", domain.ErrNoSignal
	}
	b.log.Info("whisper: heard %q", combined)
	return combined, nil
}

// recordChunk does one record-then-transcribe cycle.
func (b *WhisperBackend) recordChunk(ctx context.Context, duration time.Duration) (string, error) {
	var result string
	var wg sync.WaitGroup
	wg.Add(1)

	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := b.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(
		b.whisperBin,
		b.modelPath,
		b.tempDir,
		"wav",
		callback,
		verbose,
	)
	if err != nil {
		return "", fmt.Errorf("speech: transcriber init: %w", err)
	}

	if err := t.Start(); err != nil {
		return "", fmt.Errorf("speech: recording start: %w", err)
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		t.Stop()
		wg.Wait()
		return "", ctx.Err()
	}

	t.Stop()
	wg.Wait()

	return result, nil
}

// ── Transcription cleanup ────────────────────────────────────────

// cleanTranscription strips whitespace, normalizes newlines, and
// removes whisper artifacts: "[BLANK_AUDIO]", environmental
// annotations, timestamp prefixes, and the usual silence
// hallucinations.
func cleanTranscription(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)

	// Junk markers whisper emits for non-speech audio.
	junkPatterns := []string{
		"[BLANK_AUDIO]",
		"[BLANK AUDIO]",
		"(silence)",
		"[silence]",
		"(no speech)",
		"[no speech]",
		"[Music]",
		"(music)",
		"(background noise)",
		"(inaudible)",
		"(unintelligible)",
	}
	for _, j := range junkPatterns {
		s = strings.ReplaceAll(s, j, "")
		s = strings.ReplaceAll(s, strings.ToLower(j), "")
		s = strings.ReplaceAll(s, strings.ToUpper(j), "")
	}

	// Catch-all for the rest: "(dog barking)", "[laughter]", etc.
	s = envAnnotation.ReplaceAllString(s, "")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	s = strings.TrimSpace(s)

	// If what remains is just a known hallucination, discard entirely.
	hallucinations := []string{
		"...",
		"you",
		"Thank you.",
		"Thanks for watching!",
		"Thank you for watching.",
		"Bye.",
		"Bye!",
		"The end.",
	}
	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if strings.ToLower(h) == lower {
			return ""
		}
	}

	// Strip whisper timestamp prefixes like "[00:00:00.000 --> 00:00:05.000]".
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 {
			rest := strings.TrimSpace(s[idx+1:])
			if rest != "" {
				return rest
			}
		}
	}

	return s
}
