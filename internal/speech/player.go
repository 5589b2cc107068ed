package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/hammamikhairi/souschef/internal/logger"
)

// Player plays decoded PCM through the system audio device via oto.
// The kitchen service sends MP3; the stub service and the built-in cues
// send WAV. Both are decoded to the player's fixed format.
type Player struct {
	ctx    *oto.Context
	log    *logger.Logger
	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{ctx: ctx, log: log}, nil
}

// Play decodes and plays an audio payload synchronously. Blocks until
// playback finishes naturally or Stop is called.
func (p *Player) Play(payload []byte) error {
	pcm, err := DecodePCM(payload)
	if err != nil {
		return err
	}
	return p.PlayPCM(pcm)
}

// PlayPCM plays raw PCM in the player's format. Blocks until playback
// finishes naturally or Stop is called.
func (p *Player) PlayPCM(pcm []byte) error {
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	player.Play()
	p.log.Debug("audio player: playing %d bytes of PCM", len(pcm))

	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	return player.Close()
}

// Stop interrupts the currently playing audio, if any. Safe to call
// concurrently and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
		p.log.Debug("audio player: interrupted")
	}
}

// ── Decoding ─────────────────────────────────────────────────────

// DecodePCM converts a WAV or MP3 payload into raw PCM matching the
// player's format (SampleRate, mono, signed 16-bit LE).
func DecodePCM(payload []byte) ([]byte, error) {
	if len(payload) >= 12 && string(payload[0:4]) == "RIFF" && string(payload[8:12]) == "WAVE" {
		return extractPCM(payload)
	}
	return decodeMP3(payload)
}

// extractPCM walks the RIFF chunks and returns the raw PCM data.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}

	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	return nil, errors.New("data chunk not found in WAV")
}

// decodeMP3 decodes an MP3 payload, downmixes the decoder's stereo
// output to mono, and resamples to the player's rate when needed.
func decodeMP3(payload []byte) ([]byte, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	stereo, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}

	// go-mp3 always emits 16-bit stereo at the source sample rate.
	mono := downmix(stereo)
	if dec.SampleRate() != SampleRate {
		mono = resample(mono, dec.SampleRate(), SampleRate)
	}
	return mono, nil
}

// downmix averages interleaved stereo S16LE samples into mono.
func downmix(stereo []byte) []byte {
	frames := len(stereo) / 4
	mono := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(stereo[i*4:]))
		r := int16(binary.LittleEndian.Uint16(stereo[i*4+2:]))
		binary.LittleEndian.PutUint16(mono[i*2:], uint16((int32(l)+int32(r))/2))
	}
	return mono
}

// resample converts mono S16LE samples between rates by linear
// interpolation. Good enough for narration audio.
func resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 {
		return pcm
	}
	inFrames := len(pcm) / 2
	if inFrames == 0 {
		return pcm
	}
	outFrames := inFrames * to / from
	out := make([]byte, outFrames*2)
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * float64(from) / float64(to)
		idx := int(srcPos)
		if idx >= inFrames-1 {
			idx = inFrames - 2
			if idx < 0 {
				idx = 0
			}
		}
		frac := srcPos - float64(idx)
		a := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		b := a
		if idx+1 < inFrames {
			b = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}
		sample := int16(float64(a)*(1-frac) + float64(b)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}
