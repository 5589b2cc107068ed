package speech

import (
	"encoding/binary"
	"math"
	"time"
)

// Cue tones played around timer effects. Synthesized once at startup;
// tiny WAVs, kept in memory.
var (
	warningCue    []byte
	completionCue []byte
)

func init() {
	warningCue = synthesizeWAV([]toneSegment{
		{freq: 880, dur: 150 * time.Millisecond},
		{freq: 0, dur: 80 * time.Millisecond},
		{freq: 880, dur: 150 * time.Millisecond},
	})
	completionCue = synthesizeWAV([]toneSegment{
		{freq: 660, dur: 160 * time.Millisecond},
		{freq: 0, dur: 60 * time.Millisecond},
		{freq: 880, dur: 160 * time.Millisecond},
		{freq: 0, dur: 60 * time.Millisecond},
		{freq: 1100, dur: 260 * time.Millisecond},
	})
}

// WarningCue returns the double beep played when a timer hits its
// warning threshold.
func WarningCue() []byte { return warningCue }

// CompletionCue returns the rising triple beep played when a timer
// completes.
func CompletionCue() []byte { return completionCue }

// toneSegment is one piece of a cue. freq 0 means silence.
type toneSegment struct {
	freq float64
	dur  time.Duration
}

// synthesizeWAV renders the segments as a mono 16-bit WAV at the
// player's sample rate. A short fade at segment edges avoids clicks.
func synthesizeWAV(segments []toneSegment) []byte {
	var pcm []byte
	for _, seg := range segments {
		n := int(float64(SampleRate) * seg.dur.Seconds())
		fade := SampleRate / 100 // 10 ms
		for i := 0; i < n; i++ {
			var sample float64
			if seg.freq > 0 {
				sample = 0.4 * math.Sin(2*math.Pi*seg.freq*float64(i)/float64(SampleRate))
				if i < fade {
					sample *= float64(i) / float64(fade)
				}
				if n-i < fade {
					sample *= float64(n-i) / float64(fade)
				}
			}
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(int16(sample*math.MaxInt16)))
			pcm = append(pcm, buf[0], buf[1])
		}
	}
	return wrapWAV(pcm)
}

// wrapWAV prefixes raw PCM with a RIFF header matching the player's
// format.
func wrapWAV(pcm []byte) []byte {
	const headerLen = 44
	byteRate := SampleRate * ChannelCount * BitDepth / 8
	blockAlign := ChannelCount * BitDepth / 8

	out := make([]byte, headerLen+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(ChannelCount))
	binary.LittleEndian.PutUint32(out[24:28], uint32(SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(BitDepth))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[headerLen:], pcm)
	return out
}
