package main

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Audio format of the response body. Matches what the client's player
// expects for WAV payloads.
const (
	chimeRate  = 24000
	chimeDepth = 16
)

// chimeWAV synthesizes the short acknowledgment tone sent as the audio
// body of every voice response. It stands in for the real service's
// synthesized narration so the client's playback path gets exercised
// end to end.
func chimeWAV() []byte {
	notes := []struct {
		freq float64
		ms   int
	}{
		{523.25, 110}, // C5
		{0, 40},
		{783.99, 170}, // G5
	}

	var pcm bytes.Buffer
	for _, note := range notes {
		n := chimeRate * note.ms / 1000
		fade := chimeRate * 12 / 1000
		for i := 0; i < n; i++ {
			var v float64
			if note.freq > 0 {
				v = 0.35 * math.Sin(2*math.Pi*note.freq*float64(i)/chimeRate)
				switch {
				case i < fade:
					v *= float64(i) / float64(fade)
				case n-i < fade:
					v *= float64(n-i) / float64(fade)
				}
			}
			binary.Write(&pcm, binary.LittleEndian, int16(v*math.MaxInt16))
		}
	}
	return riffWrap(pcm.Bytes())
}

// riffWrap builds a minimal mono PCM WAV file around raw sample data.
func riffWrap(pcm []byte) []byte {
	le := binary.LittleEndian

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, le, uint32(36+len(pcm)))
	out.WriteString("WAVEfmt ")
	binary.Write(&out, le, uint32(16)) // fmt chunk size
	binary.Write(&out, le, uint16(1))  // PCM, uncompressed
	binary.Write(&out, le, uint16(1))  // mono
	binary.Write(&out, le, uint32(chimeRate))
	binary.Write(&out, le, uint32(chimeRate*chimeDepth/8)) // byte rate
	binary.Write(&out, le, uint16(chimeDepth/8))           // block align
	binary.Write(&out, le, uint16(chimeDepth))
	out.WriteString("data")
	binary.Write(&out, le, uint32(len(pcm)))
	out.Write(pcm)
	return out.Bytes()
}
