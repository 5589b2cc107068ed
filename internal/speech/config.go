// Package speech owns the audio device: capture (speech-to-text) and
// playback of the service's narration audio. Capture and playback
// arbitrate the device between themselves; they are never active at the
// same time.
package speech

// Playback parameters. The kitchen service narrates in 24 kHz mono;
// payloads at other rates are resampled on decode.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Capture parameters for the streaming backend. Deepgram wants plain
// 16 kHz mono linear16.
const (
	CaptureSampleRate = 16000
	CaptureChannels   = 1
)

// Env var names for the capture backends.
const (
	EnvDeepgramKey  = "DEEPGRAM_API_KEY"
	EnvWhisperBin   = "SOUSCHEF_WHISPER_BIN"
	EnvWhisperModel = "SOUSCHEF_WHISPER_MODEL"
)
