package services

import (
	"context"
	"errors"
)

// ---------------------------------------------------------------------------
// TTSService is the common interface for text-to-speech providers
// Gemini TTS and ElevenLabs both implement it, so the audio stage can use
// whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// ErrSpeechBlocked marks narration text that the provider's safety filters
// refused to voice. The part is skipped, not retried.
var ErrSpeechBlocked = errors.New("speech generation blocked by safety filters")

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	SampleRate int
	Format     string // always "wav" for the pipeline's artifact contract
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text to audio. styleInstruction is a
	// human-readable description of the desired delivery (e.g. "a calm,
	// gentle audiobook narration"). The provider may or may not use it.
	GenerateSpeech(ctx context.Context, text, styleInstruction string) (*TTSResponse, error)
}
