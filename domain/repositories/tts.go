package repositories

import (
	"context"

	"github.com/satriahrh/formcoach/domain/entities"
)

// SpeechRequest carries the text and voice parameters to synthesize
type SpeechRequest struct {
	Text     string
	VoiceID  string
	Settings entities.VoiceSettings
}

type TextToSpeech interface {
	// SynthesizeSpeech returns the encoded audio for the request
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// Voice describes a voice offered by a synthesis backend
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// VoiceLister is implemented by backends that can enumerate their voices
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}
