package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/domain/repositories"
)

// MockTextToSpeech is a placeholder implementation used when no synthesis
// backend is configured. It returns a short fake MP3 payload.
type MockTextToSpeech struct {
	logger *zap.Logger
}

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// SynthesizeSpeech implements repositories.TextToSpeech
func (m *MockTextToSpeech) SynthesizeSpeech(ctx context.Context, req repositories.SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	m.logger.Debug("Generating mock audio", zap.String("voiceID", req.VoiceID), zap.Int("textLength", len(req.Text)))

	audio := append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), []byte(req.Text)...)
	return audio, nil
}

// ListVoices implements repositories.VoiceLister
func (m *MockTextToSpeech) ListVoices(ctx context.Context) ([]repositories.Voice, error) {
	return []repositories.Voice{{VoiceID: "mock", Name: "Mock Voice", Category: "generated"}}, nil
}
