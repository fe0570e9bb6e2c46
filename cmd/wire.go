package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/adapters/memory"
	"github.com/satriahrh/formcoach/adapters/mongo"
	"github.com/satriahrh/formcoach/adapters/tts"
	"github.com/satriahrh/formcoach/adapters/vision"
	"github.com/satriahrh/formcoach/domain/repositories"
	"github.com/satriahrh/formcoach/internal/config"
)

func newVisionAnalyzer(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (repositories.VisionAnalyzer, error) {
	switch cfg.Provider {
	case config.VisionGemini:
		return vision.NewGeminiVision(ctx, vision.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			BaseURL:         cfg.BaseURL,
			MaxOutputTokens: cfg.MaxTokens,
			Timeout:         cfg.Timeout,
			MaxAttempts:     cfg.MaxAttempts,
		}, logger)
	case config.VisionOpenAI:
		return vision.NewOpenAIVision(vision.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			MaxAttempts: cfg.MaxAttempts,
		}, logger)
	case config.VisionMock:
		logger.Warn("Using mock vision analyzer")
		return vision.NewMockVision(logger), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}

// newTextToSpeech returns the synthesis backend, wrapped in the audio cache
// when one is configured.
func newTextToSpeech(cfg config.SpeechConfig, logger *zap.Logger) (repositories.TextToSpeech, error) {
	var backend repositories.TextToSpeech
	switch cfg.Provider {
	case config.SpeechElevenLabs:
		elevenLabs, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			APIBaseURL:   cfg.BaseURL,
			ModelID:      cfg.ModelID,
			OutputFormat: cfg.OutputFormat,
			Timeout:      cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		backend = elevenLabs
	case config.SpeechMock:
		logger.Warn("Using mock text-to-speech")
		backend = tts.NewMockTextToSpeech(logger)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}

	if cfg.AudioCacheSize <= 0 {
		return backend, nil
	}
	return tts.NewCachedTTS(backend, cfg.AudioCacheSize, logger)
}

// newFeedbackArchive returns the MongoDB archive when a URI is configured and
// the in-memory archive otherwise. The returned func releases the connection.
func newFeedbackArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (repositories.FeedbackArchive, func(context.Context) error, error) {
	if cfg.MongoURI == "" {
		logger.Info("Using in-memory feedback archive", zap.Int("limit", cfg.Limit))
		return memory.NewFeedbackArchive(cfg.Limit), func(context.Context) error { return nil }, nil
	}

	store, err := mongo.Open(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
	if err != nil {
		return nil, nil, err
	}
	return store.Feedback(), store.Close, nil
}
