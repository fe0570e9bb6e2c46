package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/formcoach/domain/repositories"
)

const (
	defaultGeminiModel     = "gemini-2.0-flash"
	defaultMaxOutputTokens = 100
	defaultTemperature     = 0.4
	defaultTimeout         = 15 * time.Second
)

// GeminiConfig holds configuration for the Gemini vision adapter
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string // Optional: overrides the API endpoint
	MaxOutputTokens int
	Temperature     float32
	Timeout         time.Duration
	MaxAttempts     int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}

	return nil
}

// GeminiVision implements VisionAnalyzer using Google's Gemini API
type GeminiVision struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	maxOutputTokens int32
	temperature     float32
	timeout         time.Duration
	maxAttempts     int
}

var _ repositories.VisionAnalyzer = (*GeminiVision)(nil)

// NewGeminiVision creates a new Gemini vision analyzer
func NewGeminiVision(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiVision, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &GeminiVision{
		client:          client,
		logger:          logger,
		model:           model,
		maxOutputTokens: int32(maxOutputTokens),
		temperature:     temperature,
		timeout:         timeout,
		maxAttempts:     config.MaxAttempts,
	}, nil
}

// AnalyzeFrame sends the frame with the coaching prompt and returns the model's feedback
func (g *GeminiVision) AnalyzeFrame(ctx context.Context, req repositories.VisionRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("image cannot be empty")
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(BuildPrompt(req.ExerciseType, req.History)),
			genai.NewPartFromBytes(req.Image, mimeType),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxOutputTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := withRetry(ctx, g.logger, g.maxAttempts, func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", errors.New("empty response")
		}
		return text, nil
	})
	if err != nil {
		g.logger.Error("Failed to analyze frame", zap.String("model", g.model), zap.Error(err))
		return "", err
	}

	g.logger.Info("Received feedback from Gemini",
		zap.String("model", g.model),
		zap.String("exerciseType", req.ExerciseType),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}
