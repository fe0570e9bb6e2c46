package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/domain/repositories"
)

const defaultOpenAIModel = string(openai.ChatModelGPT4oMini)

// OpenAIConfig holds configuration for the OpenAI vision adapter
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string // Optional: overrides the API endpoint
	MaxTokens int
	Timeout   time.Duration
	// MaxAttempts is handled by the SDK's own retry policy
	MaxAttempts int
}

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

// OpenAIVision implements VisionAnalyzer using OpenAI chat completions with image input
type OpenAIVision struct {
	client    openai.Client
	logger    *zap.Logger
	model     string
	maxTokens int64
	timeout   time.Duration
}

var _ repositories.VisionAnalyzer = (*OpenAIVision)(nil)

// NewOpenAIVision creates a new OpenAI vision analyzer
func NewOpenAIVision(config OpenAIConfig, logger *zap.Logger) (*OpenAIVision, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	opts = append(opts, option.WithMaxRetries(attempts-1))

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", model))
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxOutputTokens
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &OpenAIVision{
		client:    openai.NewClient(opts...),
		logger:    logger,
		model:     model,
		maxTokens: int64(maxTokens),
		timeout:   timeout,
	}, nil
}

// AnalyzeFrame sends the frame as a data URL alongside the coaching prompt
func (o *OpenAIVision) AnalyzeFrame(ctx context.Context, req repositories.VisionRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("image cannot be empty")
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(req.Image))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(BuildPrompt(req.ExerciseType, req.History)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		MaxTokens: openai.Int(o.maxTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.logger.Error("Failed to analyze frame", zap.String("model", o.model), zap.Error(err))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response")
	}

	o.logger.Info("Received feedback from OpenAI",
		zap.String("model", o.model),
		zap.String("exerciseType", req.ExerciseType),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}
