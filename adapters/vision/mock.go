package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/domain/repositories"
)

var _ repositories.VisionAnalyzer = (*MockVision)(nil)

var mockTips = []string{
	"Keep your back straight and your core braced.",
	"Push your knees out over your toes.",
	"Slow down the lowering phase.",
}

// MockVision is a placeholder implementation used when no vision backend is configured
type MockVision struct {
	logger *zap.Logger
}

// NewMockVision creates a new mock vision analyzer
func NewMockVision(logger *zap.Logger) *MockVision {
	return &MockVision{logger: logger}
}

// AnalyzeFrame implements repositories.VisionAnalyzer
func (m *MockVision) AnalyzeFrame(ctx context.Context, req repositories.VisionRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("image cannot be empty")
	}
	m.logger.Debug("Analyzing mock frame", zap.Int("size", len(req.Image)), zap.String("exerciseType", req.ExerciseType))

	tip := mockTips[len(req.Image)%len(mockTips)]
	if req.ExerciseType != "" {
		return fmt.Sprintf("%s: %s", req.ExerciseType, tip), nil
	}
	return tip, nil
}
