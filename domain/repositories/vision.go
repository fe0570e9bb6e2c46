package repositories

import "context"

// VisionRequest is one frame submitted for form analysis
type VisionRequest struct {
	Image        []byte
	MIMEType     string
	ExerciseType string
	// History holds recent feedback texts, oldest first
	History []string
}

// VisionAnalyzer abstracts the image analysis backend
type VisionAnalyzer interface {
	// AnalyzeFrame returns a short feedback text for the frame
	AnalyzeFrame(ctx context.Context, req VisionRequest) (string, error)
}
