package api

import (
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
)

// StatusResponse is returned by the root endpoint
type StatusResponse struct {
	Message        string `json:"message"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
}

// AnalyzeRequest represents the request payload for a one-shot analysis
type AnalyzeRequest struct {
	Image        string `json:"image"`
	UserID       string `json:"user_id,omitempty"`
	ExerciseType string `json:"exercise_type,omitempty"`
}

// AnalyzeResponse represents the response payload for a one-shot analysis
type AnalyzeResponse struct {
	Feedback string `json:"feedback"`
	UserID   string `json:"user_id,omitempty"`
}

// FeedbackHistoryResponse lists feedback oldest first
type FeedbackHistoryResponse struct {
	FeedbackHistory []entities.FeedbackRecord `json:"feedback_history"`
}

// ExerciseRequest changes the exercise label of a session
type ExerciseRequest struct {
	ExerciseType *string `json:"exercise_type"`
}

// AudioRequest toggles audio feedback for a session
type AudioRequest struct {
	Enabled *bool `json:"enabled"`
}

// SessionResponse confirms a session change
type SessionResponse struct {
	Message string      `json:"message"`
	Session SessionView `json:"session"`
}

// SessionView is a session snapshot with its history size
type SessionView struct {
	*entities.Session
	FeedbackCount int `json:"feedback_count"`
}

// VoicesResponse lists the voices offered by the synthesis backend
type VoicesResponse struct {
	Voices []repositories.Voice `json:"voices"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
