package entities

import (
	"errors"
	"time"
)

// SessionState represents whether frames are currently analyzed for a session
type SessionState string

const (
	SessionStateActive   SessionState = "active"
	SessionStateInactive SessionState = "inactive"
)

const (
	DefaultVoiceID    = "IAZxNqwaUCKERlavhDxB"
	DefaultHistoryCap = 50
)

// Session holds the mutable server-side state of one connected client
type Session struct {
	ClientID       string           `json:"client_id"`
	ExerciseType   string           `json:"exercise_type,omitempty"`
	State          SessionState     `json:"state"`
	AudioEnabled   bool             `json:"audio_enabled"`
	VoiceID        string           `json:"voice_id"`
	VoiceSettings  VoiceSettings    `json:"voice_settings"`
	History        []FeedbackRecord `json:"-"`
	HistoryCap     int              `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	LastEmissionAt *time.Time       `json:"last_emission_at,omitempty"`
}

// SessionOption customizes a session at creation time
type SessionOption func(*Session)

// WithExerciseType sets the initial exercise type label
func WithExerciseType(exerciseType string) SessionOption {
	return func(s *Session) {
		s.ExerciseType = exerciseType
	}
}

// WithAudioEnabled sets the initial audio toggle
func WithAudioEnabled(enabled bool) SessionOption {
	return func(s *Session) {
		s.AudioEnabled = enabled
	}
}

// WithVoice overrides the default voice and its parameters
func WithVoice(voiceID string, settings VoiceSettings) SessionOption {
	return func(s *Session) {
		s.VoiceID = voiceID
		s.VoiceSettings = settings
	}
}

// WithHistoryCap bounds the number of feedback records kept on the session
func WithHistoryCap(cap int) SessionOption {
	return func(s *Session) {
		if cap > 0 {
			s.HistoryCap = cap
		}
	}
}

// NewSession creates an inactive session for a client identity
func NewSession(clientID string, opts ...SessionOption) *Session {
	now := time.Now()
	s := &Session{
		ClientID:       clientID,
		State:          SessionStateInactive,
		AudioEnabled:   true,
		VoiceID:        DefaultVoiceID,
		VoiceSettings:  DefaultVoiceSettings(),
		History:        make([]FeedbackRecord, 0),
		HistoryCap:     DefaultHistoryCap,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsActive reports whether frames should be analyzed
func (s *Session) IsActive() bool {
	return s.State == SessionStateActive
}

// Activate marks the session active
func (s *Session) Activate() {
	s.State = SessionStateActive
}

// Deactivate marks the session inactive
func (s *Session) Deactivate() {
	s.State = SessionStateInactive
}

// Touch updates the last activity timestamp
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// RecordEmission stores the time an audio emission was delivered
func (s *Session) RecordEmission(now time.Time) {
	s.LastEmissionAt = &now
}

// AppendFeedback adds a record to the history, evicting the oldest entries
// once the cap is reached.
func (s *Session) AppendFeedback(record FeedbackRecord) {
	limit := s.HistoryCap
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	s.History = append(s.History, record)
	if overflow := len(s.History) - limit; overflow > 0 {
		trimmed := make([]FeedbackRecord, limit)
		copy(trimmed, s.History[overflow:])
		s.History = trimmed
	}
}

// RecentHistory returns up to n of the most recent records, oldest first
func (s *Session) RecentHistory(n int) []FeedbackRecord {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	out := make([]FeedbackRecord, n)
	copy(out, s.History[len(s.History)-n:])
	return out
}

// Clone returns a deep copy that can be read without holding the store lock
func (s *Session) Clone() *Session {
	c := *s
	c.History = make([]FeedbackRecord, len(s.History))
	copy(c.History, s.History)
	if s.LastEmissionAt != nil {
		t := *s.LastEmissionAt
		c.LastEmissionAt = &t
	}
	return &c
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ClientID == "" {
		return errors.New("client_id is required")
	}

	if s.State != SessionStateActive && s.State != SessionStateInactive {
		return errors.New("invalid session state")
	}

	return s.VoiceSettings.Validate()
}
