package entities

import "fmt"

// VoiceSettings are the synthesis parameters attached to a session
type VoiceSettings struct {
	Stability       float64 `json:"stability" bson:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" bson:"similarity_boost"`
	Style           float64 `json:"style" bson:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost" bson:"use_speaker_boost"`
	SpeakingRate    float64 `json:"speaking_rate" bson:"speaking_rate"`
}

// DefaultVoiceSettings returns the settings new sessions start with
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.71,
		SimilarityBoost: 0.75,
		Style:           0.0,
		UseSpeakerBoost: true,
		SpeakingRate:    1.0,
	}
}

// Validate checks every parameter is within the range the synthesis backend accepts
func (v VoiceSettings) Validate() error {
	if v.Stability < 0 || v.Stability > 1 {
		return fmt.Errorf("stability must be between 0 and 1, got %f", v.Stability)
	}
	if v.SimilarityBoost < 0 || v.SimilarityBoost > 1 {
		return fmt.Errorf("similarity_boost must be between 0 and 1, got %f", v.SimilarityBoost)
	}
	if v.Style < 0 || v.Style > 1 {
		return fmt.Errorf("style must be between 0 and 1, got %f", v.Style)
	}
	if v.SpeakingRate < 0.7 || v.SpeakingRate > 1.2 {
		return fmt.Errorf("speaking_rate must be between 0.7 and 1.2, got %f", v.SpeakingRate)
	}
	return nil
}

// VoiceUpdate carries a partial change to a session's voice configuration
type VoiceUpdate struct {
	VoiceID         *string  `json:"voice_id,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	SpeakingRate    *float64 `json:"speaking_rate,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u VoiceUpdate) IsEmpty() bool {
	return u.VoiceID == nil && u.Stability == nil && u.SimilarityBoost == nil &&
		u.Style == nil && u.UseSpeakerBoost == nil && u.SpeakingRate == nil
}

// Apply merges the update into the session, rejecting out-of-range values
// without modifying the session.
func (u VoiceUpdate) Apply(s *Session) error {
	settings := s.VoiceSettings
	if u.Stability != nil {
		settings.Stability = *u.Stability
	}
	if u.SimilarityBoost != nil {
		settings.SimilarityBoost = *u.SimilarityBoost
	}
	if u.Style != nil {
		settings.Style = *u.Style
	}
	if u.UseSpeakerBoost != nil {
		settings.UseSpeakerBoost = *u.UseSpeakerBoost
	}
	if u.SpeakingRate != nil {
		settings.SpeakingRate = *u.SpeakingRate
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	s.VoiceSettings = settings
	if u.VoiceID != nil && *u.VoiceID != "" {
		s.VoiceID = *u.VoiceID
	}
	return nil
}
