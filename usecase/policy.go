package usecase

import (
	"time"

	"github.com/satriahrh/formcoach/domain/entities"
)

// DefaultAudioInterval is the minimum spacing between two audio emissions
const DefaultAudioInterval = time.Second

// AudioPolicy decides whether a session may receive synthesized audio.
// It never mutates the session; the emitter records the emission after a
// successful send.
type AudioPolicy struct {
	Interval time.Duration
}

// NewAudioPolicy creates a policy with the given minimum interval
func NewAudioPolicy(interval time.Duration) AudioPolicy {
	if interval < 0 {
		interval = DefaultAudioInterval
	}
	return AudioPolicy{Interval: interval}
}

// MayEmitAudio reports whether audio may be emitted for the session at now
func (p AudioPolicy) MayEmitAudio(session *entities.Session, now time.Time) bool {
	if session == nil || !session.AudioEnabled {
		return false
	}
	if session.LastEmissionAt == nil {
		return true
	}
	return now.Sub(*session.LastEmissionAt) >= p.Interval
}
