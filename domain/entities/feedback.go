package entities

import "time"

// FeedbackRecord is one piece of form feedback produced for a frame.
// Records are never modified after creation.
type FeedbackRecord struct {
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
	Feedback       string    `json:"feedback" bson:"feedback"`
	ExerciseType   *string   `json:"exercise_type" bson:"exercise_type,omitempty"`
	AudioAvailable bool      `json:"audio_available" bson:"audio_available"`
}

// NewFeedbackRecord snapshots the exercise type at the time of the feedback
func NewFeedbackRecord(at time.Time, feedback, exerciseType string, audioAvailable bool) FeedbackRecord {
	record := FeedbackRecord{
		Timestamp:      at,
		Feedback:       feedback,
		AudioAvailable: audioAvailable,
	}
	if exerciseType != "" {
		et := exerciseType
		record.ExerciseType = &et
	}
	return record
}
