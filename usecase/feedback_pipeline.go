package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/domain"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
)

// Outcome classifies the result of processing one frame
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeSuppressed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what the pipeline produced for one frame. Record is set when
// Outcome is delivered, and also when a late pause suppressed the emission.
// Err is set for failed and suppressed outcomes and matches a domain sentinel.
type Result struct {
	Outcome Outcome
	Record  entities.FeedbackRecord
	Err     error
}

func delivered(record entities.FeedbackRecord) Result {
	return Result{Outcome: OutcomeDelivered, Record: record}
}

func suppressed() Result {
	return Result{Outcome: OutcomeSuppressed, Err: domain.ErrSuppressed}
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

// PipelineConfig tunes the feedback pipeline
type PipelineConfig struct {
	// IncludeHistory sends recent feedback to the vision backend as context
	IncludeHistory   bool
	HistoryContext   int
	AnalysisTimeout  time.Duration
	SynthesisTimeout time.Duration
	ArchiveTimeout   time.Duration
}

// DefaultPipelineConfig returns the configuration used when none is given
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		IncludeHistory:   true,
		HistoryContext:   3,
		AnalysisTimeout:  20 * time.Second,
		SynthesisTimeout: 20 * time.Second,
		ArchiveTimeout:   5 * time.Second,
	}
}

// FeedbackPipeline turns frames into feedback records and synthesized audio.
// Calls for one client must be serialized by the caller; calls for different
// clients may run in parallel.
type FeedbackPipeline struct {
	store   repositories.SessionStore
	vision  repositories.VisionAnalyzer
	speech  repositories.TextToSpeech
	archive repositories.FeedbackArchive
	policy  AudioPolicy
	config  PipelineConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewFeedbackPipeline creates a new pipeline. archive may be nil.
func NewFeedbackPipeline(
	store repositories.SessionStore,
	vision repositories.VisionAnalyzer,
	speech repositories.TextToSpeech,
	archive repositories.FeedbackArchive,
	policy AudioPolicy,
	config PipelineConfig,
	logger *zap.Logger,
) *FeedbackPipeline {
	defaults := DefaultPipelineConfig()
	if config.HistoryContext <= 0 {
		config.HistoryContext = defaults.HistoryContext
	}
	if config.AnalysisTimeout <= 0 {
		config.AnalysisTimeout = defaults.AnalysisTimeout
	}
	if config.SynthesisTimeout <= 0 {
		config.SynthesisTimeout = defaults.SynthesisTimeout
	}
	if config.ArchiveTimeout <= 0 {
		config.ArchiveTimeout = defaults.ArchiveTimeout
	}

	return &FeedbackPipeline{
		store:   store,
		vision:  vision,
		speech:  speech,
		archive: archive,
		policy:  policy,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Process runs one frame through analysis for the client's session
func (p *FeedbackPipeline) Process(ctx context.Context, clientID string, raw RawFrame) Result {
	frame, err := DecodeFrame(raw)
	if err != nil {
		p.logger.Warn("Rejected malformed frame",
			zap.String("clientID", clientID),
			zap.Int("size", len(raw.Data)),
			zap.Error(err))
		return failed(err)
	}

	session, err := p.store.Get(clientID)
	if err != nil {
		return failed(err)
	}
	if raw.Paused || !session.IsActive() {
		return suppressed()
	}

	req := repositories.VisionRequest{
		Image:        frame.Image,
		MIMEType:     frame.MIMEType,
		ExerciseType: session.ExerciseType,
	}
	if p.config.IncludeHistory {
		for _, record := range session.RecentHistory(p.config.HistoryContext) {
			req.History = append(req.History, record.Feedback)
		}
	}

	analysisCtx, cancel := context.WithTimeout(ctx, p.config.AnalysisTimeout)
	text, err := p.vision.AnalyzeFrame(analysisCtx, req)
	cancel()
	text = strings.TrimSpace(text)

	if err != nil || text == "" {
		if err == nil {
			err = errors.New("empty feedback")
		}
		p.logger.Error("Frame analysis failed",
			zap.String("clientID", clientID),
			zap.String("exerciseType", session.ExerciseType),
			zap.Error(err))
		if _, touchErr := p.store.Update(clientID, func(s *entities.Session) error {
			s.Touch(p.now())
			return nil
		}); touchErr != nil {
			return failed(touchErr)
		}
		return failed(fmt.Errorf("%w: %v", domain.ErrAnalysisFailed, err))
	}

	// the session may have been paused or reconfigured while the backend was busy
	var (
		record      entities.FeedbackRecord
		stillActive bool
	)
	now := p.now()
	_, err = p.store.Update(clientID, func(s *entities.Session) error {
		stillActive = s.IsActive()
		audio := stillActive && p.policy.MayEmitAudio(s, now)
		record = entities.NewFeedbackRecord(now, text, s.ExerciseType, audio)
		s.AppendFeedback(record)
		s.Touch(now)
		return nil
	})
	if err != nil {
		return failed(err)
	}

	p.archiveAsync(clientID, record)

	if !stillActive {
		p.logger.Info("Session paused during analysis, feedback kept in history only",
			zap.String("clientID", clientID))
		result := suppressed()
		result.Record = record
		return result
	}

	p.logger.Info("Feedback generated",
		zap.String("clientID", clientID),
		zap.String("exerciseType", session.ExerciseType),
		zap.Bool("audioAvailable", record.AudioAvailable))
	return delivered(record)
}

func (p *FeedbackPipeline) archiveAsync(clientID string, record entities.FeedbackRecord) {
	if p.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.ArchiveTimeout)
		defer cancel()
		if err := p.archive.Save(ctx, clientID, record); err != nil {
			p.logger.Warn("Failed to archive feedback", zap.String("clientID", clientID), zap.Error(err))
		}
	}()
}

// SynthesizeFeedback produces the audio for a delivered record using the
// session's current voice. It returns ErrSuppressed when the session was
// paused before or during synthesis.
func (p *FeedbackPipeline) SynthesizeFeedback(ctx context.Context, clientID string, record entities.FeedbackRecord) ([]byte, error) {
	session, err := p.store.Get(clientID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, domain.ErrSuppressed
	}

	synthCtx, cancel := context.WithTimeout(ctx, p.config.SynthesisTimeout)
	defer cancel()

	audio, err := p.speech.SynthesizeSpeech(synthCtx, repositories.SpeechRequest{
		Text:     record.Feedback,
		VoiceID:  session.VoiceID,
		Settings: session.VoiceSettings,
	})
	if err == nil && len(audio) == 0 {
		err = errors.New("empty audio")
	}
	if err != nil {
		p.logger.Error("Speech synthesis failed",
			zap.String("clientID", clientID),
			zap.String("voiceID", session.VoiceID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}

	current, err := p.store.Get(clientID)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, domain.ErrSuppressed
	}
	return audio, nil
}

// RecordAudioEmission stores the time audio was handed to the transport
func (p *FeedbackPipeline) RecordAudioEmission(clientID string, at time.Time) error {
	_, err := p.store.Update(clientID, func(s *entities.Session) error {
		s.RecordEmission(at)
		return nil
	})
	return err
}

// AnalyzeStill analyzes a single encoded image outside any session
func (p *FeedbackPipeline) AnalyzeStill(ctx context.Context, encodedImage, exerciseType string) (string, error) {
	frame, err := DecodeImage(encodedImage)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.AnalysisTimeout)
	defer cancel()

	text, err := p.vision.AnalyzeFrame(ctx, repositories.VisionRequest{
		Image:        frame.Image,
		MIMEType:     frame.MIMEType,
		ExerciseType: exerciseType,
	})
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errors.New("empty feedback")
	}
	if err != nil {
		p.logger.Error("Still image analysis failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", domain.ErrAnalysisFailed, err)
	}
	return text, nil
}
