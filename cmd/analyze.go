package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/adapters/memory"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
	"github.com/satriahrh/formcoach/internal/config"
	"github.com/satriahrh/formcoach/internal/logging"
	"github.com/satriahrh/formcoach/usecase"
)

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var (
		imagePath    string
		exerciseType string
		speakPath    string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a single image and print the feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, flush, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer flush()

			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			visionAnalyzer, err := newVisionAnalyzer(cmd.Context(), cfg.Vision, logger)
			if err != nil {
				return err
			}

			var textToSpeech repositories.TextToSpeech
			if speakPath != "" {
				if textToSpeech, err = newTextToSpeech(cfg.Speech, logger); err != nil {
					return err
				}
			}

			pipeline := usecase.NewFeedbackPipeline(memory.NewSessionStore(), visionAnalyzer, textToSpeech, nil,
				usecase.NewAudioPolicy(cfg.Session.RateLimitInterval), usecase.DefaultPipelineConfig(), logger)

			feedback, err := pipeline.AnalyzeStill(cmd.Context(), base64.StdEncoding.EncodeToString(image), exerciseType)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), feedback); err != nil {
				return err
			}

			if textToSpeech == nil {
				return nil
			}
			audio, err := textToSpeech.SynthesizeSpeech(cmd.Context(), repositories.SpeechRequest{
				Text:     feedback,
				VoiceID:  cfg.Speech.VoiceID,
				Settings: entities.DefaultVoiceSettings(),
			})
			if err != nil {
				return fmt.Errorf("synthesize feedback: %w", err)
			}
			if err := os.WriteFile(speakPath, audio, 0o644); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			logger.Info("Audio written", zap.String("path", speakPath), zap.Int("bytes", len(audio)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "image file to analyze")
	cmd.Flags().StringVarP(&exerciseType, "exercise", "e", "", "exercise type hint")
	cmd.Flags().StringVar(&speakPath, "speak", "", "write the synthesized feedback to this file")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
