package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/formcoach/adapters/memory"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
	"github.com/satriahrh/formcoach/internal/api"
	"github.com/satriahrh/formcoach/internal/config"
	"github.com/satriahrh/formcoach/internal/logging"
	"github.com/satriahrh/formcoach/internal/websocket"
	"github.com/satriahrh/formcoach/usecase"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, flush, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Initialize adapters
	visionAnalyzer, err := newVisionAnalyzer(ctx, cfg.Vision, logger)
	if err != nil {
		return err
	}
	textToSpeech, err := newTextToSpeech(cfg.Speech, logger)
	if err != nil {
		return err
	}
	archive, closeArchive, err := newFeedbackArchive(ctx, cfg.Archive, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = closeArchive(closeCtx)
	}()

	store := memory.NewSessionStore(
		entities.WithHistoryCap(cfg.Session.HistoryCap),
		entities.WithVoice(cfg.Speech.VoiceID, entities.DefaultVoiceSettings()),
	)

	// Initialize usecase services
	pipeline := usecase.NewFeedbackPipeline(
		store,
		visionAnalyzer,
		textToSpeech,
		archive,
		usecase.NewAudioPolicy(cfg.Session.RateLimitInterval),
		usecase.PipelineConfig{
			IncludeHistory:   cfg.Session.IncludeHistoryContext,
			HistoryContext:   cfg.Session.HistoryContext,
			SynthesisTimeout: cfg.Speech.Timeout,
		},
		logger,
	)

	hub := websocket.NewHub(store, pipeline, websocket.Config{
		FrameQueueSize:     cfg.Session.FrameQueueSize,
		SendQueueSize:      cfg.Session.SendQueueSize,
		MaxMessageSize:     cfg.Session.MaxMessageSize,
		AckControlMessages: cfg.Session.AckControlMessages,
		ProcessTimeout:     cfg.Session.ProcessTimeout,
		SweepInterval:      cfg.Session.SweepInterval,
		IdleTimeout:        cfg.Session.IdleTimeout,
		AllowedOrigins:     cfg.AllowedOrigins,
	}, logger)

	deps := api.Dependencies{
		Hub:                hub,
		Store:              store,
		Analyzer:           pipeline,
		Archive:            archive,
		Version:            version,
		AnalyzeRateLimit:   cfg.AnalyzeRateLimit,
		VideoFrameInterval: cfg.Session.VideoFrameInterval,
	}
	if lister, ok := textToSpeech.(repositories.VoiceLister); ok {
		deps.Voices = lister
	}

	e := api.NewEcho(cfg.AllowedOrigins, logger)
	api.InitRoutes(e, deps, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Server started",
			zap.String("port", cfg.Port),
			zap.String("vision", cfg.Vision.Provider),
			zap.String("speech", cfg.Speech.Provider))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		hub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server exited")
	return nil
}
