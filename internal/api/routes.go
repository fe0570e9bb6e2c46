package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/satriahrh/formcoach/domain"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
	"github.com/satriahrh/formcoach/internal/websocket"
)

const defaultFeedbackLimit = 10

// StillAnalyzer analyzes a single encoded image outside any session
type StillAnalyzer interface {
	AnalyzeStill(ctx context.Context, encodedImage, exerciseType string) (string, error)
}

// Dependencies are the components the routes are served from
type Dependencies struct {
	Hub      *websocket.Hub
	Store    repositories.SessionStore
	Analyzer StillAnalyzer
	// Archive and Voices are optional
	Archive repositories.FeedbackArchive
	Voices  repositories.VoiceLister

	Version string
	// AnalyzeRateLimit is the per-IP request rate of the analyze endpoint; zero disables limiting
	AnalyzeRateLimit float64
	// VideoFrameInterval throttles frames on the video-stream endpoint
	VideoFrameInterval time.Duration
}

type handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handler{deps: deps, logger: logger}

	e.GET("/", h.status)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "formcoach",
		})
	})

	var analyzeMiddleware []echo.MiddlewareFunc
	if deps.AnalyzeRateLimit > 0 {
		analyzeMiddleware = append(analyzeMiddleware, rateLimiter(deps.AnalyzeRateLimit, logger))
	}
	e.POST("/exercise/analyze", h.analyze, analyzeMiddleware...)

	users := e.Group("/users/:client_id")
	users.GET("/session", h.getSession)
	users.GET("/feedback", h.getFeedback)
	users.PUT("/exercise", h.updateExercise)
	users.PUT("/audio", h.updateAudio)
	users.PUT("/voice", h.updateVoice)

	e.GET("/voices", h.listVoices)

	e.GET("/ws/exercise-analysis", h.exerciseAnalysis)
	e.GET("/ws/exercise-analysis/:client_id", h.exerciseAnalysis)
	e.GET("/ws/video-stream/:client_id", h.videoStream)
}

func rateLimiter(perSecond float64, logger *zap.Logger) echo.MiddlewareFunc {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "Unable to identify client",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.Warn("Analyze request rate limited", zap.String("ip", identifier))
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many analysis requests",
			})
		},
	})
}

func (h *handler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Message:        "Exercise form feedback service is running",
		Version:        h.deps.Version,
		ActiveSessions: h.deps.Hub.Count(),
	})
}

func (h *handler) analyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind analyze request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Image == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Image is required",
		})
	}

	exerciseType := req.ExerciseType
	if exerciseType == "" && req.UserID != "" {
		if session, err := h.deps.Store.Get(req.UserID); err == nil {
			exerciseType = session.ExerciseType
		}
	}

	feedback, err := h.deps.Analyzer.AnalyzeStill(c.Request().Context(), req.Image, exerciseType)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_image",
				Message: websocket.ErrorTextInvalidImage,
			})
		}
		h.logger.Error("One-shot analysis failed", zap.String("userID", req.UserID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "analysis_failed",
			Message: websocket.ErrorTextAnalysisFailed,
		})
	}

	return c.JSON(http.StatusOK, AnalyzeResponse{Feedback: feedback, UserID: req.UserID})
}

func (h *handler) getSession(c echo.Context) error {
	session, err := h.deps.Store.Get(c.Param("client_id"))
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(session))
}

func (h *handler) getFeedback(c echo.Context) error {
	clientID := c.Param("client_id")

	limit := defaultFeedbackLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = n
	}

	if session, err := h.deps.Store.Get(clientID); err == nil {
		history := session.RecentHistory(limit)
		if history == nil {
			history = []entities.FeedbackRecord{}
		}
		return c.JSON(http.StatusOK, FeedbackHistoryResponse{FeedbackHistory: history})
	}

	if h.deps.Archive != nil {
		records, err := h.deps.Archive.ListByClient(c.Request().Context(), clientID, limit)
		if err != nil {
			h.logger.Error("Failed to read feedback archive", zap.String("clientID", clientID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "archive_unavailable",
				Message: "Failed to read feedback history",
			})
		}
		if len(records) > 0 {
			return c.JSON(http.StatusOK, FeedbackHistoryResponse{FeedbackHistory: records})
		}
	}

	return c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "No feedback found for user",
	})
}

func (h *handler) updateExercise(c echo.Context) error {
	var req ExerciseRequest
	if values, ok := c.QueryParams()["exercise_type"]; ok && len(values) > 0 {
		req.ExerciseType = &values[0]
	} else if err := bindBody(c, &req); err != nil {
		return h.badRequest(c, err)
	}
	if req.ExerciseType == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "exercise_type is required",
		})
	}

	session, err := h.deps.Store.Update(c.Param("client_id"), func(s *entities.Session) error {
		s.ExerciseType = *req.ExerciseType
		return nil
	})
	if err != nil {
		return h.storeError(c, err)
	}

	h.logger.Info("Exercise type updated",
		zap.String("clientID", session.ClientID),
		zap.String("exerciseType", session.ExerciseType))
	return c.JSON(http.StatusOK, SessionResponse{Message: "Exercise type updated", Session: viewOf(session)})
}

func (h *handler) updateAudio(c echo.Context) error {
	var req AudioRequest
	if raw := c.QueryParam("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return h.badRequest(c, err)
		}
		req.Enabled = &enabled
	} else if err := bindBody(c, &req); err != nil {
		return h.badRequest(c, err)
	}
	if req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "enabled is required",
		})
	}

	session, err := h.deps.Store.Update(c.Param("client_id"), func(s *entities.Session) error {
		s.AudioEnabled = *req.Enabled
		return nil
	})
	if err != nil {
		return h.storeError(c, err)
	}

	h.logger.Info("Audio feedback toggled",
		zap.String("clientID", session.ClientID),
		zap.Bool("enabled", session.AudioEnabled))
	return c.JSON(http.StatusOK, SessionResponse{Message: "Audio setting updated", Session: viewOf(session)})
}

func (h *handler) updateVoice(c echo.Context) error {
	var update entities.VoiceUpdate
	if err := bindBody(c, &update); err != nil {
		return h.badRequest(c, err)
	}
	if err := voiceUpdateFromQuery(c, &update); err != nil {
		return h.badRequest(c, err)
	}
	if update.IsEmpty() {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "At least one voice setting is required",
		})
	}

	var invalid error
	session, err := h.deps.Store.Update(c.Param("client_id"), func(s *entities.Session) error {
		if err := update.Apply(s); err != nil {
			invalid = err
			return err
		}
		return nil
	})
	if invalid != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_voice_settings",
			Message: invalid.Error(),
		})
	}
	if err != nil {
		return h.storeError(c, err)
	}

	h.logger.Info("Voice settings updated",
		zap.String("clientID", session.ClientID),
		zap.String("voiceID", session.VoiceID))
	return c.JSON(http.StatusOK, SessionResponse{Message: "Voice settings updated", Session: viewOf(session)})
}

func (h *handler) listVoices(c echo.Context) error {
	if h.deps.Voices == nil {
		return notSupported(c)
	}
	voices, err := h.deps.Voices.ListVoices(c.Request().Context())
	if err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return notSupported(c)
		}
		h.logger.Error("Failed to list voices", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "Failed to list voices",
		})
	}
	if voices == nil {
		voices = []repositories.Voice{}
	}
	return c.JSON(http.StatusOK, VoicesResponse{Voices: voices})
}

func (h *handler) exerciseAnalysis(c echo.Context) error {
	opts, err := connectOptions(c)
	if err != nil {
		return h.badRequest(c, err)
	}
	return websocket.HandleWebSocket(h.deps.Hub, c, opts)
}

func (h *handler) videoStream(c echo.Context) error {
	opts, err := connectOptions(c)
	if err != nil {
		return h.badRequest(c, err)
	}
	opts.FrameInterval = h.deps.VideoFrameInterval
	return websocket.HandleWebSocket(h.deps.Hub, c, opts)
}

func connectOptions(c echo.Context) (websocket.ConnectOptions, error) {
	opts := websocket.ConnectOptions{ClientID: c.Param("client_id")}
	if values, ok := c.QueryParams()["exercise_type"]; ok && len(values) > 0 {
		opts.ExerciseType = &values[0]
	}
	if raw := c.QueryParam("audio_enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, err
		}
		opts.AudioEnabled = &enabled
	}
	return opts, nil
}

func voiceUpdateFromQuery(c echo.Context, update *entities.VoiceUpdate) error {
	if v := c.QueryParam("voice_id"); v != "" {
		update.VoiceID = &v
	}
	floats := map[string]**float64{
		"stability":        &update.Stability,
		"similarity_boost": &update.SimilarityBoost,
		"style":            &update.Style,
		"speaking_rate":    &update.SpeakingRate,
	}
	for name, target := range floats {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*target = &f
	}
	if raw := c.QueryParam("use_speaker_boost"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		update.UseSpeakerBoost = &b
	}
	return nil
}

// bindBody binds a JSON body when one is present. Query parameters are
// handled separately since echo does not bind them for PUT.
func bindBody(c echo.Context, v interface{}) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	return (&echo.DefaultBinder{}).BindBody(c, v)
}

func viewOf(session *entities.Session) SessionView {
	return SessionView{Session: session, FeedbackCount: len(session.History)}
}

func (h *handler) storeError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "User session not found",
		})
	}
	h.logger.Error("Session store failure", zap.String("clientID", c.Param("client_id")), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Failed to access session",
	})
}

func (h *handler) badRequest(c echo.Context, err error) error {
	h.logger.Debug("Rejected request", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request format",
	})
}

func notSupported(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, ErrorResponse{
		Error:   "not_supported",
		Message: "Voice listing is not supported by the configured synthesis backend",
	})
}
