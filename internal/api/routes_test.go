package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/formcoach/adapters/memory"
	"github.com/satriahrh/formcoach/domain"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
	"github.com/satriahrh/formcoach/internal/websocket"
)

type stubAnalyzer struct {
	lastExerciseType string
}

func (s *stubAnalyzer) AnalyzeStill(ctx context.Context, encodedImage, exerciseType string) (string, error) {
	s.lastExerciseType = exerciseType
	switch encodedImage {
	case "not-an-image":
		return "", fmt.Errorf("decode: %w", domain.ErrMalformedInput)
	case "backend-down":
		return "", fmt.Errorf("%w: timeout", domain.ErrAnalysisFailed)
	}
	return "Keep your back straight", nil
}

type stubVoices struct {
	voices []repositories.Voice
	err    error
}

func (s stubVoices) ListVoices(ctx context.Context) ([]repositories.Voice, error) {
	return s.voices, s.err
}

type apiFixture struct {
	e        *echo.Echo
	store    *memory.SessionStore
	archive  *memory.FeedbackArchive
	analyzer *stubAnalyzer
}

func newAPIFixture(t *testing.T, mutate func(*Dependencies)) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &apiFixture{
		store:    memory.NewSessionStore(),
		archive:  memory.NewFeedbackArchive(10),
		analyzer: &stubAnalyzer{},
	}
	deps := Dependencies{
		Hub:      websocket.NewHub(f.store, nil, websocket.DefaultConfig(), logger),
		Store:    f.store,
		Analyzer: f.analyzer,
		Archive:  f.archive,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	f.e = NewEcho(nil, logger)
	InitRoutes(f.e, deps, logger)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func (f *apiFixture) seed(t *testing.T, clientID string, feedback ...string) {
	t.Helper()
	f.store.GetOrCreate(clientID)
	_, err := f.store.Update(clientID, func(s *entities.Session) error {
		for _, text := range feedback {
			s.AppendFeedback(entities.NewFeedbackRecord(time.Now(), text, s.ExerciseType, false))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStatusAndHealth(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, 0, status.ActiveSessions)
	assert.NotEmpty(t, status.Message)

	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"formcoach"}`, rec.Body.String())
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{"ok", `{"image":"abc","user_id":"alice"}`, http.StatusOK, ""},
		{"missing image", `{"user_id":"alice"}`, http.StatusBadRequest, "missing_fields"},
		{"malformed json", `{"image":`, http.StatusBadRequest, "invalid_request"},
		{"malformed image", `{"image":"not-an-image"}`, http.StatusBadRequest, "invalid_image"},
		{"backend failure", `{"image":"backend-down"}`, http.StatusInternalServerError, "analysis_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil)
			rec := f.do(t, http.MethodPost, "/exercise/analyze", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())

			if tt.wantError != "" {
				var errResp ErrorResponse
				decode(t, rec, &errResp)
				assert.Equal(t, tt.wantError, errResp.Error)
				return
			}
			var resp AnalyzeResponse
			decode(t, rec, &resp)
			assert.Equal(t, "Keep your back straight", resp.Feedback)
			assert.Equal(t, "alice", resp.UserID)
		})
	}
}

func TestAnalyzeUsesSessionExercise(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.store.GetOrCreate("alice", entities.WithExerciseType("lunge"))

	rec := f.do(t, http.MethodPost, "/exercise/analyze", `{"image":"abc","user_id":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lunge", f.analyzer.lastExerciseType)

	rec = f.do(t, http.MethodPost, "/exercise/analyze", `{"image":"abc","user_id":"alice","exercise_type":"squat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "squat", f.analyzer.lastExerciseType)
}

func TestAnalyzeRateLimited(t *testing.T) {
	f := newAPIFixture(t, func(d *Dependencies) { d.AnalyzeRateLimit = 1 })

	rec := f.do(t, http.MethodPost, "/exercise/analyze", `{"image":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/exercise/analyze", `{"image":"abc"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetSession(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/users/alice/session", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.seed(t, "alice", "one", "two")
	rec = f.do(t, http.MethodGet, "/users/alice/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "alice", body["client_id"])
	assert.Equal(t, "inactive", body["state"])
	assert.Equal(t, float64(2), body["feedback_count"])
	assert.Equal(t, entities.DefaultVoiceID, body["voice_id"])
}

func TestGetFeedback(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/users/alice/feedback", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.seed(t, "alice", "one", "two", "three")
	rec = f.do(t, http.MethodGet, "/users/alice/feedback?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp FeedbackHistoryResponse
	decode(t, rec, &resp)
	require.Len(t, resp.FeedbackHistory, 2)
	assert.Equal(t, "two", resp.FeedbackHistory[0].Feedback)
	assert.Equal(t, "three", resp.FeedbackHistory[1].Feedback)

	rec = f.do(t, http.MethodGet, "/users/alice/feedback?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.seed(t, "quiet")
	rec = f.do(t, http.MethodGet, "/users/quiet/feedback", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"feedback_history":[]}`, rec.Body.String())
}

func TestGetFeedbackFromArchive(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, f.archive.Save(ctx, "gone", entities.NewFeedbackRecord(time.Now(), text, "", true)))
	}

	rec := f.do(t, http.MethodGet, "/users/gone/feedback", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp FeedbackHistoryResponse
	decode(t, rec, &resp)
	require.Len(t, resp.FeedbackHistory, 3)
	assert.Equal(t, "a", resp.FeedbackHistory[0].Feedback)
}

func TestUpdateExercise(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPut, "/users/alice/exercise?exercise_type=squat", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.seed(t, "alice")
	rec = f.do(t, http.MethodPut, "/users/alice/exercise?exercise_type=squat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	session, err := f.store.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "squat", session.ExerciseType)

	rec = f.do(t, http.MethodPut, "/users/alice/exercise", `{"exercise_type":"deadlift"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	decode(t, rec, &resp)
	assert.Equal(t, "deadlift", resp.Session.ExerciseType)

	rec = f.do(t, http.MethodPut, "/users/alice/exercise", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAudio(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seed(t, "alice")

	rec := f.do(t, http.MethodPut, "/users/alice/audio?enabled=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	session, err := f.store.Get("alice")
	require.NoError(t, err)
	assert.False(t, session.AudioEnabled)

	rec = f.do(t, http.MethodPut, "/users/alice/audio", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	session, err = f.store.Get("alice")
	require.NoError(t, err)
	assert.True(t, session.AudioEnabled)

	rec = f.do(t, http.MethodPut, "/users/alice/audio?enabled=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/bob/audio?enabled=true", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateVoice(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seed(t, "alice")

	rec := f.do(t, http.MethodPut, "/users/alice/voice", `{"voice_id":"v2","stability":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = f.do(t, http.MethodPut, "/users/alice/voice?speaking_rate=0.9&use_speaker_boost=false", "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	session, err := f.store.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", session.VoiceID)
	assert.Equal(t, 0.5, session.VoiceSettings.Stability)
	assert.Equal(t, 0.9, session.VoiceSettings.SpeakingRate)
	assert.False(t, session.VoiceSettings.UseSpeakerBoost)

	rec = f.do(t, http.MethodPut, "/users/alice/voice?speaking_rate=2.5", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	assert.Equal(t, "invalid_voice_settings", errResp.Error)

	session, err = f.store.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 0.9, session.VoiceSettings.SpeakingRate, "rejected update must not apply")

	rec = f.do(t, http.MethodPut, "/users/alice/voice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/alice/voice?stability=high", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/bob/voice?stability=0.2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListVoices(t *testing.T) {
	t.Run("no lister", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := f.do(t, http.MethodGet, "/voices", "")
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("unsupported backend", func(t *testing.T) {
		f := newAPIFixture(t, func(d *Dependencies) {
			d.Voices = stubVoices{err: fmt.Errorf("wrapped: %w", errors.ErrUnsupported)}
		})
		rec := f.do(t, http.MethodGet, "/voices", "")
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := newAPIFixture(t, func(d *Dependencies) {
			d.Voices = stubVoices{err: errors.New("boom")}
		})
		rec := f.do(t, http.MethodGet, "/voices", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("listed", func(t *testing.T) {
		f := newAPIFixture(t, func(d *Dependencies) {
			d.Voices = stubVoices{voices: []repositories.Voice{{VoiceID: "v1", Name: "Rachel", Category: "premade"}}}
		})
		rec := f.do(t, http.MethodGet, "/voices", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"voices":[{"voice_id":"v1","name":"Rachel","category":"premade"}]}`, rec.Body.String())
	})
}

func TestWebSocketRejectsBadQuery(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/ws/exercise-analysis/alice?audio_enabled=sometimes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.store.Len())
}
