package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(strings.ToUpper(key), "")
	}
	for _, key := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ELEVEN_LABS_API_KEY", "MONGODB_URI", "LOG_FILE", "VISION_BASE_URL", "ELEVEN_LABS_API_BASE_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, VisionGemini, cfg.Vision.Provider)
	assert.Equal(t, 100, cfg.Vision.MaxTokens)
	assert.Equal(t, SpeechElevenLabs, cfg.Speech.Provider)
	assert.Equal(t, "IAZxNqwaUCKERlavhDxB", cfg.Speech.VoiceID)
	assert.Equal(t, 100, cfg.Speech.AudioCacheSize)
	assert.Equal(t, time.Second, cfg.Session.RateLimitInterval)
	assert.Equal(t, 50, cfg.Session.HistoryCap)
	assert.True(t, cfg.Session.IncludeHistoryContext)
	assert.True(t, cfg.Session.AckControlMessages)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.VideoFrameInterval)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, int64(8<<20), cfg.Session.MaxMessageSize)
	assert.Equal(t, "formcoach", cfg.Archive.MongoDatabase)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_INTERVAL", "1.5")
	t.Setenv("VIDEO_FRAME_INTERVAL", "100ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("INCLUDE_HISTORY_CONTEXT", "false")
	t.Setenv("VISION_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AUDIO_CACHE_SIZE", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.Session.RateLimitInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.VideoFrameInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Session.IncludeHistoryContext)
	assert.Equal(t, VisionOpenAI, cfg.Vision.Provider)
	assert.Equal(t, "sk-test", cfg.Vision.OpenAIAPIKey)
	assert.Equal(t, 7, cfg.Speech.AudioCacheSize)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "formcoach.yaml")
	content := "port: \"7000\"\nhistory_cap: 20\nsession_idle_timeout: 5m\ntts_provider: mock\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("HISTORY_CAP", "30")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, 30, cfg.Session.HistoryCap, "environment wins over the file")
	assert.Equal(t, 5*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, SpeechMock, cfg.Speech.Provider)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_IDLE_TIMEOUT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:             "8000",
			Vision:           VisionConfig{Provider: VisionGemini, GeminiAPIKey: "key"},
			Speech:           SpeechConfig{Provider: SpeechElevenLabs, ElevenLabsAPIKey: "key", AudioCacheSize: 100},
			Session:          SessionConfig{RateLimitInterval: time.Second, HistoryCap: 50, FrameQueueSize: 8},
			Log:              LogConfig{Format: "json"},
			AnalyzeRateLimit: 5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"mocks need no keys", func(c *Config) {
			c.Vision = VisionConfig{Provider: VisionMock}
			c.Speech.Provider = SpeechMock
			c.Speech.ElevenLabsAPIKey = ""
		}, false},
		{"missing gemini key", func(c *Config) { c.Vision.GeminiAPIKey = "" }, true},
		{"missing openai key", func(c *Config) { c.Vision.Provider = VisionOpenAI }, true},
		{"unknown vision provider", func(c *Config) { c.Vision.Provider = "claude" }, true},
		{"missing elevenlabs key", func(c *Config) { c.Speech.ElevenLabsAPIKey = "" }, true},
		{"unknown speech provider", func(c *Config) { c.Speech.Provider = "espeak" }, true},
		{"zero history cap", func(c *Config) { c.Session.HistoryCap = 0 }, true},
		{"zero frame queue", func(c *Config) { c.Session.FrameQueueSize = 0 }, true},
		{"negative interval", func(c *Config) { c.Session.RateLimitInterval = -time.Second }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"empty port", func(c *Config) { c.Port = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 0},
		{"1", time.Second},
		{"0.25", 250 * time.Millisecond},
		{"2m", 2 * time.Minute},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.raw)
		if err != nil {
			t.Fatalf("parseDuration(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
