// Package config loads the service configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Vision backends
const (
	VisionGemini = "gemini"
	VisionOpenAI = "openai"
	VisionMock   = "mock"
)

// Speech backends
const (
	SpeechElevenLabs = "elevenlabs"
	SpeechMock       = "mock"
)

// Config is the complete service configuration
type Config struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	Vision  VisionConfig
	Speech  SpeechConfig
	Session SessionConfig
	Archive ArchiveConfig
	Log     LogConfig

	// AnalyzeRateLimit is requests per second per IP on the one-shot endpoint
	AnalyzeRateLimit float64
}

// VisionConfig selects and tunes the vision backend
type VisionConfig struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	BaseURL      string
	MaxTokens    int
	Timeout      time.Duration
	MaxAttempts  int
}

// SpeechConfig selects and tunes the speech backend
type SpeechConfig struct {
	Provider         string
	ElevenLabsAPIKey string
	BaseURL          string
	ModelID          string
	OutputFormat     string
	Timeout          time.Duration
	VoiceID          string
	AudioCacheSize   int
}

// SessionConfig tunes sessions and connections
type SessionConfig struct {
	RateLimitInterval     time.Duration
	HistoryCap            int
	IncludeHistoryContext bool
	HistoryContext        int
	FrameQueueSize        int
	SendQueueSize         int
	MaxMessageSize        int64
	AckControlMessages    bool
	ProcessTimeout        time.Duration
	IdleTimeout           time.Duration
	SweepInterval         time.Duration
	VideoFrameInterval    time.Duration
}

// ArchiveConfig configures where feedback outlives its session
type ArchiveConfig struct {
	MongoURI      string
	MongoDatabase string
	// Limit bounds the records kept per client by the in-memory archive
	Limit int
}

// LogConfig configures the logger
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var defaults = map[string]interface{}{
	"port":             "8000",
	"allowed_origins":  "",
	"shutdown_timeout": "10s",

	"vision_provider":     VisionGemini,
	"gemini_model":        "gemini-2.0-flash",
	"openai_model":        "gpt-4o-mini",
	"vision_max_tokens":   100,
	"vision_timeout":      "15s",
	"vision_max_attempts": 3,

	"tts_provider":              SpeechElevenLabs,
	"eleven_labs_model_id":      "eleven_multilingual_v2",
	"eleven_labs_output_format": "mp3_44100_128",
	"eleven_labs_timeout":       "30s",
	"eleven_labs_voice_id":      "IAZxNqwaUCKERlavhDxB",
	"audio_cache_size":          100,

	"rate_limit_interval":     "1s",
	"history_cap":             50,
	"include_history_context": true,
	"history_context":         3,
	"frame_queue_size":        8,
	"send_queue_size":         256,
	"max_message_size":        8 << 20,
	"ack_control_messages":    true,
	"frame_process_timeout":   "45s",
	"session_idle_timeout":    "30m",
	"session_sweep_interval":  "1m",
	"video_frame_interval":    "250ms",

	"mongodb_database":       "formcoach",
	"feedback_archive_limit": 100,

	"analyze_rate_limit": 5.0,

	"log_level":        "info",
	"log_format":       "json",
	"log_max_size_mb":  100,
	"log_max_backups":  3,
	"log_max_age_days": 28,
}

// Load reads the configuration. Environment variables win over the config
// file, which wins over defaults. A .env file in the working directory is
// loaded first when present. path may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("formcoach")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	duration := func(key string) time.Duration {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
		}
		return d
	}

	cfg := &Config{
		Port:            v.GetString("port"),
		AllowedOrigins:  splitList(v.GetString("allowed_origins")),
		ShutdownTimeout: duration("shutdown_timeout"),
		Vision: VisionConfig{
			Provider:     strings.ToLower(v.GetString("vision_provider")),
			GeminiAPIKey: v.GetString("gemini_api_key"),
			GeminiModel:  v.GetString("gemini_model"),
			OpenAIAPIKey: v.GetString("openai_api_key"),
			OpenAIModel:  v.GetString("openai_model"),
			BaseURL:      v.GetString("vision_base_url"),
			MaxTokens:    v.GetInt("vision_max_tokens"),
			Timeout:      duration("vision_timeout"),
			MaxAttempts:  v.GetInt("vision_max_attempts"),
		},
		Speech: SpeechConfig{
			Provider:         strings.ToLower(v.GetString("tts_provider")),
			ElevenLabsAPIKey: v.GetString("eleven_labs_api_key"),
			BaseURL:          v.GetString("eleven_labs_api_base_url"),
			ModelID:          v.GetString("eleven_labs_model_id"),
			OutputFormat:     v.GetString("eleven_labs_output_format"),
			Timeout:          duration("eleven_labs_timeout"),
			VoiceID:          v.GetString("eleven_labs_voice_id"),
			AudioCacheSize:   v.GetInt("audio_cache_size"),
		},
		Session: SessionConfig{
			RateLimitInterval:     duration("rate_limit_interval"),
			HistoryCap:            v.GetInt("history_cap"),
			IncludeHistoryContext: v.GetBool("include_history_context"),
			HistoryContext:        v.GetInt("history_context"),
			FrameQueueSize:        v.GetInt("frame_queue_size"),
			SendQueueSize:         v.GetInt("send_queue_size"),
			MaxMessageSize:        v.GetInt64("max_message_size"),
			AckControlMessages:    v.GetBool("ack_control_messages"),
			ProcessTimeout:        duration("frame_process_timeout"),
			IdleTimeout:           duration("session_idle_timeout"),
			SweepInterval:         duration("session_sweep_interval"),
			VideoFrameInterval:    duration("video_frame_interval"),
		},
		Archive: ArchiveConfig{
			MongoURI:      v.GetString("mongodb_uri"),
			MongoDatabase: v.GetString("mongodb_database"),
			Limit:         v.GetInt("feedback_archive_limit"),
		},
		Log: LogConfig{
			Level:      strings.ToLower(v.GetString("log_level")),
			Format:     strings.ToLower(v.GetString("log_format")),
			File:       v.GetString("log_file"),
			MaxSizeMB:  v.GetInt("log_max_size_mb"),
			MaxBackups: v.GetInt("log_max_backups"),
			MaxAgeDays: v.GetInt("log_max_age_days"),
		},
		AnalyzeRateLimit: v.GetFloat64("analyze_rate_limit"),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and that the selected backends have credentials
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}

	switch c.Vision.Provider {
	case VisionGemini:
		if c.Vision.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini vision provider"))
		}
	case VisionOpenAI:
		if c.Vision.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai vision provider"))
		}
	case VisionMock:
	default:
		errs = append(errs, fmt.Errorf("unknown VISION_PROVIDER %q", c.Vision.Provider))
	}

	switch c.Speech.Provider {
	case SpeechElevenLabs:
		if c.Speech.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ELEVEN_LABS_API_KEY is required for the elevenlabs speech provider"))
		}
	case SpeechMock:
	default:
		errs = append(errs, fmt.Errorf("unknown TTS_PROVIDER %q", c.Speech.Provider))
	}

	if c.Session.RateLimitInterval < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_INTERVAL must not be negative"))
	}
	if c.Session.HistoryCap <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_CAP must be positive, got %d", c.Session.HistoryCap))
	}
	if c.Session.FrameQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("FRAME_QUEUE_SIZE must be positive, got %d", c.Session.FrameQueueSize))
	}
	if c.Speech.AudioCacheSize < 0 {
		errs = append(errs, fmt.Errorf("AUDIO_CACHE_SIZE must not be negative, got %d", c.Speech.AudioCacheSize))
	}
	if c.AnalyzeRateLimit < 0 {
		errs = append(errs, errors.New("ANALYZE_RATE_LIMIT must not be negative"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("250ms") and plain seconds ("1.5")
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
