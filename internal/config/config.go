package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// Config holds all configuration for the voice reader service
type Config struct {
	// Front-end selection: "telegram" (bot long-poll) or "console" (microphone + stdout)
	Frontend string `envconfig:"FRONTEND" default:"telegram"`

	// Telegram bot configuration
	TelegramBotToken     string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIEndpoint  string  `envconfig:"TELEGRAM_API_ENDPOINT" default:"https://api.telegram.org/bot%s/%s"`
	TelegramFileEndpoint string  `envconfig:"TELEGRAM_FILE_ENDPOINT" default:"https://api.telegram.org/file/bot%s/%s"`
	TelegramPollTimeout  int     `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30"` // Long-poll timeout in seconds
	TelegramSendRate     float64 `envconfig:"TELEGRAM_SEND_RATE" default:"20"`    // Messages per second

	// Speech recognition configuration
	ASRBackend       string `envconfig:"ASR_BACKEND" default:"google"` // google, deepgram
	GoogleSpeechURL  string `envconfig:"GOOGLE_SPEECH_URL" default:"http://www.google.com/speech-api/v2/recognize"`
	GoogleSpeechKey  string `envconfig:"GOOGLE_SPEECH_KEY"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	LanguageHint     string `envconfig:"LANGUAGE_HINT" default:"ja-JP"`
	TargetSampleRate int    `envconfig:"TARGET_SAMPLE_RATE" default:"16000"`

	// Translation configuration
	TranslateBackend   string `envconfig:"TRANSLATE_BACKEND" default:"google"` // google, openai
	GoogleTranslateURL string `envconfig:"GOOGLE_TRANSLATE_URL" default:"https://translate.googleapis.com/translate_a/single"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel        string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL" default:""`
	SourceLanguage     string `envconfig:"SOURCE_LANGUAGE" default:"ja"`
	TargetLanguage     string `envconfig:"TARGET_LANGUAGE" default:"en"`

	// Reference link appended to every reply
	LookupURL  string `envconfig:"LOOKUP_URL" default:"https://ichi.moe/cl/qr/"`
	LookupMode string `envconfig:"LOOKUP_MODE" default:"htr"`

	// Timeouts and limits
	HTTPTimeout      int   `envconfig:"HTTP_TIMEOUT" default:"20"`      // seconds, per external call
	PipelineTimeout  int   `envconfig:"PIPELINE_TIMEOUT" default:"90"`  // seconds, per event
	MaxDownloadBytes int64 `envconfig:"MAX_DOWNLOAD_BYTES" default:"20971520"`

	// Live capture configuration (console front-end)
	CaptureSampleRate  int     `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`
	CaptureMaxSeconds  int     `envconfig:"CAPTURE_MAX_SECONDS" default:"10"`
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"40"`      // Frames of silence to end capture

	// Resilience configuration
	CircuitBreakerMaxFailures  int     `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int     `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int     `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Delivery attempts
	RetryInitialBackoff        int     `envconfig:"RETRY_INITIAL_BACKOFF" default:"200"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int     `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Startup connection attempts
	ReconnectBackoff           int     `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds
	ReconnectMaxBackoff        int     `envconfig:"RECONNECT_MAX_BACKOFF" default:"30000"`      // Backoff cap in milliseconds
	ReconnectMultiplier        float64 `envconfig:"RECONNECT_MULTIPLIER" default:"2.0"`         // Growth factor between waits

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	Port           string `envconfig:"PORT" default:"8080"`            // HTTP port for health, metrics and live feed

	// Extra sinks
	LiveFeedEnabled bool   `envconfig:"LIVEFEED_ENABLED" default:"false"`
	NATSURL         string `envconfig:"NATS_URL" default:""`
	NATSSubject     string `envconfig:"NATS_SUBJECT" default:"voice.replies"`
}

// Load reads configuration from an optional YAML file, a .env file and the environment.
// Variables already present in the environment always win.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(path); err != nil {
			return nil, voice.E(voice.KindFatalConfiguration, "load config", err)
		}
	}

	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load any file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, voice.E(voice.KindFatalConfiguration, "load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, voice.E(voice.KindFatalConfiguration, "validate config", err)
	}
	return &cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	switch c.Frontend {
	case "telegram":
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for the telegram front-end")
		}
	case "console":
	default:
		return fmt.Errorf("unknown FRONTEND %q", c.Frontend)
	}

	switch c.ASRBackend {
	case "google":
		if c.GoogleSpeechKey == "" {
			return fmt.Errorf("GOOGLE_SPEECH_KEY is required for the google ASR backend")
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for the deepgram ASR backend")
		}
	default:
		return fmt.Errorf("unknown ASR_BACKEND %q", c.ASRBackend)
	}

	switch c.TranslateBackend {
	case "google":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai translation backend")
		}
	default:
		return fmt.Errorf("unknown TRANSLATE_BACKEND %q", c.TranslateBackend)
	}

	if c.TargetSampleRate <= 0 || c.CaptureSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}

	if c.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must not be negative")
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("RECONNECT_BACKOFF must be positive")
	}
	if c.ReconnectMaxBackoff < c.ReconnectBackoff {
		return fmt.Errorf("RECONNECT_MAX_BACKOFF must be at least RECONNECT_BACKOFF")
	}
	if c.ReconnectMultiplier < 1 {
		return fmt.Errorf("RECONNECT_MULTIPLIER must be at least 1")
	}
	return nil
}

// HTTPTimeoutDuration returns the per-call timeout for external HTTP services
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// PipelineTimeoutDuration returns the overall budget for one event
func (c *Config) PipelineTimeoutDuration() time.Duration {
	return time.Duration(c.PipelineTimeout) * time.Second
}

// applyFile reads a YAML mapping of variable names to values and exports
// the entries that are not already set in the environment
func applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	for key, value := range values {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("failed to export %s: %w", name, err)
		}
	}
	return nil
}
