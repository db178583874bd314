package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lexiqai/voice-reader/internal/voice"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-telegram-token")
	t.Setenv("GOOGLE_SPEECH_KEY", "test-speech-key")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TelegramBotToken != "test-telegram-token" {
		t.Errorf("Expected TelegramBotToken 'test-telegram-token', got '%s'", cfg.TelegramBotToken)
	}

	if cfg.GoogleSpeechKey != "test-speech-key" {
		t.Errorf("Expected GoogleSpeechKey 'test-speech-key', got '%s'", cfg.GoogleSpeechKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("GOOGLE_SPEECH_KEY", "test-speech-key")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error when the bot token is missing")
	}
	if !voice.IsFatal(err) {
		t.Errorf("Expected fatal configuration error, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Frontend != "telegram" {
		t.Errorf("Expected default Frontend 'telegram', got '%s'", cfg.Frontend)
	}

	if cfg.LanguageHint != "ja-JP" {
		t.Errorf("Expected default LanguageHint 'ja-JP', got '%s'", cfg.LanguageHint)
	}

	if cfg.SourceLanguage != "ja" || cfg.TargetLanguage != "en" {
		t.Errorf("Expected default languages ja->en, got %s->%s", cfg.SourceLanguage, cfg.TargetLanguage)
	}

	if cfg.LookupURL != "https://ichi.moe/cl/qr/" {
		t.Errorf("Expected default LookupURL 'https://ichi.moe/cl/qr/', got '%s'", cfg.LookupURL)
	}

	if cfg.LookupMode != "htr" {
		t.Errorf("Expected default LookupMode 'htr', got '%s'", cfg.LookupMode)
	}

	if cfg.TargetSampleRate != 16000 {
		t.Errorf("Expected default TargetSampleRate 16000, got %d", cfg.TargetSampleRate)
	}

	if cfg.TelegramPollTimeout != 30 {
		t.Errorf("Expected default TelegramPollTimeout 30, got %d", cfg.TelegramPollTimeout)
	}

	if cfg.VADEnergyThreshold != 500.0 {
		t.Errorf("Expected default VADEnergyThreshold 500.0, got %f", cfg.VADEnergyThreshold)
	}
}

func TestLoad_ConsoleNeedsNoToken(t *testing.T) {
	t.Setenv("FRONTEND", "console")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("GOOGLE_SPEECH_KEY", "test-speech-key")

	if _, err := Load(); err != nil {
		t.Fatalf("Expected console front-end to load without a bot token, got %v", err)
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("ASR_BACKEND", "whisper")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown ASR backend")
	}
}

func TestLoad_DeepgramNeedsKey(t *testing.T) {
	setRequired(t)
	t.Setenv("ASR_BACKEND", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error when DEEPGRAM_API_KEY is missing")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice-reader.yaml")
	content := "telegram_bot_token: file-token\ngoogle_speech_key: file-key\ntarget_language: de\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	// Environment wins over the file
	t.Setenv("LOG_LEVEL", "warn")
	// Register keys the file sets so t.Setenv restores them afterwards
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "GOOGLE_SPEECH_KEY", "TARGET_LANGUAGE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TelegramBotToken != "file-token" {
		t.Errorf("Expected token from file, got '%s'", cfg.TelegramBotToken)
	}
	if cfg.TargetLanguage != "de" {
		t.Errorf("Expected TargetLanguage 'de' from file, got '%s'", cfg.TargetLanguage)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected LogLevel from environment to win, got '%s'", cfg.LogLevel)
	}
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !voice.IsFatal(err) {
		t.Errorf("Expected fatal configuration error, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.TelegramBotToken != "test-telegram-token" {
		t.Errorf("Expected TelegramBotToken 'test-telegram-token', got '%s'", cfg.TelegramBotToken)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}

	if cfg.ReconnectMaxBackoff != 30000 {
		t.Errorf("Expected default ReconnectMaxBackoff 30000, got %d", cfg.ReconnectMaxBackoff)
	}

	if cfg.ReconnectMultiplier != 2.0 {
		t.Errorf("Expected default ReconnectMultiplier 2.0, got %v", cfg.ReconnectMultiplier)
	}
}

func TestLoadFromEnv_RejectsBadReconnect(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero backoff", map[string]string{"RECONNECT_BACKOFF": "0"}},
		{"negative backoff", map[string]string{"RECONNECT_BACKOFF": "-5"}},
		{"zero cap", map[string]string{"RECONNECT_MAX_BACKOFF": "0"}},
		{"both zero", map[string]string{"RECONNECT_BACKOFF": "0", "RECONNECT_MAX_BACKOFF": "0"}},
		{"cap below backoff", map[string]string{"RECONNECT_BACKOFF": "5000", "RECONNECT_MAX_BACKOFF": "1000"}},
		{"shrinking multiplier", map[string]string{"RECONNECT_MULTIPLIER": "0.5"}},
		{"negative attempts", map[string]string{"RECONNECT_MAX_ATTEMPTS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if voice.KindOf(err) != voice.KindFatalConfiguration {
				t.Errorf("Expected fatal configuration error, got %v", err)
			}
		})
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}

	if cfg.LiveFeedEnabled {
		t.Error("Expected default LiveFeedEnabled false, got true")
	}
}
