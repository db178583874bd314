package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/audio"
	"github.com/lexiqai/voice-reader/internal/audio/capture"
	"github.com/lexiqai/voice-reader/internal/audio/oggopus"
	"github.com/lexiqai/voice-reader/internal/bus"
	"github.com/lexiqai/voice-reader/internal/compose"
	"github.com/lexiqai/voice-reader/internal/config"
	"github.com/lexiqai/voice-reader/internal/console"
	"github.com/lexiqai/voice-reader/internal/ingest"
	"github.com/lexiqai/voice-reader/internal/livefeed"
	"github.com/lexiqai/voice-reader/internal/observability"
	"github.com/lexiqai/voice-reader/internal/phonetic"
	"github.com/lexiqai/voice-reader/internal/pipeline"
	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/retrieval"
	"github.com/lexiqai/voice-reader/internal/stt"
	"github.com/lexiqai/voice-reader/internal/telegram"
	"github.com/lexiqai/voice-reader/internal/translate"
	"github.com/lexiqai/voice-reader/internal/voice"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("frontend", cfg.Frontend).
		Str("asr_backend", cfg.ASRBackend).
		Str("translate_backend", cfg.TranslateBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice reader starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Str("kind", voice.KindOf(err).String()).Msg("Voice reader stopped")
		os.Exit(1)
	}
	logger.Info().Msg("Voice reader exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeoutDuration()}
	readiness := map[string]observability.HealthCheckFunc{}

	breakerReset := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second

	recognizer, target := newRecognizer(cfg, httpClient, logger)
	asrBreaker := resilience.NewCircuitBreaker("asr", cfg.CircuitBreakerMaxFailures, breakerReset)
	guarded := stt.NewGuarded(recognizer, asrBreaker)
	readiness["asr"] = breakerCheck(asrBreaker)

	translator := translate.NewGuarded(
		translate.NewCached(newTranslator(cfg, httpClient, logger), 512, time.Hour),
		resilience.NewCircuitBreaker("translate", cfg.CircuitBreakerMaxFailures, breakerReset),
	)

	reader, err := phonetic.NewConverter()
	if err != nil {
		return voice.E(voice.KindFatalConfiguration, "phonetic.init", err)
	}

	transcoder := audio.NewTranscoder(target, oggopus.Option())
	logger.Info().
		Str("format", string(transcoder.Target().Format)).
		Int("sample_rate", transcoder.Target().SampleRate).
		Msg("Recognizer audio target")
	composer := compose.New(cfg.LookupURL, cfg.LookupMode)

	reconnect := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  cfg.ReconnectMultiplier,
		MaxBackoff:  time.Duration(cfg.ReconnectMaxBackoff) * time.Millisecond,
	}

	router := retrieval.NewRouter().Handle(voice.SourceLive, capture.NewDevice(capture.Config{
		SampleRate:  cfg.CaptureSampleRate,
		MaxDuration: time.Duration(cfg.CaptureMaxSeconds) * time.Second,
		VAD:         audio.NewVADConfig(cfg.VADEnergyThreshold, cfg.VADSilenceFrames, cfg.CaptureSampleRate),
	}, logger))

	var (
		trigger ingest.Trigger
		sinks   ingest.FanOut
	)

	switch cfg.Frontend {
	case "telegram":
		bot, err := telegram.Connect(ctx, telegram.Config{
			Token:        cfg.TelegramBotToken,
			APIEndpoint:  cfg.TelegramAPIEndpoint,
			FileEndpoint: cfg.TelegramFileEndpoint,
			PollTimeout:  cfg.TelegramPollTimeout,
		}, &http.Client{Timeout: time.Duration(cfg.TelegramPollTimeout)*time.Second + cfg.HTTPTimeoutDuration()}, reconnect, logger)
		if err != nil {
			return err
		}

		router.Handle(voice.SourceRemote, retrieval.NewHTTPFetcher(httpClient, bot, retrieval.HTTPConfig{
			Timeout:  cfg.HTTPTimeoutDuration(),
			MaxBytes: cfg.MaxDownloadBytes,
		}, logger))
		trigger = telegram.NewTrigger(bot, logger)
		sinks = append(sinks, telegram.NewSink(bot, telegram.SinkConfig{
			Rate: cfg.TelegramSendRate,
			Retry: &resilience.RetryConfig{
				MaxAttempts:       cfg.RetryMaxAttempts,
				InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
				MaxBackoff:        5 * time.Second,
				BackoffMultiplier: 2.0,
			},
		}, logger))

	case "console":
		out := console.NewSink(os.Stdout)
		if err := out.Prompt(); err != nil {
			return voice.E(voice.KindFatalConfiguration, "console.init", err)
		}
		trigger = console.NewTrigger(os.Stdin, logger)
		sinks = append(sinks, out)
	}

	mux := http.NewServeMux()

	if cfg.LiveFeedEnabled {
		hub := livefeed.NewHub(logger)
		defer hub.Close()
		mux.HandleFunc("/feed", hub.Handler())
		sinks = append(sinks, hub)
		logger.Info().Msg("Live feed enabled at /feed")
	}

	if cfg.NATSURL != "" {
		publisher, err := bus.Connect(cfg.NATSURL, cfg.NATSSubject, cfg.HTTPTimeoutDuration(), logger)
		if err != nil {
			return voice.E(voice.KindFatalConfiguration, "bus.connect", err)
		}
		defer publisher.Close(cfg.HTTPTimeoutDuration())
		sinks = append(sinks, publisher)
		readiness["nats"] = publisher.Ready
	}

	proc := pipeline.New(router, transcoder, guarded, reader, translator, composer, pipeline.Config{
		LanguageHint:     cfg.LanguageHint,
		SourceLanguage:   cfg.SourceLanguage,
		TargetLanguage:   cfg.TargetLanguage,
		TranslateTimeout: cfg.HTTPTimeoutDuration(),
	})

	loop := ingest.NewLoop(trigger, proc, sinks, ingest.Config{
		PipelineTimeout: cfg.PipelineTimeoutDuration(),
		Reconnect:       reconnect,
	}, logger)
	readiness["ingest"] = loop.Ready

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(readiness))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		httpLogger := observability.WithComponent("http")
		httpLogger.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpLogger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	loopErr := loop.Run(ctx)

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server forced to shutdown")
	}

	return loopErr
}

// newRecognizer picks the ASR backend and the audio format it consumes
func newRecognizer(cfg *config.Config, client *http.Client, logger zerolog.Logger) (stt.Recognizer, audio.Target) {
	if cfg.ASRBackend == "deepgram" {
		return stt.NewDeepgramRecognizer(stt.DeepgramConfig{
			APIKey: cfg.DeepgramAPIKey,
			Model:  cfg.DeepgramModel,
		}, logger), audio.Target{Format: voice.FormatWAV, SampleRate: cfg.TargetSampleRate}
	}

	return stt.NewGoogleRecognizer(stt.GoogleConfig{
		URL:     cfg.GoogleSpeechURL,
		Key:     cfg.GoogleSpeechKey,
		Timeout: cfg.HTTPTimeoutDuration(),
	}, client, logger), audio.Target{Format: voice.FormatPCM, SampleRate: cfg.TargetSampleRate}
}

func newTranslator(cfg *config.Config, client *http.Client, logger zerolog.Logger) translate.Translator {
	if cfg.TranslateBackend == "openai" {
		return translate.NewOpenAITranslator(translate.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}, logger)
	}

	return translate.NewGoogleTranslator(translate.GoogleConfig{
		URL:     cfg.GoogleTranslateURL,
		Timeout: cfg.HTTPTimeoutDuration(),
	}, client, logger)
}

func breakerCheck(cb *resilience.CircuitBreaker) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if cb.GetState() == resilience.StateOpen {
			state, _, failures, _ := cb.GetStats()
			return false, fmt.Errorf("circuit %s is %s after %d failures", cb.Name(), state, failures)
		}
		return true, nil
	}
}
