// Package telegram connects the ingestion loop to a Telegram bot: voice
// messages come in through long polling and replies go back as threaded
// Markdown messages.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Config holds the bot connection settings
type Config struct {
	Token        string
	APIEndpoint  string // printf pattern taking the token and the method
	FileEndpoint string // printf pattern taking the token and the file path
	PollTimeout  int    // Long-poll timeout in seconds
}

// Bot is an authenticated Bot API client
type Bot struct {
	api    *tgbotapi.BotAPI
	config Config
	logger zerolog.Logger
}

// Connect authenticates against the Bot API, retrying transient failures.
// A rejected token fails immediately with a FatalConfiguration error.
func Connect(ctx context.Context, config Config, client *http.Client, reconnect *resilience.ReconnectConfig, logger zerolog.Logger) (*Bot, error) {
	const op = "telegram.connect"

	if config.APIEndpoint == "" {
		config.APIEndpoint = tgbotapi.APIEndpoint
	}
	if config.FileEndpoint == "" {
		config.FileEndpoint = tgbotapi.FileEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	logger = logger.With().Str("component", "telegram").Logger()

	var api *tgbotapi.BotAPI
	connect := func(ctx context.Context) error {
		var err error
		api, err = tgbotapi.NewBotAPIWithClient(config.Token, config.APIEndpoint, client)
		return err
	}

	if err := resilience.Reconnect(ctx, connect, reconnect, isUnauthorized, logger); err != nil {
		if isUnauthorized(err) {
			return nil, voice.E(voice.KindFatalConfiguration, op, err)
		}
		return nil, voice.E(voice.KindConnectionLost, op, err)
	}

	bot := &Bot{api: api, config: config, logger: logger}
	logger.Info().Str("bot", bot.Username()).Msg("Connected to Telegram")
	return bot, nil
}

// Username returns the bot's handle
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// ResolveURL turns a file reference into a direct download URL
func (b *Bot) ResolveURL(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		if apiErr, ok := apiError(err); ok && apiErr.Code == http.StatusBadRequest {
			return "", fmt.Errorf("%w: %s", voice.ErrNotFound, apiErr.Message)
		}
		return "", fmt.Errorf("%w: getFile: %v", voice.ErrNetwork, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("%w: file %s has no download path", voice.ErrNotFound, fileID)
	}

	return fmt.Sprintf(b.config.FileEndpoint, b.config.Token, file.FilePath), nil
}

func apiError(err error) (*tgbotapi.Error, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// The Bot API answers 404 for a malformed token and 401 for a revoked one
func isUnauthorized(err error) bool {
	apiErr, ok := apiError(err)
	if !ok {
		return false
	}
	return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound
}

// classify marks a failed Bot API call as fatal or as a lost connection
func classify(op string, err error) error {
	if isUnauthorized(err) {
		return voice.E(voice.KindFatalConfiguration, op, err)
	}
	return voice.E(voice.KindConnectionLost, op, err)
}
