package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lexiqai/voice-reader/internal/compose"
	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// SinkConfig controls reply delivery
type SinkConfig struct {
	Rate  float64 // Messages per second across all chats
	Burst int
	Retry *resilience.RetryConfig
}

// Sink sends replies to the chat the voice message came from
type Sink struct {
	bot     *Bot
	limiter *rate.Limiter
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
}

// NewSink creates a sink sending through bot
func NewSink(bot *Bot, config SinkConfig, logger zerolog.Logger) *Sink {
	if config.Rate <= 0 {
		config.Rate = 20
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.Retry == nil {
		config.Retry = resilience.DefaultRetryConfig()
	}
	return &Sink{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		retry:   config.Retry,
		logger:  logger.With().Str("component", "telegram_sink").Logger(),
	}
}

// Deliver posts the reply as a Markdown message threaded to the original
// voice message. A reply Telegram cannot parse as Markdown is resent as plain text.
func (s *Sink) Deliver(ctx context.Context, reply voice.Reply) error {
	const op = "telegram.deliver"

	chatID, err := strconv.ParseInt(reply.Destination.Channel, 10, 64)
	if err != nil {
		return voice.E(voice.KindDelivery, op, err)
	}

	text := compose.Markdown(reply)
	if text == "" {
		return voice.E(voice.KindDelivery, op, errors.New("empty reply"))
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if replyTo, err := strconv.Atoi(reply.Destination.ReplyTo); err == nil {
		msg.ReplyToMessageID = replyTo
	}

	err = s.send(ctx, msg)
	if isParseError(err) {
		s.logger.Warn().Err(err).Str("event_id", reply.EventID).Msg("Markdown rejected, resending as plain text")
		msg.Text = compose.Plain(reply)
		msg.ParseMode = ""
		err = s.send(ctx, msg)
	}
	if err != nil {
		return voice.E(voice.KindDelivery, op, err)
	}
	return nil
}

func (s *Sink) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	return resilience.Retry(ctx, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := s.bot.api.Send(msg)
		return err
	}, s.retry, isRetryableSend)
}

func isRetryableSend(err error) bool {
	if apiErr, ok := apiError(err); ok {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return resilience.IsRetryableNetworkError(err)
}

func isParseError(err error) bool {
	apiErr, ok := apiError(err)
	return ok && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}
