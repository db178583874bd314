package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/queue"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Trigger long-polls the Bot API for voice messages. Updates arrive in
// batches; events from a batch are handed out one at a time in order.
type Trigger struct {
	bot     *Bot
	offset  int
	pending *queue.Queue[voice.Event]
	logger  zerolog.Logger
}

// NewTrigger creates a trigger reading updates for bot
func NewTrigger(bot *Bot, logger zerolog.Logger) *Trigger {
	return &Trigger{
		bot:     bot,
		pending: queue.New[voice.Event](),
		logger:  logger.With().Str("component", "telegram_trigger").Logger(),
	}
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// NextEvent blocks until a voice message arrives, ctx is done or the poll fails
func (t *Trigger) NextEvent(ctx context.Context) (voice.Event, error) {
	for {
		if event, ok := t.pending.Dequeue(); ok {
			return event, nil
		}

		updates, err := t.poll(ctx)
		if err != nil {
			return voice.Event{}, err
		}

		for _, update := range updates {
			if update.UpdateID >= t.offset {
				t.offset = update.UpdateID + 1
			}
			if event, ok := eventFromUpdate(update); ok {
				t.pending.Enqueue(event)
			} else {
				t.logger.Debug().Int("update_id", update.UpdateID).Msg("Ignoring update without audio")
			}
		}
		if len(updates) > 0 {
			t.logger.Debug().Int("updates", len(updates)).Int("pending", t.pending.Len()).Msg("Polled updates")
		}
	}
}

// poll runs one getUpdates call. The client library has no context support,
// so an abandoned call finishes in the background and its batch is fetched
// again on the next poll.
func (t *Trigger) poll(ctx context.Context) ([]tgbotapi.Update, error) {
	config := tgbotapi.NewUpdate(t.offset)
	config.Timeout = t.bot.config.PollTimeout
	config.AllowedUpdates = []string{"message"}

	done := make(chan pollResult, 1)
	go func() {
		updates, err := t.bot.api.GetUpdates(config)
		done <- pollResult{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, classify("telegram.getUpdates", res.err)
		}
		return res.updates, nil
	}
}

func eventFromUpdate(update tgbotapi.Update) (voice.Event, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return voice.Event{}, false
	}

	var source voice.SourceRef
	switch {
	case msg.Voice != nil:
		source = voice.SourceRef{Kind: voice.SourceRemote, FileID: msg.Voice.FileID, Format: formatFromMIME(msg.Voice.MimeType)}
	case msg.Audio != nil:
		source = voice.SourceRef{Kind: voice.SourceRemote, FileID: msg.Audio.FileID, Format: formatFromMIME(msg.Audio.MimeType)}
	default:
		return voice.Event{}, false
	}

	return voice.Event{
		ID:     fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID),
		Source: source,
		Destination: voice.Destination{
			Channel: strconv.FormatInt(msg.Chat.ID, 10),
			ReplyTo: strconv.Itoa(msg.MessageID),
		},
	}, true
}

// Voice notes are always Ogg/Opus; audio files carry their own type
func formatFromMIME(mime string) voice.AudioFormat {
	switch strings.ToLower(mime) {
	case "", "audio/ogg", "audio/opus":
		return voice.FormatOggOpus
	case "audio/wav", "audio/x-wav", "audio/wave":
		return voice.FormatWAV
	}
	return voice.AudioFormat(mime)
}
