// Package compose builds the user-facing reply for a processed utterance.
package compose

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// Markers shown in place of a reading or translation that failed
const (
	ReadingUnavailable     = "reading unavailable"
	TranslationUnavailable = "translation unavailable"
)

// Notice texts
const (
	MessageUnavailable  = "Speech service unavailable, please try again later."
	MessageUnrecognized = "Sorry, I could not understand the audio."
	MessageFailed       = "Could not process the voice message."
)

// ErrNotTranscribed is returned when composing from a non-success transcription
var ErrNotTranscribed = errors.New("transcription did not succeed")

// Composer assembles replies. It does no I/O.
type Composer struct {
	lookupURL string
	mode      string
}

// New creates a composer whose reference links point at lookupURL with the given mode flag
func New(lookupURL, mode string) *Composer {
	return &Composer{lookupURL: lookupURL, mode: mode}
}

// LookupLink embeds the percent-encoded text into the lookup URL
func (c *Composer) LookupLink(text string) string {
	q := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return fmt.Sprintf("%s?q=%s&r=%s", c.lookupURL, q, url.QueryEscape(c.mode))
}

// Compose builds the reply for a successful transcription. A failed reading or
// translation is replaced by its marker.
func (c *Composer) Compose(
	transcription voice.TranscriptionResult,
	reading voice.PhoneticReading,
	readingErr error,
	translation voice.TranslationResult,
	event voice.Event,
) (voice.ComposedReply, error) {
	if !transcription.OK() {
		return voice.ComposedReply{}, fmt.Errorf("compose: %w (status %s)", ErrNotTranscribed, transcription.Status)
	}

	reply := voice.ComposedReply{
		Transcription: transcription.Text,
		Reading:       ReadingUnavailable,
		Translation:   TranslationUnavailable,
		ReferenceLink: c.LookupLink(transcription.Text),
		Destination:   event.Destination,
	}
	if readingErr == nil && reading.Text != "" {
		reply.Reading = reading.Text
		reply.ReadingOK = true
	}
	if translation.OK() {
		reply.Translation = translation.Text
		reply.TranslationOK = true
	}

	return reply, nil
}

// NoticeFor maps a classified pipeline failure to the message shown to the user
func NoticeFor(err error) voice.Notice {
	kind := voice.KindOf(err)
	switch kind {
	case voice.KindRecognitionUnavailable:
		return voice.Notice{Kind: kind, Message: MessageUnavailable}
	case voice.KindRecognitionUnrecognized:
		return voice.Notice{Kind: kind, Message: MessageUnrecognized}
	}
	return voice.Notice{Kind: kind, Message: MessageFailed}
}

// ComposedReply wraps a composed payload for delivery
func ComposedReply(event voice.Event, composed voice.ComposedReply) voice.Reply {
	return voice.Reply{EventID: event.ID, Destination: event.Destination, Composed: &composed}
}

// NoticeReply wraps the notice for err for delivery
func NoticeReply(event voice.Event, err error) voice.Reply {
	notice := NoticeFor(err)
	return voice.Reply{EventID: event.ID, Destination: event.Destination, Notice: &notice}
}
