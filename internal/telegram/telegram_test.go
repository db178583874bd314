package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

const testToken = "123:abc"

// fakeAPI answers Bot API calls from per-method handlers and records every call
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]func(form url.Values, call int) string
	calls    map[string][]url.Values
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{
		handlers: map[string]func(url.Values, int) string{
			"getMe": func(url.Values, int) string {
				return `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Reader","username":"reader_bot"}}`
			},
		},
		calls: map[string][]url.Values{},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/file/") {
			w.Write([]byte("OggS"))
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		f.calls[method] = append(f.calls[method], r.PostForm)
		call := len(f.calls[method])
		handler := f.handlers[method]
		f.mu.Unlock()

		if handler == nil {
			w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found: method not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(handler(r.PostForm, call)))
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeAPI) handle(method string, h func(form url.Values, call int) string) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

func (f *fakeAPI) callsTo(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.calls[method]...)
}

func testConfig(server *httptest.Server) Config {
	return Config{
		Token:        testToken,
		APIEndpoint:  server.URL + "/bot%s/%s",
		FileEndpoint: server.URL + "/file/bot%s/%s",
		PollTimeout:  0,
	}
}

var fastReconnect = &resilience.ReconnectConfig{MaxAttempts: 3, Backoff: time.Millisecond, Multiplier: 2, MaxBackoff: 2 * time.Millisecond}

func connect(t *testing.T, server *httptest.Server) *Bot {
	t.Helper()
	bot, err := Connect(context.Background(), testConfig(server), server.Client(), fastReconnect, zerolog.Nop())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return bot
}

const sentMessage = `{"ok":true,"result":{"message_id":11,"date":0,"chat":{"id":42,"type":"private"}}}`

func voiceUpdate(updateID, messageID int) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":0,"chat":{"id":42,"type":"private"},"voice":{"file_id":"voice-%d","file_unique_id":"u%d","duration":2,"mime_type":"audio/ogg"}}}`,
		updateID, messageID, messageID, messageID)
}

func TestConnect(t *testing.T) {
	_, server := newFakeAPI(t)

	bot := connect(t, server)
	if bot.Username() != "reader_bot" {
		t.Errorf("Expected username 'reader_bot', got '%s'", bot.Username())
	}
}

func TestConnect_InvalidTokenIsFatal(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("getMe", func(url.Values, int) string {
		return `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	})

	_, err := Connect(context.Background(), testConfig(server), server.Client(), fastReconnect, zerolog.Nop())
	if !voice.IsFatal(err) {
		t.Fatalf("Expected fatal configuration error, got %v", err)
	}
	if n := len(api.callsTo("getMe")); n != 1 {
		t.Errorf("Expected a single attempt for a rejected token, got %d", n)
	}
}

func TestConnect_RetriesTransientFailure(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("getMe", func(_ url.Values, call int) string {
		if call == 1 {
			return `{"ok":false,"error_code":502,"description":"Bad Gateway"}`
		}
		return `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Reader","username":"reader_bot"}}`
	})

	connect(t, server)
	if n := len(api.callsTo("getMe")); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

func TestTrigger_DeliversVoiceMessagesInOrder(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("getUpdates", func(_ url.Values, call int) string {
		if call == 1 {
			text := `{"update_id":101,"message":{"message_id":6,"date":0,"chat":{"id":42,"type":"private"},"text":"hi"}}`
			return `{"ok":true,"result":[` + voiceUpdate(100, 5) + `,` + text + `,` + voiceUpdate(102, 7) + `]}`
		}
		return `{"ok":true,"result":[]}`
	})

	trigger := NewTrigger(connect(t, server), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := trigger.NextEvent(ctx)
	if err != nil {
		t.Fatalf("NextEvent failed: %v", err)
	}
	second, err := trigger.NextEvent(ctx)
	if err != nil {
		t.Fatalf("NextEvent failed: %v", err)
	}

	if first.ID != "42:5" || second.ID != "42:7" {
		t.Errorf("Expected events 42:5 then 42:7, got %s then %s", first.ID, second.ID)
	}
	if first.Source.Kind != voice.SourceRemote || first.Source.FileID != "voice-5" || first.Source.Format != voice.FormatOggOpus {
		t.Errorf("Unexpected source: %+v", first.Source)
	}
	if first.Destination.Channel != "42" || first.Destination.ReplyTo != "5" {
		t.Errorf("Unexpected destination: %+v", first.Destination)
	}

	// The batch was consumed from the buffer without polling again
	if n := len(api.callsTo("getUpdates")); n != 1 {
		t.Errorf("Expected 1 poll, got %d", n)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	if _, err := trigger.NextEvent(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error while idle, got %v", err)
	}

	polls := api.callsTo("getUpdates")
	if len(polls) < 2 {
		t.Fatal("Expected a follow-up poll")
	}
	if got := polls[1].Get("offset"); got != "103" {
		t.Errorf("Expected offset 103 after the batch, got %q", got)
	}
}

func TestTrigger_ErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		fatal bool
	}{
		{"revoked token", `{"ok":false,"error_code":401,"description":"Unauthorized"}`, true},
		{"server error", `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, false},
		{"conflict", `{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, server := newFakeAPI(t)
			api.handle("getUpdates", func(url.Values, int) string { return tt.reply })

			trigger := NewTrigger(connect(t, server), zerolog.Nop())
			_, err := trigger.NextEvent(context.Background())
			if err == nil {
				t.Fatal("Expected an error")
			}
			if voice.IsFatal(err) != tt.fatal {
				t.Errorf("Expected fatal=%v, got %v", tt.fatal, err)
			}
			if !tt.fatal && voice.KindOf(err) != voice.KindConnectionLost {
				t.Errorf("Expected connection lost, got %s", voice.KindOf(err))
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("getFile", func(form url.Values, _ int) string {
		if form.Get("file_id") != "voice-5" {
			return `{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`
		}
		return `{"ok":true,"result":{"file_id":"voice-5","file_unique_id":"u5","file_size":4,"file_path":"voice/file_5.oga"}}`
	})
	bot := connect(t, server)

	got, err := bot.ResolveURL(context.Background(), "voice-5")
	if err != nil {
		t.Fatalf("ResolveURL failed: %v", err)
	}
	want := server.URL + "/file/bot" + testToken + "/voice/file_5.oga"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	_, err = bot.ResolveURL(context.Background(), "missing")
	if !errors.Is(err, voice.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func composedReply() voice.Reply {
	return voice.Reply{
		EventID:     "42:5",
		Destination: voice.Destination{Channel: "42", ReplyTo: "5"},
		Composed: &voice.ComposedReply{
			Transcription: "ありがとう",
			Reading:       "ありがとう",
			ReadingOK:     true,
			Translation:   "Thank you",
			TranslationOK: true,
			ReferenceLink: "https://ichi.moe/cl/qr/?q=%E3%81%82&r=htr",
		},
	}
}

func testSink(bot *Bot) *Sink {
	return NewSink(bot, SinkConfig{
		Rate:  1000,
		Burst: 10,
		Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
	}, zerolog.Nop())
}

func TestSink_DeliversThreadedMarkdown(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("sendMessage", func(url.Values, int) string { return sentMessage })

	if err := testSink(connect(t, server)).Deliver(context.Background(), composedReply()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	sent := api.callsTo("sendMessage")
	if len(sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sent))
	}
	form := sent[0]
	if form.Get("chat_id") != "42" || form.Get("reply_to_message_id") != "5" {
		t.Errorf("Expected reply to message 5 in chat 42, got %v", form)
	}
	if form.Get("parse_mode") != "Markdown" {
		t.Errorf("Expected Markdown parse mode, got %q", form.Get("parse_mode"))
	}
	if !strings.Contains(form.Get("text"), "[Detailed Parsing](https://ichi.moe/cl/qr/") {
		t.Errorf("Expected reference link in text, got %q", form.Get("text"))
	}
}

func TestSink_RetriesThrottledSend(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("sendMessage", func(_ url.Values, call int) string {
		if call == 1 {
			return `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 0","parameters":{"retry_after":0}}`
		}
		return sentMessage
	})

	if err := testSink(connect(t, server)).Deliver(context.Background(), composedReply()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if n := len(api.callsTo("sendMessage")); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

func TestSink_FallsBackToPlainText(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("sendMessage", func(form url.Values, _ int) string {
		if form.Get("parse_mode") != "" {
			return `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: Can't find end of the entity starting at byte offset 12"}`
		}
		return sentMessage
	})

	if err := testSink(connect(t, server)).Deliver(context.Background(), composedReply()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	sent := api.callsTo("sendMessage")
	if len(sent) != 2 {
		t.Fatalf("Expected Markdown attempt plus plain resend, got %d", len(sent))
	}
	if !strings.Contains(sent[1].Get("text"), "Detailed Parsing: https://ichi.moe/") {
		t.Errorf("Expected plain rendering, got %q", sent[1].Get("text"))
	}
}

func TestSink_PermanentFailure(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handle("sendMessage", func(url.Values, int) string {
		return `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	})
	sink := testSink(connect(t, server))

	err := sink.Deliver(context.Background(), composedReply())
	if voice.KindOf(err) != voice.KindDelivery {
		t.Errorf("Expected delivery error, got %v", err)
	}
	if n := len(api.callsTo("sendMessage")); n != 1 {
		t.Errorf("Expected no retry for a forbidden chat, got %d attempts", n)
	}

	bad := composedReply()
	bad.Destination.Channel = "not-a-chat"
	if err := sink.Deliver(context.Background(), bad); voice.KindOf(err) != voice.KindDelivery {
		t.Errorf("Expected delivery error for a bad chat id, got %v", err)
	}
}

func TestFormatFromMIME(t *testing.T) {
	tests := map[string]voice.AudioFormat{
		"":            voice.FormatOggOpus,
		"audio/ogg":   voice.FormatOggOpus,
		"audio/x-wav": voice.FormatWAV,
		"audio/mpeg":  voice.AudioFormat("audio/mpeg"),
	}
	for mime, want := range tests {
		if got := formatFromMIME(mime); got != want {
			t.Errorf("formatFromMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
