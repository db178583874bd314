package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

var pcmBlob = voice.AudioBlob{
	Data:       []byte{0x01, 0x00, 0x02, 0x00},
	Format:     voice.FormatPCM,
	SampleRate: 16000,
	Channels:   1,
}

func newGoogle(url string) *GoogleRecognizer {
	return NewGoogleRecognizer(GoogleConfig{URL: url, Key: "k", Timeout: 5 * time.Second}, nil, zerolog.Nop())
}

func TestGoogleRecognizer_Request(t *testing.T) {
	var gotQuery, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, "{\"result\":[]}\n{\"result\":[{\"alternative\":[{\"transcript\":\"ありがとう\",\"confidence\":0.92}],\"final\":true}],\"result_index\":0}\n")
	}))
	defer srv.Close()

	result := newGoogle(srv.URL).Transcribe(context.Background(), pcmBlob, "ja-JP")
	if !result.OK() || result.Text != "ありがとう" {
		t.Fatalf("Expected success with transcript, got %+v", result)
	}
	if gotQuery != "client=chromium&key=k&lang=ja-JP" {
		t.Errorf("Unexpected query: %s", gotQuery)
	}
	if gotType != "audio/l16; rate=16000" {
		t.Errorf("Unexpected content type: %s", gotType)
	}
	if len(gotBody) != len(pcmBlob.Data) {
		t.Errorf("Expected raw PCM body, got %d bytes", len(gotBody))
	}
}

func TestGoogleRecognizer_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   voice.TranscriptionStatus
		text   string
	}{
		{"final preferred", 200, `{"result":[{"alternative":[{"transcript":"こんにちわ"}]},{"alternative":[{"transcript":"こんにちは"}],"final":true}]}`, voice.TranscriptionSuccess, "こんにちは"},
		{"interim only", 200, `{"result":[{"alternative":[{"transcript":"はい"}]}]}`, voice.TranscriptionSuccess, "はい"},
		{"empty result", 200, "{\"result\":[]}\n", voice.TranscriptionUnrecognized, ""},
		{"empty body", 200, "", voice.TranscriptionUnrecognized, ""},
		{"blank transcript", 200, `{"result":[{"alternative":[{"transcript":"  "}],"final":true}]}`, voice.TranscriptionUnrecognized, ""},
		{"malformed", 200, `{"result":`, voice.TranscriptionFailure, ""},
		{"server error", 503, "busy", voice.TranscriptionUnavailable, ""},
		{"bad request", 400, "bad key", voice.TranscriptionFailure, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			result := newGoogle(srv.URL).Transcribe(context.Background(), pcmBlob, "ja-JP")
			if result.Status != tt.want {
				t.Fatalf("Expected %s, got %s (%s)", tt.want, result.Status, result.Detail)
			}
			if result.Text != tt.text {
				t.Errorf("Expected text %q, got %q", tt.text, result.Text)
			}
		})
	}
}

func TestGoogleRecognizer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := newGoogle(url).Transcribe(context.Background(), pcmBlob, "ja-JP")
	if result.Status != voice.TranscriptionUnavailable {
		t.Errorf("Expected unavailable, got %s", result.Status)
	}
	if result.Text != "" {
		t.Error("Expected no text on failure")
	}
}

func TestGoogleRecognizer_WrongFormat(t *testing.T) {
	result := newGoogle("http://127.0.0.1:0").Transcribe(context.Background(), voice.AudioBlob{Data: []byte("RIFF"), Format: voice.FormatWAV}, "ja-JP")
	if result.Status != voice.TranscriptionFailure {
		t.Errorf("Expected failure for non-PCM input, got %s", result.Status)
	}
}

type scriptedRecognizer struct {
	results []voice.TranscriptionResult
	calls   int
}

func (s *scriptedRecognizer) Name() string { return "scripted" }

func (s *scriptedRecognizer) Transcribe(ctx context.Context, blob voice.AudioBlob, hint string) voice.TranscriptionResult {
	r := s.results[s.calls%len(s.results)]
	s.calls++
	return r
}

func TestGuarded_OpensOnUnavailable(t *testing.T) {
	inner := &scriptedRecognizer{results: []voice.TranscriptionResult{voice.Unavailable("down")}}
	g := NewGuarded(inner, resilience.NewCircuitBreaker("asr-test", 2, time.Minute))

	g.Transcribe(context.Background(), pcmBlob, "ja-JP")
	g.Transcribe(context.Background(), pcmBlob, "ja-JP")

	result := g.Transcribe(context.Background(), pcmBlob, "ja-JP")
	if result.Status != voice.TranscriptionUnavailable {
		t.Errorf("Expected unavailable while open, got %s", result.Status)
	}
	if inner.calls != 2 {
		t.Errorf("Expected breaker to stop calls after 2, got %d", inner.calls)
	}
}

func TestGuarded_UnrecognizedIsHealthy(t *testing.T) {
	inner := &scriptedRecognizer{results: []voice.TranscriptionResult{voice.Unrecognized("silence")}}
	breaker := resilience.NewCircuitBreaker("asr-test-2", 1, time.Minute)
	g := NewGuarded(inner, breaker)

	for i := 0; i < 3; i++ {
		if r := g.Transcribe(context.Background(), pcmBlob, "ja-JP"); r.Status != voice.TranscriptionUnrecognized {
			t.Fatalf("Expected unrecognized, got %s", r.Status)
		}
	}
	if breaker.GetState() != resilience.StateClosed {
		t.Error("Expected breaker to stay closed")
	}
	if g.Name() != "scripted" {
		t.Errorf("Expected wrapped name, got %s", g.Name())
	}
}

func TestDeepgramLanguage(t *testing.T) {
	tests := map[string]string{
		"ja-JP": "ja",
		"ja":    "ja",
		"en-US": "en",
		"":      "",
	}
	for in, want := range tests {
		if got := deepgramLanguage(in); got != want {
			t.Errorf("deepgramLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsTransientStatus(t *testing.T) {
	status := func(code int) error {
		return &interfaces.StatusError{Resp: &http.Response{StatusCode: code}}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", status(http.StatusServiceUnavailable), true},
		{"bad gateway wrapped", fmt.Errorf("listen: %w", status(http.StatusBadGateway)), true},
		{"rate limited", status(http.StatusTooManyRequests), true},
		{"bad request", status(http.StatusBadRequest), false},
		{"unauthorized", status(http.StatusUnauthorized), false},
		{"digits in message", errors.New("model nova-500 rejected audio 503 bytes long"), false},
		{"missing response", &interfaces.StatusError{}, false},
	}
	for _, tt := range tests {
		if got := isTransientStatus(tt.err); got != tt.want {
			t.Errorf("%s: isTransientStatus() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
