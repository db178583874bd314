package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// GoogleConfig configures the Google speech v2 endpoint
type GoogleConfig struct {
	URL     string // e.g. http://www.google.com/speech-api/v2/recognize
	Key     string
	Timeout time.Duration
}

// GoogleRecognizer posts raw 16-bit PCM to the Google speech v2 endpoint
type GoogleRecognizer struct {
	config GoogleConfig
	client *http.Client
	logger zerolog.Logger
}

// NewGoogleRecognizer creates a recognizer
func NewGoogleRecognizer(config GoogleConfig, client *http.Client, logger zerolog.Logger) *GoogleRecognizer {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	return &GoogleRecognizer{
		config: config,
		client: client,
		logger: logger.With().Str("component", "stt").Str("backend", "google").Logger(),
	}
}

func (g *GoogleRecognizer) Name() string {
	return "google"
}

type googleResponse struct {
	Result []struct {
		Alternative []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternative"`
		Final bool `json:"final"`
	} `json:"result"`
}

// Transcribe sends blob (pcm_s16le, mono) in one request
func (g *GoogleRecognizer) Transcribe(ctx context.Context, blob voice.AudioBlob, languageHint string) voice.TranscriptionResult {
	if blob.Format != voice.FormatPCM || blob.SampleRate <= 0 {
		return voice.TranscriptionFailed(fmt.Sprintf("google recognizer needs pcm_s16le with a sample rate, got %s", blob.Format))
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("client", "chromium")
	q.Set("lang", languageHint)
	q.Set("key", g.config.Key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL+"?"+q.Encode(), bytes.NewReader(blob.Data))
	if err != nil {
		return voice.TranscriptionFailed(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d", blob.SampleRate))

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Speech request failed")
		return voice.Unavailable(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return voice.Unavailable(fmt.Sprintf("read response: %v", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return voice.Unavailable(fmt.Sprintf("speech service status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return voice.TranscriptionFailed(fmt.Sprintf("speech service status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	transcript, err := parseGoogleResponse(body)
	if err != nil {
		return voice.TranscriptionFailed(err.Error())
	}
	return voice.Transcribed(transcript)
}

// parseGoogleResponse reads newline separated JSON objects. A final result
// wins over an interim one; the first alternative of a result is used.
func parseGoogleResponse(body []byte) (string, error) {
	var first string

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp googleResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return "", fmt.Errorf("malformed speech response: %w", err)
		}

		for _, result := range resp.Result {
			if len(result.Alternative) == 0 {
				continue
			}
			text := strings.TrimSpace(result.Alternative[0].Transcript)
			if text == "" {
				continue
			}
			if result.Final {
				return text, nil
			}
			if first == "" {
				first = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read speech response: %w", err)
	}

	return first, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Recognizer = (*GoogleRecognizer)(nil)
