package translate

import (
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

// GoogleConfig configures the public translate_a endpoint
type GoogleConfig struct {
	URL     string // e.g. https://translate.googleapis.com/translate_a/single
	Timeout time.Duration
}

// GoogleTranslator calls the translate_a/single endpoint
type GoogleTranslator struct {
	config GoogleConfig
	client *http.Client
	logger zerolog.Logger
}

// NewGoogleTranslator creates a translator
func NewGoogleTranslator(config GoogleConfig, client *http.Client, logger zerolog.Logger) *GoogleTranslator {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	return &GoogleTranslator{
		config: config,
		client: client,
		logger: logger.With().Str("component", "translate").Str("backend", "google").Logger(),
	}
}

func (g *GoogleTranslator) Name() string {
	return "google"
}

// Translate makes a single request
func (g *GoogleTranslator) Translate(ctx context.Context, text, source, target string) voice.TranslationResult {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.URL+"?"+q.Encode(), nil)
	if err != nil {
		return voice.TranslationFailed(fmt.Sprintf("build request: %v", err))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Translation request failed")
		return voice.TranslationFailed(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return voice.TranslationFailed(fmt.Sprintf("translation service status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return voice.TranslationFailed(fmt.Sprintf("read response: %v", err))
	}

	translated, err := parseGoogleTranslation(body)
	if err != nil {
		return voice.TranslationFailed(err.Error())
	}
	return voice.Translated(translated)
}

// The response is a nested array whose first element lists sentence
// segments as [translated, original, ...]
func parseGoogleTranslation(body []byte) (string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("malformed translation response: %w", err)
	}
	if len(root) == 0 {
		return "", fmt.Errorf("empty translation response")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(root[0], &segments); err != nil {
		return "", fmt.Errorf("malformed translation segments: %w", err)
	}

	var sb strings.Builder
	for _, segment := range segments {
		if len(segment) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(segment[0], &part); err != nil {
			continue
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

var _ Translator = (*GoogleTranslator)(nil)
