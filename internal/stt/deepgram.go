package stt

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

var deepgramInit sync.Once

// DeepgramConfig configures prerecorded transcription
type DeepgramConfig struct {
	APIKey string
	Model  string
}

// DeepgramRecognizer transcribes WAV utterances with Deepgram's prerecorded API
type DeepgramRecognizer struct {
	config DeepgramConfig
	client *api.Client
	logger zerolog.Logger
}

// NewDeepgramRecognizer creates a recognizer
func NewDeepgramRecognizer(config DeepgramConfig, logger zerolog.Logger) *DeepgramRecognizer {
	deepgramInit.Do(listenClient.InitWithDefault)

	rest := listenClient.NewREST(config.APIKey, &interfaces.ClientOptions{})
	return &DeepgramRecognizer{
		config: config,
		client: api.New(rest),
		logger: logger.With().Str("component", "stt").Str("backend", "deepgram").Logger(),
	}
}

func (d *DeepgramRecognizer) Name() string {
	return "deepgram"
}

// Transcribe uploads blob in one request
func (d *DeepgramRecognizer) Transcribe(ctx context.Context, blob voice.AudioBlob, languageHint string) voice.TranscriptionResult {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:     d.config.Model,
		Language:  deepgramLanguage(languageHint),
		Punctuate: true,
	}

	res, err := d.client.FromStream(ctx, bytes.NewReader(blob.Data), options)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Deepgram request failed")
		if resilience.IsRetryableNetworkError(err) || isTransientStatus(err) {
			return voice.Unavailable(err.Error())
		}
		return voice.TranscriptionFailed(err.Error())
	}

	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 ||
		len(res.Results.Channels[0].Alternatives) == 0 {
		return voice.Unrecognized("no alternatives")
	}

	return voice.Transcribed(res.Results.Channels[0].Alternatives[0].Transcript)
}

// Deepgram takes bare language codes ("ja"), recognizers elsewhere take locales ("ja-JP")
func deepgramLanguage(hint string) string {
	if i := strings.IndexByte(hint, '-'); i > 0 {
		return hint[:i]
	}
	return hint
}

// isTransientStatus reports server-side and rate-limit replies
func isTransientStatus(err error) bool {
	var statusErr *interfaces.StatusError
	if !errors.As(err, &statusErr) || statusErr.Resp == nil {
		return false
	}
	code := statusErr.Resp.StatusCode
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

var _ Recognizer = (*DeepgramRecognizer)(nil)
