package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// URLResolver turns an upstream file reference into a download URL
type URLResolver interface {
	ResolveURL(ctx context.Context, fileID string) (string, error)
}

// HTTPConfig bounds a download
type HTTPConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

// HTTPFetcher downloads remote audio files
type HTTPFetcher struct {
	client   *http.Client
	resolver URLResolver
	config   HTTPConfig
	logger   zerolog.Logger
}

// NewHTTPFetcher creates a fetcher. resolver may be nil when every SourceRef carries a URL.
func NewHTTPFetcher(client *http.Client, resolver URLResolver, config HTTPConfig, logger zerolog.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 20 << 20
	}
	return &HTTPFetcher{
		client:   client,
		resolver: resolver,
		config:   config,
		logger:   logger.With().Str("component", "retrieval").Logger(),
	}
}

// Fetch resolves and downloads the referenced file. The bytes are returned
// untouched with the declared format.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref voice.SourceRef) (voice.AudioBlob, error) {
	const op = "retrieval.fetch"

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	url := ref.URL
	if url == "" {
		if f.resolver == nil || ref.FileID == "" {
			return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("%w: source has neither URL nor file reference", voice.ErrNotFound))
		}
		resolved, err := f.resolver.ResolveURL(ctx, ref.FileID)
		if err != nil {
			return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, classifyResolveError(err))
		}
		url = resolved
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("%w: %v", voice.ErrNotFound, err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("%w: %v", voice.ErrNetwork, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("%w: status %d", voice.ErrNotFound, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("%w: status %d", voice.ErrNetwork, resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("%w: read body: %v", voice.ErrNetwork, err))
	}
	if int64(len(data)) > f.config.MaxBytes {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("audio exceeds %d bytes", f.config.MaxBytes))
	}

	f.logger.Debug().Int("bytes", len(data)).Str("format", string(ref.Format)).Msg("Audio downloaded")

	return voice.AudioBlob{Data: data, Format: ref.Format}, nil
}

// Resolver errors that already carry a cause keep it; anything else is a network failure
func classifyResolveError(err error) error {
	if errors.Is(err, voice.ErrNotFound) || errors.Is(err, voice.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: resolve file: %v", voice.ErrNetwork, err)
}

var _ Fetcher = (*HTTPFetcher)(nil)
