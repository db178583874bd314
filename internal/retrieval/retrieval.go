// Package retrieval obtains the raw audio bytes of an event.
package retrieval

import (
	"context"
	"fmt"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// Fetcher obtains the audio an event points at
type Fetcher interface {
	Fetch(ctx context.Context, ref voice.SourceRef) (voice.AudioBlob, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, ref voice.SourceRef) (voice.AudioBlob, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref voice.SourceRef) (voice.AudioBlob, error) {
	return f(ctx, ref)
}

// Router dispatches on the source kind
type Router struct {
	routes map[voice.SourceKind]Fetcher
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{routes: make(map[voice.SourceKind]Fetcher)}
}

// Handle registers the fetcher for a kind and returns the router for chaining
func (r *Router) Handle(kind voice.SourceKind, f Fetcher) *Router {
	r.routes[kind] = f
	return r
}

// Fetch forwards to the fetcher registered for ref.Kind
func (r *Router) Fetch(ctx context.Context, ref voice.SourceRef) (voice.AudioBlob, error) {
	f, ok := r.routes[ref.Kind]
	if !ok {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, "retrieval.route", fmt.Errorf("%w: no fetcher for source kind %q", voice.ErrNotFound, ref.Kind))
	}
	return f.Fetch(ctx, ref)
}

var _ Fetcher = (*Router)(nil)
