// Package translate turns a transcript into the target language.
package translate

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lexiqai/voice-reader/internal/observability"
	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Translator makes one translation call. Every failure is reported as a
// Failure result, never as an error value.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) voice.TranslationResult
	Name() string
}

// Cached remembers successful translations of recent phrases
type Cached struct {
	next  Translator
	cache *expirable.LRU[string, string]
}

// NewCached wraps next with an LRU of size entries that expire after ttl
func NewCached(next Translator, size int, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *Cached) Name() string {
	return c.next.Name()
}

// Translate answers from the cache when it can; failures are never cached
func (c *Cached) Translate(ctx context.Context, text, source, target string) voice.TranslationResult {
	key := strings.Join([]string{source, target, text}, "\x00")
	if hit, ok := c.cache.Get(key); ok {
		return voice.Translated(hit)
	}

	result := c.next.Translate(ctx, text, source, target)
	if result.OK() {
		c.cache.Add(key, result.Text)
	}
	return result
}

// Guarded stops calling a translation service that keeps failing
type Guarded struct {
	next    Translator
	breaker *resilience.CircuitBreaker
}

// NewGuarded protects next with breaker
func NewGuarded(next Translator, breaker *resilience.CircuitBreaker) *Guarded {
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Name() string {
	return g.next.Name()
}

func (g *Guarded) Translate(ctx context.Context, text, source, target string) voice.TranslationResult {
	if !g.breaker.Allow() {
		return voice.TranslationFailed(resilience.ErrCircuitOpen.Error())
	}

	result := g.next.Translate(ctx, text, source, target)
	g.breaker.RecordResult(result.OK())
	if !result.OK() {
		observability.IncrementCircuitBreakerFailures(g.breaker.Name())
	}
	return result
}

var (
	_ Translator = (*Cached)(nil)
	_ Translator = (*Guarded)(nil)
)
