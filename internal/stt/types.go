package stt

import (
	"context"

	"github.com/lexiqai/voice-reader/internal/observability"
	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Recognizer transcribes one normalized utterance. It never returns an error
// value: every failure is folded into the result status.
type Recognizer interface {
	// Transcribe makes exactly one call to the speech service
	Transcribe(ctx context.Context, blob voice.AudioBlob, languageHint string) voice.TranscriptionResult

	// Name identifies the backend in logs and metrics
	Name() string
}

// Guarded wraps a recognizer with a circuit breaker. Only Unavailable results
// count as failures; unrecognized audio says nothing about service health.
type Guarded struct {
	next    Recognizer
	breaker *resilience.CircuitBreaker
}

// NewGuarded protects next with breaker and exports the breaker state as metrics
func NewGuarded(next Recognizer, breaker *resilience.CircuitBreaker) *Guarded {
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Name() string {
	return g.next.Name()
}

// Transcribe short-circuits to Unavailable while the breaker is open
func (g *Guarded) Transcribe(ctx context.Context, blob voice.AudioBlob, languageHint string) voice.TranscriptionResult {
	if !g.breaker.Allow() {
		return voice.Unavailable(resilience.ErrCircuitOpen.Error())
	}

	result := g.next.Transcribe(ctx, blob, languageHint)
	if result.Status == voice.TranscriptionUnavailable {
		g.breaker.RecordResult(false)
		observability.IncrementCircuitBreakerFailures(g.breaker.Name())
	} else {
		g.breaker.RecordResult(true)
	}
	return result
}

var _ Recognizer = (*Guarded)(nil)
