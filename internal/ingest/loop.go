package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/observability"
	"github.com/lexiqai/voice-reader/internal/resilience"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// State is the loop's current activity
type State int32

const (
	StateStarting State = iota
	StateIdle
	StateListening
	StateProcessing
	StateDelivering
	StateReconnecting
	StateStopped
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateDelivering:
		return "delivering"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateFatal:
		return "fatal"
	}
	return "unknown"
}

// Connected reports whether the loop holds a working connection to its trigger
func (s State) Connected() bool {
	return s >= StateIdle && s <= StateDelivering
}

// Values exported through the loop state gauge
const (
	gaugeConnected    = 0
	gaugeReconnecting = 1
	gaugeStopped      = 2
	gaugeFatal        = 3
	gaugeStarting     = 4
)

// Config controls the loop
type Config struct {
	PipelineTimeout time.Duration // Bound for one event, including delivery
	Reconnect       *resilience.ReconnectConfig
}

// Loop processes events one at a time in arrival order
type Loop struct {
	trigger   Trigger
	processor Processor
	sink      Sink
	config    Config
	backoff   *resilience.LoopBackoff
	logger    zerolog.Logger
	state     atomic.Int32
}

// NewLoop creates a loop
func NewLoop(trigger Trigger, processor Processor, sink Sink, config Config, logger zerolog.Logger) *Loop {
	if config.PipelineTimeout <= 0 {
		config.PipelineTimeout = 90 * time.Second
	}
	observability.SetLoopState(gaugeStarting)
	return &Loop{
		trigger:   trigger,
		processor: processor,
		sink:      sink,
		config:    config,
		backoff:   resilience.NewLoopBackoff(config.Reconnect),
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

// State returns the current state
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Ready is a readiness check for the HTTP health endpoints
func (l *Loop) Ready(ctx context.Context) (bool, error) {
	state := l.State()
	if !state.Connected() {
		return false, &stateError{state: state}
	}
	return true, nil
}

// Run loops until ctx is done (returns nil) or the trigger reports a fatal
// configuration error (returns it). An event that is already being processed
// when ctx is cancelled is finished and delivered first.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Msg("Ingestion loop started")
	l.setState(StateIdle)

	for {
		if ctx.Err() != nil {
			l.stop()
			return nil
		}

		l.setState(StateListening)
		event, err := l.trigger.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.stop()
				return nil
			}
			if voice.IsFatal(err) {
				l.setState(StateFatal)
				observability.RecordError(voice.KindFatalConfiguration.String(), "ingest")
				l.logger.Error().Err(err).Msg("Fatal trigger error, stopping")
				return err
			}

			l.setState(StateReconnecting)
			observability.RecordReconnect()
			observability.RecordError(voice.KindConnectionLost.String(), "ingest")
			wait := l.backoff.Next()
			l.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Connection lost, reconnecting")

			if !sleep(ctx, wait) {
				l.stop()
				return nil
			}
			continue
		}

		l.backoff.Reset()
		l.handle(ctx, event)
		l.setState(StateIdle)
	}
}

func (l *Loop) handle(ctx context.Context, event voice.Event) {
	// Cancellation of ctx must not abandon an accepted event
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.PipelineTimeout)
	defer cancel()

	logger := l.logger.With().Str("event_id", event.ID).Logger()
	logger.Info().Str("source", string(event.Source.Kind)).Msg("Event received")

	l.setState(StateProcessing)
	reply := l.processor.Process(ectx, event)

	l.setState(StateDelivering)
	if err := l.sink.Deliver(ectx, reply); err != nil {
		observability.RecordError(voice.KindDelivery.String(), "ingest")
		logger.Error().Err(err).Msg("Reply delivery failed")
		return
	}
	logger.Debug().Msg("Reply delivered")
}

func (l *Loop) stop() {
	l.setState(StateStopped)
	l.logger.Info().Msg("Ingestion loop stopped")
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))

	switch s {
	case StateReconnecting:
		observability.SetLoopState(gaugeReconnecting)
	case StateStopped:
		observability.SetLoopState(gaugeStopped)
	case StateFatal:
		observability.SetLoopState(gaugeFatal)
	default:
		observability.SetLoopState(gaugeConnected)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type stateError struct {
	state State
}

func (e *stateError) Error() string {
	return "ingestion loop is " + e.state.String()
}
