// Package ingest drives the event loop: wait for an utterance, process it,
// deliver the reply, and survive connection loss on the way.
package ingest

import (
	"context"
	"errors"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// Trigger produces events. An error classified FatalConfiguration stops the
// loop; any other error is treated as a lost connection.
type Trigger interface {
	NextEvent(ctx context.Context) (voice.Event, error)
}

// Sink receives replies
type Sink interface {
	Deliver(ctx context.Context, reply voice.Reply) error
}

// Processor turns an event into a reply
type Processor interface {
	Process(ctx context.Context, event voice.Event) voice.Reply
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, reply voice.Reply) error

func (f SinkFunc) Deliver(ctx context.Context, reply voice.Reply) error {
	return f(ctx, reply)
}

// FanOut delivers every reply to each sink in order. All sinks are attempted;
// their errors are joined.
type FanOut []Sink

func (f FanOut) Deliver(ctx context.Context, reply voice.Reply) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Deliver(ctx, reply); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = FanOut(nil)
