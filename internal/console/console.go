// Package console is the local front-end: press Enter to record an
// utterance from the default input device, read the reply on the terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/compose"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Channel is the destination of every console event
const Channel = "console"

// Trigger emits a live-capture event for every line read from its input
type Trigger struct {
	in     io.Reader
	lines  chan struct{}
	once   sync.Once
	seq    atomic.Int64
	logger zerolog.Logger
}

// NewTrigger creates a trigger reading Enter presses from in
func NewTrigger(in io.Reader, logger zerolog.Logger) *Trigger {
	return &Trigger{
		in:     in,
		lines:  make(chan struct{}),
		logger: logger.With().Str("component", "console").Logger(),
	}
}

// NextEvent waits for the next line. Once the input is exhausted it
// waits for ctx instead.
func (t *Trigger) NextEvent(ctx context.Context) (voice.Event, error) {
	t.once.Do(func() { go t.scan() })

	select {
	case <-ctx.Done():
		return voice.Event{}, ctx.Err()
	case _, ok := <-t.lines:
		if !ok {
			<-ctx.Done()
			return voice.Event{}, ctx.Err()
		}
	}

	n := t.seq.Add(1)
	return voice.Event{
		ID:          fmt.Sprintf("live-%d", n),
		Source:      voice.SourceRef{Kind: voice.SourceLive, Format: voice.FormatPCM},
		Destination: voice.Destination{Channel: Channel},
	}, nil
}

func (t *Trigger) scan() {
	defer close(t.lines)

	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		t.lines <- struct{}{}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn().Err(err).Msg("Console input failed")
		return
	}
	t.logger.Info().Msg("Console input closed")
}

// Sink prints replies in plain text
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewSink creates a sink writing to out
func NewSink(out io.Writer) *Sink {
	return &Sink{out: out}
}

// Prompt tells the user how to start a recording
func (s *Sink) Prompt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, "Press Enter and speak...")
	return err
}

func (s *Sink) Deliver(ctx context.Context, reply voice.Reply) error {
	s.mu.Lock()
	_, err := fmt.Fprintf(s.out, "%s\n\n", compose.Plain(reply))
	s.mu.Unlock()
	if err != nil {
		return voice.E(voice.KindDelivery, "console.deliver", err)
	}
	return s.Prompt()
}
