// Package bus publishes replies on a NATS subject for downstream consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// Conn is the part of *nats.Conn the publisher needs
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	Status() nats.Status
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Publisher is a reply sink that writes each reply as JSON to one subject
type Publisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

// Connect dials the NATS servers in url (comma separated) and returns a
// publisher on subject. Close releases the connection.
func Connect(url, subject string, timeout time.Duration, logger zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("voice-reader"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info().Str("servers", url).Str("subject", subject).Msg("Connected to NATS")
	return NewPublisher(conn, subject, logger), nil
}

// NewPublisher creates a publisher over an existing connection
func NewPublisher(conn Conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "bus").Logger(),
	}
}

// Deliver publishes the reply. The event ID travels in a header so
// consumers can deduplicate without decoding the body.
func (p *Publisher) Deliver(ctx context.Context, reply voice.Reply) error {
	const op = "bus.publish"

	data, err := json.Marshal(reply)
	if err != nil {
		return voice.E(voice.KindDelivery, op, err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set("Event-Id", reply.EventID)
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return voice.E(voice.KindDelivery, op, err)
	}
	p.logger.Debug().Str("event_id", reply.EventID).Str("subject", p.subject).Msg("Reply published")
	return nil
}

// Ready reports whether the connection is up
func (p *Publisher) Ready(ctx context.Context) (bool, error) {
	if status := p.conn.Status(); status != nats.CONNECTED {
		return false, fmt.Errorf("nats connection is %s", status)
	}
	return true, nil
}

// Close waits up to timeout for buffered publishes to reach the server and
// then closes the connection
func (p *Publisher) Close(timeout time.Duration) error {
	err := p.conn.FlushTimeout(timeout)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to flush pending replies")
	}
	p.conn.Close()
	return err
}
