package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/voice"
)

type fakeConn struct {
	msgs     []*nats.Msg
	err      error
	flushErr error
	status   nats.Status
	calls    []string
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Status() nats.Status {
	return f.status
}

func (f *fakeConn) FlushTimeout(timeout time.Duration) error {
	f.calls = append(f.calls, "flush")
	return f.flushErr
}

func (f *fakeConn) Close() {
	f.calls = append(f.calls, "close")
	f.status = nats.CLOSED
}

func TestPublisher_Deliver(t *testing.T) {
	conn := &fakeConn{status: nats.CONNECTED}
	p := NewPublisher(conn, "voice.replies", zerolog.Nop())

	reply := voice.Reply{
		EventID:     "42:5",
		Destination: voice.Destination{Channel: "42", ReplyTo: "5"},
		Composed:    &voice.ComposedReply{Transcription: "ありがとう", Translation: "Thank you", TranslationOK: true},
	}
	if err := p.Deliver(context.Background(), reply); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(conn.msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(conn.msgs))
	}
	msg := conn.msgs[0]
	if msg.Subject != "voice.replies" {
		t.Errorf("Expected subject 'voice.replies', got '%s'", msg.Subject)
	}
	if msg.Header.Get("Event-Id") != "42:5" {
		t.Errorf("Expected Event-Id header, got %v", msg.Header)
	}

	var decoded struct {
		EventID  string `json:"event_id"`
		Composed struct {
			Translation string `json:"translation"`
		} `json:"composed"`
	}
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if decoded.EventID != "42:5" || decoded.Composed.Translation != "Thank you" {
		t.Errorf("Unexpected payload: %s", msg.Data)
	}
}

func TestPublisher_DeliverNoticeKindByName(t *testing.T) {
	conn := &fakeConn{status: nats.CONNECTED}
	p := NewPublisher(conn, "voice.replies", zerolog.Nop())

	reply := voice.Reply{EventID: "1", Notice: &voice.Notice{Kind: voice.KindRecognitionUnrecognized, Message: "could not understand"}}
	if err := p.Deliver(context.Background(), reply); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	var decoded struct {
		Notice struct {
			Kind string `json:"kind"`
		} `json:"notice"`
	}
	if err := json.Unmarshal(conn.msgs[0].Data, &decoded); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if decoded.Notice.Kind != "recognition_unrecognized" {
		t.Errorf("Expected kind by name, got %q", decoded.Notice.Kind)
	}
}

func TestPublisher_Failure(t *testing.T) {
	conn := &fakeConn{err: nats.ErrConnectionClosed, status: nats.CLOSED}
	p := NewPublisher(conn, "voice.replies", zerolog.Nop())

	err := p.Deliver(context.Background(), voice.Reply{EventID: "1"})
	if voice.KindOf(err) != voice.KindDelivery {
		t.Errorf("Expected delivery error, got %v", err)
	}
	if !errors.Is(err, nats.ErrConnectionClosed) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}

	if ok, _ := p.Ready(context.Background()); ok {
		t.Error("Expected closed connection to report not ready")
	}
}

func TestPublisher_CloseFlushesFirst(t *testing.T) {
	conn := &fakeConn{status: nats.CONNECTED}
	p := NewPublisher(conn, "voice.replies", zerolog.Nop())

	if err := p.Deliver(context.Background(), voice.Reply{EventID: "1"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := p.Close(time.Second); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(conn.calls) != 2 || conn.calls[0] != "flush" || conn.calls[1] != "close" {
		t.Errorf("Expected flush then close, got %v", conn.calls)
	}
}

func TestPublisher_CloseAfterFlushTimeout(t *testing.T) {
	conn := &fakeConn{status: nats.CONNECTED, flushErr: nats.ErrTimeout}
	p := NewPublisher(conn, "voice.replies", zerolog.Nop())

	if err := p.Close(time.Millisecond); !errors.Is(err, nats.ErrTimeout) {
		t.Errorf("Expected flush timeout, got %v", err)
	}
	if conn.status != nats.CLOSED {
		t.Error("Expected the connection to be closed after a failed flush")
	}
}
