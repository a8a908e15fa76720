package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	want, err := NewMarkedMessage(MarkedEvent{RecordID: "rec-1", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("NewMarkedMessage() error = %v", err)
	}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-messages:
		if got.Type != TypeMarked {
			t.Errorf("type = %q, want %q", got.Type, TypeMarked)
		}
		evt, err := DecodeMarked(got)
		if err != nil {
			t.Fatalf("DecodeMarked() error = %v", err)
		}
		if evt.RecordID != "rec-1" || evt.SessionID != "sess-1" {
			t.Errorf("event = %+v, want rec-1/sess-1", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestMarkedMessageRoundTrip(t *testing.T) {
	msg, err := NewMarkedMessage(MarkedEvent{RecordID: "abc-123", SessionID: "def-456"})
	if err != nil {
		t.Fatalf("NewMarkedMessage() error = %v", err)
	}

	// Through the wire encoding RedisQueue uses.
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	evt, err := DecodeMarked(decoded)
	if err != nil {
		t.Fatalf("DecodeMarked() error = %v", err)
	}
	if evt.RecordID != "abc-123" || evt.SessionID != "def-456" {
		t.Errorf("event = %+v, want abc-123/def-456", evt)
	}
}

func TestDecodeMarkedRejectsGarbage(t *testing.T) {
	if _, err := DecodeMarked(Message{Type: TypeMarked, Body: []byte("not json")}); err == nil {
		t.Error("DecodeMarked() accepted a malformed body")
	}
}
