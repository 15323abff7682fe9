package redis

import (
	"encoding/json"
	"testing"

	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/sse"
)

func testBus(t *testing.T, id string) *progressBus {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &progressBus{log: log, channel: "workflow_progress", id: id}
}

func TestDecodeSkipsOwnMessages(t *testing.T) {
	bus := testBus(t, "replica-a")

	own, err := json.Marshal(sse.Message{Channel: "plan-1", Event: sse.EventStepCompleted, Origin: "replica-a"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, forward := bus.decode(string(own)); forward {
		t.Error("a replica's own message must not be forwarded back to its hub")
	}

	remote, err := json.Marshal(sse.Message{Channel: "plan-1", Event: sse.EventStepCompleted, Origin: "replica-b"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, forward := bus.decode(string(remote))
	if !forward {
		t.Fatal("a remote replica's message must be forwarded")
	}
	if msg.Channel != "plan-1" || msg.Event != sse.EventStepCompleted {
		t.Errorf("unexpected decoded message: %+v", msg)
	}
}

func TestDecodeDropsMalformedPayload(t *testing.T) {
	bus := testBus(t, "replica-a")
	if _, forward := bus.decode("{not json"); forward {
		t.Error("malformed payloads must be dropped")
	}
}
