package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
)

type fakeClient struct {
	channel string
	message []byte
	err     error
	closed  bool
}

func (f *fakeClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublish(t *testing.T) {
	fc := &fakeClient{}
	r := &Redis{client: fc, channel: "sprintagent.events", logger: slog.Default()}

	err := r.Publish(context.Background(), Event{
		Type: RunCompleted,
		Data: map[string]any{"run_id": "run-1", "tickets_created": 2},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fc.channel != "sprintagent.events" {
		t.Errorf("expected channel sprintagent.events, got %q", fc.channel)
	}

	var got Event
	if err := json.Unmarshal(fc.message, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Type != RunCompleted {
		t.Errorf("expected type %s, got %s", RunCompleted, got.Type)
	}
	if got.At.IsZero() {
		t.Error("expected timestamp to be filled")
	}
	if got.Data["run_id"] != "run-1" {
		t.Errorf("expected run_id run-1, got %v", got.Data["run_id"])
	}
}

func TestRedisPublish_Error(t *testing.T) {
	fc := &fakeClient{err: errors.New("connection refused")}
	r := &Redis{client: fc, channel: "c", logger: slog.Default()}

	err := r.Publish(context.Background(), Event{Type: PRStatusChanged})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := r.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
	r.Close()
	if !fc.closed {
		t.Error("expected client closed")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Publish(context.Background(), Event{Type: RunCompleted})
	r.Publish(context.Background(), Event{Type: PRStatusChanged})

	events := r.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Type != PRStatusChanged {
		t.Errorf("expected %s, got %s", PRStatusChanged, events[1].Type)
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{Type: RunCompleted}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
