package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestDirectRecorderDeliversOnce(t *testing.T) {
	queue := NewMemoryQueue(4)
	rec := NewDirectRecorder(NewQueueDeliveryHandler(queue))
	id := uuid.New()

	for i := 0; i < 2; i++ {
		env, err := rec.Append(context.Background(), ClinicAggregate("clinic-1"), sampleOpened(), WithEventID(id))
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		if env.EventID != id {
			t.Fatalf("expected event id %s, got %s", id, env.EventID)
		}
	}

	msgs, err := queue.Receive(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(msgs))
	}
	env, err := DecodeEnvelope([]byte(msgs[0].Body))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.EventType != TypeSlotOpened {
		t.Fatalf("unexpected type %s", env.EventType)
	}
}

func TestDirectRecorderRetriesAfterFailure(t *testing.T) {
	id := uuid.New()
	handler := &flakyHandler{failFor: map[uuid.UUID]bool{id: true}}
	rec := NewDirectRecorder(handler)

	if _, err := rec.Append(context.Background(), ClinicAggregate("clinic-1"), sampleOpened(), WithEventID(id)); err == nil {
		t.Fatal("expected handler error")
	}
	delete(handler.failFor, id)
	if _, err := rec.Append(context.Background(), ClinicAggregate("clinic-1"), sampleOpened(), WithEventID(id)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(handler.seen) != 2 {
		t.Fatalf("expected two attempts, got %d", len(handler.seen))
	}
}

func TestDirectRecorderRejectsMissingAggregate(t *testing.T) {
	rec := NewDirectRecorder(nil)
	if _, err := rec.Append(context.Background(), "", sampleOpened()); err == nil {
		t.Fatal("expected aggregate error")
	}
}

func TestDirectRecorderDedupeIsBounded(t *testing.T) {
	queue := NewMemoryQueue(16)
	rec := newDirectRecorder(NewQueueDeliveryHandler(queue), 2)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	for _, id := range ids {
		if _, err := rec.Append(context.Background(), ClinicAggregate("clinic-1"), sampleOpened(), WithEventID(id)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if len(rec.seen) != 2 || len(rec.order) != 2 {
		t.Fatalf("expected dedupe set capped at 2, got %d ids", len(rec.seen))
	}

	// ids[2] is still remembered; ids[0] was evicted and delivers again.
	for _, id := range []uuid.UUID{ids[2], ids[0]} {
		if _, err := rec.Append(context.Background(), ClinicAggregate("clinic-1"), sampleOpened(), WithEventID(id)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := queue.Receive(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(msgs))
	}
	if len(rec.seen) != 2 {
		t.Fatalf("expected dedupe set to stay at 2, got %d", len(rec.seen))
	}
}
