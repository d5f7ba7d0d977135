package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// directDedupeSize bounds how many recent event ids DirectRecorder remembers.
const directDedupeSize = 4096

// DirectRecorder hands events to a DeliveryHandler as soon as they are
// appended. It stands in for the outbox when no database is configured, so
// delivery is at-most-once. Only the most recent directDedupeSize event ids
// are deduplicated.
type DirectRecorder struct {
	handler DeliveryHandler

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
	limit int
}

func NewDirectRecorder(handler DeliveryHandler) *DirectRecorder {
	return newDirectRecorder(handler, directDedupeSize)
}

func newDirectRecorder(handler DeliveryHandler, limit int) *DirectRecorder {
	if limit <= 0 {
		limit = directDedupeSize
	}
	return &DirectRecorder{
		handler: handler,
		seen:    make(map[string]struct{}, limit),
		order:   make([]string, 0, limit),
		limit:   limit,
	}
}

// remember reports false when key is already known. Otherwise it records key,
// evicting the oldest id once the ring is full. Callers hold r.mu.
func (r *DirectRecorder) remember(key string) bool {
	if _, ok := r.seen[key]; ok {
		return false
	}
	if len(r.order) < r.limit {
		r.order = append(r.order, key)
	} else {
		delete(r.seen, r.order[r.next])
		r.order[r.next] = key
		r.next = (r.next + 1) % r.limit
	}
	r.seen[key] = struct{}{}
	return true
}

// Append builds the envelope and delivers it synchronously. Event ids that
// were recently delivered are skipped.
func (r *DirectRecorder) Append(ctx context.Context, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	env, err := NewEnvelope(aggregate, "", evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	key := env.EventID.String()
	r.mu.Lock()
	fresh := r.remember(key)
	r.mu.Unlock()
	if !fresh {
		return env, nil
	}

	if r.handler == nil {
		return env, nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	entry := OutboxEntry{
		ID:        env.EventID,
		Aggregate: env.Aggregate,
		EventType: env.EventType,
		Payload:   data,
		CreatedAt: time.UnixMicro(env.TimestampMicros).UTC(),
	}
	if err := r.handler.Handle(ctx, entry); err != nil {
		r.mu.Lock()
		delete(r.seen, key)
		r.mu.Unlock()
		return Envelope{}, err
	}
	return env, nil
}
