// Package events reports reconciliation outcomes to interested sinks: a message
// broker, an audit spreadsheet, the status endpoint.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"splitsync/internal/log"
)

// Type names what happened.
type Type string

const (
	DerivedCreated   Type = "derived.created"
	DerivedUpdated   Type = "derived.updated"
	DerivedDeleted   Type = "derived.deleted"
	DerivedSkipped   Type = "derived.skipped"
	MirrorCreated    Type = "mirror.created"
	MirrorUpdated    Type = "mirror.updated"
	MirrorDeleted    Type = "mirror.deleted"
	MirrorFailed     Type = "mirror.failed"
	ExternalImported Type = "external.imported"
	ExternalSkipped  Type = "external.skipped"
)

// Event is one reconciliation outcome.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	OriginalID  string    `json:"original_id,omitempty"`
	DerivedID   string    `json:"derived_id,omitempty"`
	ExternalID  string    `json:"external_id,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// New creates an event of type t stamped with a fresh id and the current time.
func New(t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON encodes the event.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes an event.
func FromJSON(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several sinks. A failing sink is logged and the rest
// still receive the event; the joined errors are returned.
type Multi struct {
	sinks  []Sink
	logger *log.Logger
}

// NewMulti creates a fan-out over sinks, ignoring nil entries.
func NewMulti(logger *log.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = log.Discard()
	}
	m := &Multi{logger: logger.WithComponent(log.ComponentEvents)}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, e); err != nil {
			m.logger.WarnContext(ctx, "Event sink failed",
				"event_type", string(e.Type),
				"event_id", e.ID,
				log.FieldError, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
	counts map[Type]int
}

// NewRecorder keeps up to limit events.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit, counts: make(map[Type]int)}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	r.counts[e.Type]++
	return nil
}

// Events returns the kept events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Counts returns how many events of each type were seen since start.
func (r *Recorder) Counts() map[Type]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Type]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// OfType returns the kept events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
