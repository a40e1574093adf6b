package events

import (
	"context"
	"errors"
	"testing"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Event) error { return f.err }

func TestNewStampsEvent(t *testing.T) {
	a, b := New(DerivedCreated), New(DerivedCreated)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids not unique: %q %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestEventJSON(t *testing.T) {
	e := New(MirrorFailed)
	e.OriginalID = "o1"
	e.Reason = "timeout"
	data, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.ID != e.ID || got.Type != MirrorFailed || got.OriginalID != "o1" || got.Reason != "timeout" {
		t.Fatalf("decoded %+v", got)
	}
}

func TestMultiContinuesPastFailures(t *testing.T) {
	rec := NewRecorder(10)
	boom := errors.New("broker down")
	m := NewMulti(nil, failingSink{boom}, nil, rec)
	if m.Len() != 2 {
		t.Fatalf("nil sink should be dropped, got %d", m.Len())
	}

	err := m.Publish(context.Background(), New(DerivedCreated))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(rec.Events()) != 1 {
		t.Fatal("healthy sink did not receive the event")
	}
}

func TestRecorderBounded(t *testing.T) {
	rec := NewRecorder(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec.Publish(ctx, New(ExternalImported))
	}
	rec.Publish(ctx, New(ExternalSkipped))

	if n := len(rec.Events()); n != 3 {
		t.Fatalf("kept %d events", n)
	}
	counts := rec.Counts()
	if counts[ExternalImported] != 5 || counts[ExternalSkipped] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if n := len(rec.OfType(ExternalSkipped)); n != 1 {
		t.Fatalf("OfType = %d", n)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), New(DerivedSkipped)); err != nil {
		t.Fatal(err)
	}
}
