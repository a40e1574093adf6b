package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"splitsync/internal/events"
	"splitsync/internal/scheduler"
)

type fakeEngine struct{}

func (fakeEngine) Mirroring() bool     { return true }
func (fakeEngine) TrackerSize() int    { return 12 }
func (fakeEngine) ProcessedCount() int { return 50 }

type fakeLoops []scheduler.LoopStats

func (f fakeLoops) Stats() []scheduler.LoopStats { return f }

func TestHealthz(t *testing.T) {
	s := New(":0", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusReport(t *testing.T) {
	recorder := events.NewRecorder(10)
	_ = recorder.Publish(context.Background(), events.New(events.DerivedCreated))

	loops := fakeLoops{
		{Name: "ledger", Interval: 5 * time.Second, Cycles: 3},
		{Name: "splitter", Interval: 30 * time.Second, Cycles: 1, Failures: 1, LastError: "timeout"},
	}
	s := New(":0", fakeEngine{}, loops, recorder, nil)

	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Status != "degraded" {
		t.Errorf("status = %q, want degraded", rep.Status)
	}
	if !rep.Mirroring || rep.Tracked != 12 || rep.Processed != 50 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Loops) != 2 || rep.Loops[1].LastError != "timeout" {
		t.Errorf("loops = %+v", rep.Loops)
	}
	if rep.EventCounts[events.DerivedCreated] != 1 || len(rep.RecentEvents) != 1 {
		t.Errorf("events = %v / %d", rep.EventCounts, len(rep.RecentEvents))
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s := New(":0", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}
