package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRunStopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	s := New(nil, Loop{
		Name:     "ledger",
		Interval: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return runs.Load() == 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel; wait is not interruptible")
	}
}

func TestFailuresAndPanicsDoNotStopTheLoop(t *testing.T) {
	var runs atomic.Int32
	s := New(nil, Loop{
		Name:     "splitter",
		Interval: time.Millisecond,
		Run: func(context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("network down")
			case 2:
				panic("malformed response")
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return runs.Load() >= 3 })
	waitFor(t, func() bool { return s.Stats()[0].Cycles >= 3 })
	cancel()

	st := s.Stats()[0]
	if st.Failures < 2 {
		t.Errorf("failures = %d, want at least 2", st.Failures)
	}
}

func TestCyclesAreSerialized(t *testing.T) {
	var active, maxActive, total atomic.Int32
	body := func(context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		total.Add(1)
		return nil
	}
	s := New(nil,
		Loop{Name: "a", Interval: time.Millisecond, Run: body},
		Loop{Name: "b", Interval: time.Millisecond, Run: body},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return total.Load() >= 10 })
	cancel()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent cycles = %d, want 1", maxActive.Load())
	}
}

func TestRunRejectsInvalidLoops(t *testing.T) {
	s := New(nil, Loop{Name: "broken", Interval: 0, Run: func(context.Context) error { return nil }})
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestDoRecoversPanics(t *testing.T) {
	s := New(nil)
	err := s.Do(context.Background(), func(context.Context) error { panic("boom") })
	if err == nil {
		t.Fatal("expected error from panicking func")
	}
}

func TestStatsSortedByName(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := New(nil,
		Loop{Name: "splitter", Interval: time.Second, Run: noop},
		Loop{Name: "ledger", Interval: time.Second, Run: noop},
	)
	stats := s.Stats()
	if len(stats) != 2 || stats[0].Name != "ledger" || stats[1].Name != "splitter" {
		t.Fatalf("stats = %+v", stats)
	}
}
