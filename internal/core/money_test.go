package core

import (
	"strings"
	"testing"
)

func TestMoneyHalf(t *testing.T) {
	cases := []struct {
		in  int64
		out int64
	}{
		{-10000, -5000},
		{-20000, -10000},
		{10000, 5000},
		{-10001, -5000}, // -50.005 rounds to even
		{-10003, -5002}, // -50.015 rounds to even
		{1, 0},
		{3, 2},
		{0, 0},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.in}).Half(); got.Cents != tc.out {
			t.Fatalf("%d expected %d, got %d", tc.in, tc.out, got.Cents)
		}
	}
}

func TestMoneySignHelpers(t *testing.T) {
	m := Money{Cents: -1234}
	if m.Neg().Cents != 1234 || m.Abs().Cents != 1234 || (Money{Cents: 5}).Abs().Cents != 5 {
		t.Fatalf("unexpected sign helpers: neg=%v abs=%v", m.Neg(), m.Abs())
	}
	if m.String() != "-12.34" {
		t.Fatalf("expected -12.34, got %s", m.String())
	}
	if !(Money{}).IsZero() {
		t.Fatal("zero money should be zero")
	}
}

func TestMoneyDisplay(t *testing.T) {
	got := Money{Cents: 5000}.Display("eur")
	if !strings.Contains(got, "50.00") {
		t.Fatalf("expected display to contain 50.00, got %q", got)
	}
	if fallback := (Money{Cents: 5000}).Display("NOPE"); fallback != got {
		t.Fatalf("unknown currency should fall back to %s: got %q want %q", DefaultCurrency, fallback, got)
	}
}
