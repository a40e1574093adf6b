package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in  string
		out Date
		ok  bool
	}{
		{"2024-01-15", NewDate(2024, 1, 15), true},
		{"20240115", NewDate(2024, 1, 15), true},
		{"2024-01-15T00:00:00.000Z", NewDate(2024, 1, 15), true},
		{" 2024-02-29 ", NewDate(2024, 2, 29), true},
		{"20240230", Date{}, false},
		{"2024/01/15", Date{}, false},
		{"", Date{}, false},
		{"garbage", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.out.Time) {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error, got %v", tc.in, got)
		}
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
		}
	}
}

func TestDateIntRoundTrip(t *testing.T) {
	d := NewDate(2024, 2, 20)
	if d.Int() != 20240220 {
		t.Fatalf("expected 20240220, got %d", d.Int())
	}
	back, err := DateFromInt(d.Int())
	if err != nil || !back.Equal(d.Time) {
		t.Fatalf("round trip failed: %v %v", back, err)
	}
	if d.String() != "2024-02-20" {
		t.Fatalf("unexpected string %q", d.String())
	}
	if (Date{}).String() != "" {
		t.Fatal("zero date should format as empty string")
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := (Transaction{ID: "a", Date: NewDate(2024, 1, 1)}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Transaction{
		{Date: NewDate(2024, 1, 1)},
		{ID: "a", Date: Date{Time: time.Time{}}},
	}
	for i, tx := range bads {
		err := tx.Validate()
		if err == nil || !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestTransactionLocked(t *testing.T) {
	if (Transaction{}).Locked() {
		t.Fatal("fresh transaction should not be locked")
	}
	if !(Transaction{Cleared: true}).Locked() || !(Transaction{Reconciled: true}).Locked() {
		t.Fatal("cleared or reconciled transaction should be locked")
	}
}

func TestExternalCategoryFullName(t *testing.T) {
	cases := []struct {
		in   ExternalCategory
		want string
	}{
		{ExternalCategory{ID: 1, Grouping: "Food and Drink", Name: "Groceries"}, "Food and Drink/Groceries"},
		{ExternalCategory{ID: 0}, "Uncategorized/General"},
	}
	for _, tc := range cases {
		if got := tc.in.FullName(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestParseSplitMode(t *testing.T) {
	cases := map[string]SplitMode{
		"EVENLY":        SplitEvenly,
		"by_shares":     SplitByShares,
		"BY_PERCENTAGE": SplitByPercentage,
		"BY_AMOUNT":     SplitByAmount,
		"":              SplitEvenly,
		"WHATEVER":      SplitEvenly,
	}
	for in, want := range cases {
		if got := ParseSplitMode(in); got != want {
			t.Fatalf("%q expected %s, got %s", in, want, got)
		}
	}
}
