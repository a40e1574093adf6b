package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestChangeRecordAbsentVersusNull(t *testing.T) {
	c := ChangeRecord{Fields: map[string]any{FieldNotes: nil}}
	if !c.Has(FieldNotes) {
		t.Fatal("null field must still be present")
	}
	if _, ok := c.Text(FieldNotes); ok {
		t.Fatal("null field must not read as a string")
	}
	if c.Has(FieldAmount) {
		t.Fatal("absent field must not be present")
	}
	if v, ok := c.Value(FieldNotes); !ok || v != nil {
		t.Fatalf("expected present nil value, got %v %v", v, ok)
	}
}

func TestChangeRecordInt64(t *testing.T) {
	c := ChangeRecord{Fields: map[string]any{
		"int":     -10000,
		"int64":   int64(-20000),
		"float":   float64(-300),
		"frac":    1.5,
		"number":  json.Number("42"),
		"numeric": "7",
		"bad":     "x",
	}}
	cases := []struct {
		field string
		want  int64
		ok    bool
	}{
		{"int", -10000, true},
		{"int64", -20000, true},
		{"float", -300, true},
		{"frac", 0, false},
		{"number", 42, true},
		{"numeric", 7, true},
		{"bad", 0, false},
		{"missing", 0, false},
	}
	for _, tc := range cases {
		got, ok := c.Int64(tc.field)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s: expected (%d,%v), got (%d,%v)", tc.field, tc.want, tc.ok, got, ok)
		}
	}
}

func TestChangeRecordDate(t *testing.T) {
	c := ChangeRecord{Fields: map[string]any{
		"int":    20240115,
		"string": "2024-01-16",
		"time":   time.Date(2024, 1, 17, 13, 0, 0, 0, time.UTC),
		"bad":    20241399,
	}}
	for field, want := range map[string]Date{
		"int":    NewDate(2024, 1, 15),
		"string": NewDate(2024, 1, 16),
		"time":   NewDate(2024, 1, 17),
	} {
		got, ok := c.Date(field)
		if !ok || !got.Equal(want.Time) {
			t.Fatalf("%s: expected %v, got %v (%v)", field, want, got, ok)
		}
	}
	if _, ok := c.Date("bad"); ok {
		t.Fatal("invalid date should not parse")
	}
}

func TestChangeRecordIsTombstone(t *testing.T) {
	cases := []struct {
		c    ChangeRecord
		want bool
	}{
		{ChangeRecord{Deleted: true}, true},
		{ChangeRecord{Fields: map[string]any{FieldTombstone: 1}}, true},
		{ChangeRecord{Fields: map[string]any{FieldTombstone: true}}, true},
		{ChangeRecord{Fields: map[string]any{FieldTombstone: 0}}, false},
		{ChangeRecord{Fields: map[string]any{FieldNotes: "x"}}, false},
	}
	for i, tc := range cases {
		if got := tc.c.IsTombstone(); got != tc.want {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, got)
		}
	}
}
