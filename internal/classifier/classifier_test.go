package classifier

import (
	"testing"

	"splitsync/internal/core"
)

func txn(notes string) *core.Transaction {
	return &core.Transaction{ID: "txn-123", Notes: notes}
}

func notesChange(notes any) core.ChangeRecord {
	return core.ChangeRecord{
		Kind:     core.KindTransaction,
		EntityID: "txn-123",
		Fields:   map[string]any{core.FieldNotes: notes},
	}
}

func TestClassifyDetectsNewTag(t *testing.T) {
	tracker := NewTagTracker()
	c := New(tracker, "#shared", nil)

	got, ok := c.Classify(notesChange("Groceries #shared"), txn("Groceries #shared"))
	if !ok || got == nil || got.ID != "txn-123" {
		t.Fatalf("expected trigger, got %v %v", got, ok)
	}
	if notes, _ := tracker.Get("txn-123"); notes != "Groceries #shared" {
		t.Fatalf("tracker not updated: %q", notes)
	}
}

func TestClassifyEditAddsTag(t *testing.T) {
	tracker := NewTagTracker()
	before := "Groceries"
	tracker.Set("txn-123", &before)
	c := New(tracker, "#shared", nil)

	if _, ok := c.Classify(notesChange("Groceries #shared"), txn("Groceries #shared")); !ok {
		t.Fatal("adding the tag to a tracked transaction should trigger")
	}
}

func TestClassifyIgnoresAlreadyTagged(t *testing.T) {
	tracker := NewTagTracker()
	before := "Groceries #shared"
	tracker.Set("txn-123", &before)
	c := New(tracker, "#shared", nil)

	if _, ok := c.Classify(notesChange("Groceries #shared updated"), txn("Groceries #shared updated")); ok {
		t.Fatal("already tagged transaction must not re-trigger")
	}
}

func TestClassifyNeverRetriggersOnFieldOnlyEdits(t *testing.T) {
	tracker := NewTagTracker()
	c := New(tracker, "#shared", nil)

	if _, ok := c.Classify(notesChange("Dinner #shared"), txn("Dinner #shared")); !ok {
		t.Fatal("first tag addition should trigger")
	}
	edits := []map[string]any{
		{core.FieldAmount: -20000},
		{core.FieldDate: 20240220},
		{core.FieldCategory: "cat-2"},
		{core.FieldAmount: -30000, core.FieldCleared: 1},
	}
	for i, fields := range edits {
		change := core.ChangeRecord{Kind: core.KindTransaction, EntityID: "txn-123", Fields: fields}
		if _, ok := c.Classify(change, txn("Dinner #shared")); ok {
			t.Fatalf("edit %d re-triggered an already shared transaction", i)
		}
	}
}

func TestClassifyWithoutTag(t *testing.T) {
	c := New(NewTagTracker(), "#shared", nil)
	if _, ok := c.Classify(notesChange("Groceries"), txn("Groceries")); ok {
		t.Fatal("untagged notes must not trigger")
	}
}

func TestClassifyUsesCurrentNotesNotDelta(t *testing.T) {
	tracker := NewTagTracker()
	c := New(tracker, "#shared", nil)

	// partial change without notes on a never-seen transaction whose stored notes
	// carry the tag
	change := core.ChangeRecord{Kind: core.KindTransaction, EntityID: "txn-123", Fields: map[string]any{core.FieldAmount: -100}}
	if _, ok := c.Classify(change, txn("Lunch #shared")); !ok {
		t.Fatal("tag in current notes should trigger for an untracked transaction")
	}
	if _, seen := tracker.Get("txn-123"); seen {
		t.Fatal("change without notes must not touch the tracker")
	}
}

func TestClassifyFailsClosed(t *testing.T) {
	c := New(NewTagTracker(), "#shared", nil)
	if _, ok := c.Classify(notesChange("x #shared"), nil); ok {
		t.Fatal("unresolved entity must be irrelevant")
	}
	if _, ok := c.Classify(notesChange("x #shared"), &core.Transaction{Notes: "x #shared"}); ok {
		t.Fatal("entity without id must be irrelevant")
	}
}

func TestClassifyCustomTag(t *testing.T) {
	c := New(NewTagTracker(), "#split", nil)
	if _, ok := c.Classify(notesChange("Groceries #shared"), txn("Groceries #shared")); ok {
		t.Fatal("default tag must not trigger a custom-tag classifier")
	}
	if _, ok := c.Classify(notesChange("Groceries #split"), txn("Groceries #split")); !ok {
		t.Fatal("custom tag should trigger")
	}
}

func TestTrackerUnchangedWhenNotesAbsent(t *testing.T) {
	tracker := NewTagTracker()
	before := "Rent"
	tracker.Set("txn-123", &before)
	c := New(tracker, "#shared", nil)

	changes := []core.ChangeRecord{
		{EntityID: "txn-123", Fields: map[string]any{core.FieldAmount: -1}},
		{EntityID: "txn-123", Fields: map[string]any{core.FieldDate: 20240101, core.FieldPayee: "p"}},
		{EntityID: "txn-123", Fields: map[string]any{}},
	}
	for i, change := range changes {
		c.Classify(change, txn("Rent #shared"))
		if notes, ok := tracker.Get("txn-123"); !ok || notes != "Rent" {
			t.Fatalf("change %d modified tracker: %q %v", i, notes, ok)
		}
	}
}

func TestClassifyNullNotesClearsTracker(t *testing.T) {
	tracker := NewTagTracker()
	before := "Dinner #shared"
	tracker.Set("txn-123", &before)
	c := New(tracker, "#shared", nil)

	c.Classify(notesChange(nil), txn(""))
	if _, ok := tracker.Get("txn-123"); ok {
		t.Fatal("null notes should clear the tracked value")
	}
	// the tag coming back is a fresh addition
	if _, ok := c.Classify(notesChange("Dinner #shared"), txn("Dinner #shared")); !ok {
		t.Fatal("re-adding the tag after removal should trigger")
	}
}

func TestTrackerReload(t *testing.T) {
	tracker := NewTagTracker()
	a := "a"
	tracker.Set("x", &a)
	tracker.Reload(map[string]string{"y": "b", "z": "c"})
	if _, ok := tracker.Get("x"); ok {
		t.Fatal("reload should drop stale entries")
	}
	if tracker.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", tracker.Len())
	}
}
