package correlation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"splitsync/internal/core"
	"splitsync/internal/ledger"
)

type fakeLedger struct {
	txns    []core.Transaction
	updates int
	failing error
}

func (f *fakeLedger) Transaction(_ context.Context, id string) (*core.Transaction, error) {
	for i := range f.txns {
		if f.txns[i].ID == id {
			t := f.txns[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) RecentTransactions(context.Context, core.Date) ([]core.Transaction, error) {
	return f.txns, nil
}

func (f *fakeLedger) FindByImportedPrefix(_ context.Context, prefix string) ([]core.Transaction, error) {
	if f.failing != nil {
		return nil, f.failing
	}
	var out []core.Transaction
	for _, t := range f.txns {
		if strings.HasPrefix(t.ImportedDescription, prefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) UpdateTransaction(_ context.Context, id string, patch ledger.Patch) error {
	f.updates++
	for i := range f.txns {
		if f.txns[i].ID == id {
			f.txns[i] = patch.Apply(f.txns[i])
			return nil
		}
	}
	return errors.New("no such transaction")
}

func TestFindDerivedFor(t *testing.T) {
	fake := &fakeLedger{txns: []core.Transaction{
		{ID: "d-old", ImportedDescription: "ref:12", Tombstone: true},
		{ID: "d-123", ImportedDescription: "ref:123|ext:e1"},
		{ID: "d-12", ImportedDescription: "ref:12|ext:e2"},
		{ID: "plain", ImportedDescription: "bank import"},
	}}
	store := NewStore(fake)
	ctx := context.Background()

	got, err := store.FindDerivedFor(ctx, "12")
	if err != nil {
		t.Fatalf("FindDerivedFor: %v", err)
	}
	if got == nil || got.ID != "d-12" {
		t.Fatalf("FindDerivedFor(12) = %+v, want d-12", got)
	}

	got, err = store.FindDerivedFor(ctx, "1")
	if err != nil || got != nil {
		t.Fatalf("FindDerivedFor(1) = %+v, %v; want nil", got, err)
	}

	got, _ = store.FindDerivedFor(ctx, "")
	if got != nil {
		t.Fatal("empty id must not match")
	}
}

func TestFindDerivedForError(t *testing.T) {
	store := NewStore(&fakeLedger{failing: errors.New("boom")})
	if _, err := store.FindDerivedFor(context.Background(), "x"); err == nil {
		t.Fatal("expected error from ledger")
	}
}

func TestAttachExternalID(t *testing.T) {
	fake := &fakeLedger{txns: []core.Transaction{{ID: "d1", ImportedDescription: "ref:o1"}}}
	store := NewStore(fake)
	ctx := context.Background()

	derived, _ := fake.Transaction(ctx, "d1")
	if err := store.AttachExternalID(ctx, derived, "e1"); err != nil {
		t.Fatalf("AttachExternalID: %v", err)
	}
	if derived.ImportedDescription != "ref:o1|ext:e1" || fake.txns[0].ImportedDescription != "ref:o1|ext:e1" {
		t.Fatalf("token not rewritten: %q", fake.txns[0].ImportedDescription)
	}

	if err := store.AttachExternalID(ctx, derived, "e1"); err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if fake.updates != 1 {
		t.Fatalf("idempotent attach wrote %d times", fake.updates)
	}

	if err := store.AttachExternalID(ctx, derived, "e2"); err != nil {
		t.Fatalf("replace attach: %v", err)
	}
	if fake.txns[0].ImportedDescription != "ref:o1|ext:e2" {
		t.Fatalf("external segment not replaced: %q", fake.txns[0].ImportedDescription)
	}
}

func TestAttachExternalIDRequiresToken(t *testing.T) {
	store := NewStore(&fakeLedger{})
	err := store.AttachExternalID(context.Background(), &core.Transaction{ID: "x", ImportedDescription: "bank"}, "e")
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := store.AttachExternalID(context.Background(), nil, "e"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for nil, got %v", err)
	}
}

func TestListCorrelated(t *testing.T) {
	fake := &fakeLedger{txns: []core.Transaction{
		{ID: "a", ImportedDescription: "ref:1"},
		{ID: "b", ImportedDescription: "ref:2|ext:x", Tombstone: true},
		{ID: "c", ImportedDescription: "ref:"},
		{ID: "d", ImportedDescription: "ref:3|ext:y"},
	}}
	got, err := NewStore(fake).ListCorrelated(context.Background())
	if err != nil {
		t.Fatalf("ListCorrelated: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "d" {
		t.Fatalf("ListCorrelated = %+v", got)
	}
}
