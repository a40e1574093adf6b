package memory

import (
	"context"
	"errors"
	"testing"

	"splitsync/internal/core"
	"splitsync/internal/ledger"
)

func TestChangeFeedRecordsOnlyExternalMutations(t *testing.T) {
	l := New()
	ctx := context.Background()
	acct := l.AddAccount("Checking")

	orig := l.Add(core.Transaction{AccountID: acct.ID, Amount: core.NewMoney(-10000), Date: core.NewDate(2024, 1, 15), Notes: "Groceries"})
	notes := "Groceries #shared"
	if err := l.Edit(orig.ID, ledger.Patch{Notes: &notes}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := l.CreateTransaction(ctx, core.Transaction{AccountID: acct.ID, Amount: core.NewMoney(5000)}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	changes, err := l.Changes(ctx)
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if v, _ := changes[0].Int64(core.FieldAmount); v != -10000 {
		t.Errorf("add change amount = %d", v)
	}
	if d, _ := changes[0].Int64(core.FieldDate); d != 20240115 {
		t.Errorf("add change date = %d", d)
	}
	edit := changes[1]
	if len(edit.Fields) != 1 || !edit.Has(core.FieldNotes) {
		t.Errorf("edit change should only carry notes: %v", edit.Fields)
	}

	again, _ := l.Changes(ctx)
	if len(again) != 0 {
		t.Fatalf("feed not drained: %d", len(again))
	}
}

func TestDeleteRecordsTombstone(t *testing.T) {
	l := New()
	tx := l.Put(core.Transaction{Notes: "x"})
	if err := l.Delete(tx.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	changes, _ := l.Changes(context.Background())
	if len(changes) != 1 || !changes[0].IsTombstone() {
		t.Fatalf("expected tombstone change, got %+v", changes)
	}
	if err := l.Delete("missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateTransactionRequiresAccount(t *testing.T) {
	l := New()
	_, err := l.CreateTransaction(context.Background(), core.Transaction{AccountID: "nope"})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLookupsReturnNilWhenMissing(t *testing.T) {
	l := New()
	ctx := context.Background()
	payee := l.AddPayee("Grocery Store")

	if p, err := l.Payee(ctx, payee.ID); err != nil || p == nil || p.Name != "Grocery Store" {
		t.Fatalf("Payee = %+v, %v", p, err)
	}
	if p, err := l.PayeeByName(ctx, "Nobody"); err != nil || p != nil {
		t.Fatalf("PayeeByName(Nobody) = %+v, %v", p, err)
	}
	if tx, err := l.Transaction(ctx, "nope"); err != nil || tx != nil {
		t.Fatalf("Transaction(nope) = %+v, %v", tx, err)
	}
	if c, err := l.CategoryByName(ctx, "Food"); err != nil || c != nil {
		t.Fatalf("CategoryByName(Food) = %+v, %v", c, err)
	}
}

func TestRecentAndPrefixQueriesSkipTombstones(t *testing.T) {
	l := New()
	ctx := context.Background()
	l.Put(core.Transaction{ID: "old", Date: core.NewDate(2023, 1, 1)})
	l.Put(core.Transaction{ID: "a", Date: core.NewDate(2024, 2, 1), ImportedDescription: "ref:1"})
	l.Put(core.Transaction{ID: "b", Date: core.NewDate(2024, 3, 1), ImportedDescription: "ref:1|ext:z", Tombstone: true})

	recent, _ := l.RecentTransactions(ctx, core.NewDate(2024, 1, 1))
	if len(recent) != 1 || recent[0].ID != "a" {
		t.Fatalf("RecentTransactions = %+v", recent)
	}
	found, _ := l.FindByImportedPrefix(ctx, "ref:1")
	if len(found) != 1 || found[0].ID != "a" {
		t.Fatalf("FindByImportedPrefix = %+v", found)
	}
}
