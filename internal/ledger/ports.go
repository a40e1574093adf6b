// Package ledger declares the port the reconciler uses to talk to the personal
// finance ledger. Adapters live in subpackages.
package ledger

import (
	"context"

	"splitsync/internal/core"
)

// Ports for outbound adapters.
//
// Lookups return (nil, nil) when the entity does not exist; an error always means the
// ledger could not be asked.
type (
	ChangeFeed interface {
		// Changes returns the mutations observed since the previous call.
		Changes(ctx context.Context) ([]core.ChangeRecord, error)
	}

	TransactionReader interface {
		Transaction(ctx context.Context, id string) (*core.Transaction, error)
		// RecentTransactions returns live transactions dated on or after since.
		RecentTransactions(ctx context.Context, since core.Date) ([]core.Transaction, error)
		// FindByImportedPrefix returns live transactions whose imported description
		// starts with prefix, in ledger order.
		FindByImportedPrefix(ctx context.Context, prefix string) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		// CreateTransaction adds t to its account and returns the new id.
		CreateTransaction(ctx context.Context, t core.Transaction) (string, error)
		UpdateTransaction(ctx context.Context, id string, patch Patch) error
		// Commit durably applies local mutations to the remote ledger.
		Commit(ctx context.Context) error
	}

	Directory interface {
		Payee(ctx context.Context, id string) (*core.Payee, error)
		PayeeByName(ctx context.Context, name string) (*core.Payee, error)
		Account(ctx context.Context, id string) (*core.Account, error)
		AccountByName(ctx context.Context, name string) (*core.Account, error)
		Category(ctx context.Context, id string) (*core.Category, error)
		CategoryByName(ctx context.Context, name string) (*core.Category, error)
	}

	// Ledger is everything the reconciliation engine needs.
	Ledger interface {
		ChangeFeed
		TransactionReader
		TransactionWriter
		Directory
	}
)

// Patch lists the columns to update; nil fields are left untouched. A CategoryID
// pointing at "" clears the category.
type Patch struct {
	Amount              *core.Money
	Date                *core.Date
	CategoryID          *string
	Notes               *string
	ImportedDescription *string
	Tombstone           *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Date == nil && p.CategoryID == nil &&
		p.Notes == nil && p.ImportedDescription == nil && p.Tombstone == nil
}

// Apply returns t with the patch applied.
func (p Patch) Apply(t core.Transaction) core.Transaction {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.ImportedDescription != nil {
		t.ImportedDescription = *p.ImportedDescription
	}
	if p.Tombstone != nil {
		t.Tombstone = *p.Tombstone
	}
	return t
}

// Fields returns the patch as sparse change-record fields.
func (p Patch) Fields() map[string]any {
	fields := make(map[string]any)
	if p.Amount != nil {
		fields[core.FieldAmount] = p.Amount.Cents
	}
	if p.Date != nil {
		fields[core.FieldDate] = p.Date.Int()
	}
	if p.CategoryID != nil {
		if *p.CategoryID == "" {
			fields[core.FieldCategory] = nil
		} else {
			fields[core.FieldCategory] = *p.CategoryID
		}
	}
	if p.Notes != nil {
		fields[core.FieldNotes] = *p.Notes
	}
	if p.ImportedDescription != nil {
		fields[core.FieldImportedDescription] = *p.ImportedDescription
	}
	if p.Tombstone != nil {
		fields[core.FieldTombstone] = *p.Tombstone
	}
	return fields
}
