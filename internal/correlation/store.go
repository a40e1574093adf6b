package correlation

import (
	"context"
	"fmt"

	"splitsync/internal/core"
	"splitsync/internal/ledger"
)

// Ledger is the part of the ledger the store needs.
type Ledger interface {
	ledger.TransactionReader
	UpdateTransaction(ctx context.Context, id string, patch ledger.Patch) error
}

// Store finds and rewrites correlation tokens on derived transactions.
type Store struct {
	ledger Ledger
}

// NewStore creates a Store over l.
func NewStore(l Ledger) *Store {
	return &Store{ledger: l}
}

// FindDerivedFor returns the live derived transaction for originalID, or nil.
//
// The prefix query can return rows of other originals ("ref:12" is a prefix of
// "ref:123"), so each candidate's parsed id is compared exactly.
func (s *Store) FindDerivedFor(ctx context.Context, originalID string) (*core.Transaction, error) {
	if originalID == "" {
		return nil, nil
	}
	candidates, err := s.ledger.FindByImportedPrefix(ctx, Prefix+originalID)
	if err != nil {
		return nil, fmt.Errorf("find derived for %s: %w", originalID, err)
	}
	for i := range candidates {
		c := candidates[i]
		if c.Tombstone {
			continue
		}
		if id, _ := Parse(c.ImportedDescription); id == originalID {
			return &c, nil
		}
	}
	return nil, nil
}

// AttachExternalID rewrites the derived transaction's token so it carries
// externalID, keeping the original id. Rewriting to the same value is a no-op.
func (s *Store) AttachExternalID(ctx context.Context, derived *core.Transaction, externalID string) error {
	if derived == nil {
		return core.Validationf("attach external id: no derived transaction")
	}
	originalID, current := Parse(derived.ImportedDescription)
	if originalID == "" {
		return core.Validationf("transaction %s carries no correlation token", derived.ID)
	}
	if current == externalID {
		return nil
	}

	token := BuildToken(originalID, externalID)
	if err := s.ledger.UpdateTransaction(ctx, derived.ID, ledger.Patch{ImportedDescription: &token}); err != nil {
		return fmt.Errorf("attach external id to %s: %w", derived.ID, err)
	}
	derived.ImportedDescription = token
	return nil
}

// ListCorrelated returns every live transaction carrying a token.
func (s *Store) ListCorrelated(ctx context.Context) ([]core.Transaction, error) {
	candidates, err := s.ledger.FindByImportedPrefix(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("list correlated: %w", err)
	}
	out := make([]core.Transaction, 0, len(candidates))
	for _, c := range candidates {
		if c.Tombstone || !IsToken(c.ImportedDescription) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
