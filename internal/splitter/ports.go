// Package splitter talks to the shared-expense tracker.
package splitter

import (
	"context"

	"splitsync/internal/core"
)

// Splitter is the port the reconciler uses. Expense returns (nil, nil) for unknown
// ids; every other failure wraps core.ErrExternalService.
type Splitter interface {
	// PayerID is the local user's participant id.
	PayerID() string
	Participants(ctx context.Context) ([]core.Participant, error)
	// ParticipantName returns a member's name, "Unknown" when it cannot be found.
	ParticipantName(ctx context.Context, id string) string
	Categories(ctx context.Context) ([]core.ExternalCategory, error)
	ListExpenses(ctx context.Context, limit int) ([]core.Expense, error)
	Expense(ctx context.Context, id string) (*core.Expense, error)
	CreateExpense(ctx context.Context, draft core.ExpenseDraft) (string, error)
	UpdateExpense(ctx context.Context, id string, draft core.ExpenseDraft) error
	DeleteExpense(ctx context.Context, id string) error
}
