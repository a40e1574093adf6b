// Package memory is an in-process Splitter group for tests and the demo backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"splitsync/internal/core"
	"splitsync/internal/splitter"
)

// Group holds expenses newest first, like the real list endpoint.
type Group struct {
	mu           sync.Mutex
	payerID      string
	participants []core.Participant
	categories   []core.ExternalCategory
	expenses     []core.Expense

	// Err, when set, is returned by every call.
	Err error
	// Calls counts calls per method name.
	Calls map[string]int
}

var _ splitter.Splitter = (*Group)(nil)

// New creates a group where payerID is the local user.
func New(payerID string, participants []core.Participant, categories []core.ExternalCategory) *Group {
	return &Group{
		payerID:      payerID,
		participants: participants,
		categories:   categories,
		Calls:        make(map[string]int),
	}
}

func (g *Group) enter(method string) error {
	g.Calls[method]++
	if g.Err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrExternalService, method, g.Err)
	}
	return nil
}

// Put adds an expense entered by someone else, newest first. A missing id is
// generated.
func (g *Group) Put(e core.Expense) core.Expense {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	g.expenses = append([]core.Expense{e}, g.expenses...)
	return e
}

// All returns the stored expenses, newest first.
func (g *Group) All() []core.Expense {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]core.Expense, len(g.expenses))
	copy(out, g.expenses)
	return out
}

func (g *Group) PayerID() string {
	return g.payerID
}

func (g *Group) Participants(context.Context) ([]core.Participant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("Participants"); err != nil {
		return nil, err
	}
	return g.participants, nil
}

func (g *Group) ParticipantName(ctx context.Context, id string) string {
	participants, err := g.Participants(ctx)
	if err != nil {
		return "Unknown"
	}
	for _, p := range participants {
		if p.ID == id && p.Name != "" {
			return p.Name
		}
	}
	return "Unknown"
}

func (g *Group) Categories(context.Context) ([]core.ExternalCategory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("Categories"); err != nil {
		return nil, err
	}
	return g.categories, nil
}

func (g *Group) ListExpenses(_ context.Context, limit int) ([]core.Expense, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListExpenses"); err != nil {
		return nil, err
	}
	n := len(g.expenses)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.Expense, n)
	copy(out, g.expenses[:n])
	return out, nil
}

func (g *Group) Expense(_ context.Context, id string) (*core.Expense, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("Expense"); err != nil {
		return nil, err
	}
	for _, e := range g.expenses {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (g *Group) CreateExpense(_ context.Context, draft core.ExpenseDraft) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateExpense"); err != nil {
		return "", err
	}
	e := g.fromDraft(uuid.NewString(), draft)
	g.expenses = append([]core.Expense{e}, g.expenses...)
	return e.ID, nil
}

func (g *Group) UpdateExpense(_ context.Context, id string, draft core.ExpenseDraft) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpdateExpense"); err != nil {
		return err
	}
	for i := range g.expenses {
		if g.expenses[i].ID == id {
			g.expenses[i] = g.fromDraft(id, draft)
			return nil
		}
	}
	return fmt.Errorf("%w: update expense %s: not found", core.ErrExternalService, id)
}

func (g *Group) DeleteExpense(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteExpense"); err != nil {
		return err
	}
	for i := range g.expenses {
		if g.expenses[i].ID == id {
			g.expenses = append(g.expenses[:i], g.expenses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: delete expense %s: not found", core.ErrExternalService, id)
}

func (g *Group) fromDraft(id string, draft core.ExpenseDraft) core.Expense {
	ids := draft.PaidFor
	if len(ids) == 0 {
		for _, p := range g.participants {
			ids = append(ids, p.ID)
		}
	}
	shares := make([]core.Share, 0, len(ids))
	for _, pid := range ids {
		n := int64(100)
		shares = append(shares, core.Share{ParticipantID: pid, Shares: &n})
	}
	payer := core.Participant{ID: g.payerID}
	for _, p := range g.participants {
		if p.ID == g.payerID {
			payer = p
		}
	}
	mode := draft.SplitMode
	if mode == "" {
		mode = core.SplitEvenly
	}
	return core.Expense{
		ID:              id,
		Title:           draft.Title,
		Amount:          draft.Amount,
		ExpenseDate:     draft.Date.Format("2006-01-02T15:04:05.000Z"),
		PaidBy:          payer,
		CategoryID:      draft.CategoryID,
		SplitMode:       mode,
		PaidFor:         shares,
		IsReimbursement: draft.IsReimbursement,
		Notes:           draft.Notes,
	}
}
