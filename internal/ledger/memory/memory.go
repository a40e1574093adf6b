// Package memory is an in-process ledger with a change log. It backs the engine
// tests and the memory demo backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"splitsync/internal/core"
	"splitsync/internal/ledger"
)

// Ledger keeps transactions and directory entries in memory.
//
// Add, Edit and Delete stand for changes made by someone else and are recorded on the
// change feed with only the touched fields. Mutations made through the ledger.Ledger
// methods are the reconciler's own and are not echoed back.
type Ledger struct {
	mu         sync.Mutex
	txns       map[string]*core.Transaction
	order      []string
	payees     map[string]core.Payee
	accounts   map[string]core.Account
	categories map[string]core.Category
	pending    []core.ChangeRecord
	commits    int
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		txns:       make(map[string]*core.Transaction),
		payees:     make(map[string]core.Payee),
		accounts:   make(map[string]core.Account),
		categories: make(map[string]core.Category),
	}
}

func newID() string {
	return uuid.NewString()
}

// AddPayee registers a payee and returns it.
func (l *Ledger) AddPayee(name string) core.Payee {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := core.Payee{ID: newID(), Name: name}
	l.payees[p.ID] = p
	return p
}

// AddAccount registers an account and returns it.
func (l *Ledger) AddAccount(name string) core.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := core.Account{ID: newID(), Name: name}
	l.accounts[a.ID] = a
	return a
}

// AddCategory registers a category and returns it.
func (l *Ledger) AddCategory(name string) core.Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := core.Category{ID: newID(), Name: name}
	l.categories[c.ID] = c
	return c
}

// Put stores t without recording a change, as if it existed before the reconciler
// started. A missing id is generated.
func (l *Ledger) Put(t core.Transaction) core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(t)
}

// Add stores t and records it on the change feed with all its fields.
func (l *Ledger) Add(t core.Transaction) core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	t = l.insert(t)
	l.pending = append(l.pending, core.ChangeRecord{
		Kind:     core.KindTransaction,
		EntityID: t.ID,
		Fields:   fieldsOf(t),
	})
	return t
}

// Edit applies patch and records only the patched fields on the change feed.
func (l *Ledger) Edit(id string, patch ledger.Patch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txns[id]
	if !ok {
		return fmt.Errorf("edit transaction %s: %w", id, core.ErrNotFound)
	}
	*t = patch.Apply(*t)
	l.pending = append(l.pending, core.ChangeRecord{
		Kind:     core.KindTransaction,
		EntityID: id,
		Fields:   patch.Fields(),
	})
	return nil
}

// Delete tombstones the transaction and records the deletion.
func (l *Ledger) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txns[id]
	if !ok {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrNotFound)
	}
	t.Tombstone = true
	l.pending = append(l.pending, core.ChangeRecord{
		Kind:     core.KindTransaction,
		EntityID: id,
		Fields:   map[string]any{core.FieldTombstone: true},
		Deleted:  true,
	})
	return nil
}

// Record appends an arbitrary change to the feed.
func (l *Ledger) Record(change core.ChangeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, change)
}

// Get returns a copy of the stored transaction, tombstoned or not.
func (l *Ledger) Get(id string) (core.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txns[id]
	if !ok {
		return core.Transaction{}, false
	}
	return *t, true
}

// All returns every stored transaction in insertion order.
func (l *Ledger) All() []core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Transaction, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.txns[id])
	}
	return out
}

// InAccount returns the live transactions of an account in insertion order.
func (l *Ledger) InAccount(accountID string) []core.Transaction {
	var out []core.Transaction
	for _, t := range l.All() {
		if t.AccountID == accountID && !t.Tombstone {
			out = append(out, t)
		}
	}
	return out
}

// Commits returns how many times Commit was called.
func (l *Ledger) Commits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commits
}

func (l *Ledger) insert(t core.Transaction) core.Transaction {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := l.txns[t.ID]; !exists {
		l.order = append(l.order, t.ID)
	}
	stored := t
	l.txns[t.ID] = &stored
	return t
}

func fieldsOf(t core.Transaction) map[string]any {
	fields := map[string]any{
		core.FieldAccount:             t.AccountID,
		core.FieldAmount:              t.Amount.Cents,
		core.FieldNotes:               t.Notes,
		core.FieldImportedDescription: t.ImportedDescription,
		core.FieldCleared:             t.Cleared,
		core.FieldReconciled:          t.Reconciled,
	}
	if !t.Date.IsEmpty() {
		fields[core.FieldDate] = t.Date.Int()
	}
	if t.CategoryID != "" {
		fields[core.FieldCategory] = t.CategoryID
	}
	if t.PayeeID != "" {
		fields[core.FieldPayee] = t.PayeeID
	}
	return fields
}

// Changes drains the change feed.
func (l *Ledger) Changes(_ context.Context) ([]core.ChangeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out, nil
}

func (l *Ledger) Transaction(_ context.Context, id string) (*core.Transaction, error) {
	t, ok := l.Get(id)
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (l *Ledger) RecentTransactions(_ context.Context, since core.Date) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range l.All() {
		if t.Tombstone || t.Date.Before(since.Time) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

func (l *Ledger) FindByImportedPrefix(_ context.Context, prefix string) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range l.All() {
		if !t.Tombstone && strings.HasPrefix(t.ImportedDescription, prefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *Ledger) CreateTransaction(_ context.Context, t core.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[t.AccountID]; !ok {
		return "", core.Validationf("account %q not found", t.AccountID)
	}
	t.ID = ""
	t = l.insert(t)
	return t.ID, nil
}

func (l *Ledger) UpdateTransaction(_ context.Context, id string, patch ledger.Patch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txns[id]
	if !ok {
		return fmt.Errorf("update transaction %s: %w", id, core.ErrNotFound)
	}
	*t = patch.Apply(*t)
	return nil
}

func (l *Ledger) Commit(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commits++
	return nil
}

func (l *Ledger) Payee(_ context.Context, id string) (*core.Payee, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.payees[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (l *Ledger) PayeeByName(_ context.Context, name string) (*core.Payee, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payees {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, nil
}

func (l *Ledger) Account(_ context.Context, id string) (*core.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (l *Ledger) AccountByName(_ context.Context, name string) (*core.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts {
		if a.Name == name {
			return &a, nil
		}
	}
	return nil, nil
}

func (l *Ledger) Category(_ context.Context, id string) (*core.Category, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.categories[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (l *Ledger) CategoryByName(_ context.Context, name string) (*core.Category, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.categories {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}
