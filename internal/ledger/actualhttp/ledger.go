package actualhttp

import (
	"context"
	"time"

	"splitsync/internal/core"
	"splitsync/internal/ledger"
	"splitsync/internal/log"
)

// Ledger adapts a Client and its SnapshotFeed to ledger.Ledger.
type Ledger struct {
	*Client
	feed         *SnapshotFeed
	searchWindow time.Duration
	now          func() time.Time
}

var _ ledger.Ledger = (*Ledger)(nil)

// NewLedger wires a client to a snapshot feed watching window. Correlation lookups
// scan searchWindow, which should be at least as long as window.
func NewLedger(client *Client, window, searchWindow time.Duration, logger *log.Logger) *Ledger {
	if searchWindow < window {
		searchWindow = window
	}
	return &Ledger{
		Client:       client,
		feed:         NewSnapshotFeed(client, window, logger),
		searchWindow: searchWindow,
		now:          time.Now,
	}
}

// Feed exposes the snapshot feed.
func (l *Ledger) Feed() *SnapshotFeed {
	return l.feed
}

func (l *Ledger) Changes(ctx context.Context) ([]core.ChangeRecord, error) {
	return l.feed.Changes(ctx)
}

func (l *Ledger) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	id, err := l.Client.CreateTransaction(ctx, t)
	if err != nil {
		return "", err
	}
	t.ID = id
	l.feed.Observe(t)
	return id, nil
}

func (l *Ledger) UpdateTransaction(ctx context.Context, id string, patch ledger.Patch) error {
	if err := l.Client.UpdateTransaction(ctx, id, patch); err != nil {
		return err
	}
	l.feed.ObservePatch(id, patch)
	return nil
}

func (l *Ledger) FindByImportedPrefix(ctx context.Context, prefix string) ([]core.Transaction, error) {
	y, m, d := l.now().Add(-l.searchWindow).Date()
	return l.Client.FindByImportedPrefix(ctx, prefix, core.NewDate(y, int(m), d))
}

// Commit is a no-op: REST writes are applied as they are made.
func (l *Ledger) Commit(context.Context) error {
	return nil
}
