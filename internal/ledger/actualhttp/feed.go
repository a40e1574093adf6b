package actualhttp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"splitsync/internal/core"
	"splitsync/internal/ledger"
	"splitsync/internal/log"
)

// Source is what SnapshotFeed polls.
type Source interface {
	RecentTransactions(ctx context.Context, since core.Date) ([]core.Transaction, error)
	Transaction(ctx context.Context, id string) (*core.Transaction, error)
}

// SnapshotFeed turns periodic listings into change records. The first pull only
// records the window; every later pull reports rows that appeared, changed or
// disappeared since the previous one, with only the columns that differ.
type SnapshotFeed struct {
	source Source
	window time.Duration
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	snapshot map[string]core.Transaction
	primed   bool
}

// NewSnapshotFeed creates a feed over source watching transactions dated within
// window of today.
func NewSnapshotFeed(source Source, window time.Duration, logger *log.Logger) *SnapshotFeed {
	if logger == nil {
		logger = log.Discard()
	}
	return &SnapshotFeed{
		source:   source,
		window:   window,
		logger:   logger.WithComponent(log.ComponentLedger),
		now:      time.Now,
		snapshot: make(map[string]core.Transaction),
	}
}

func (f *SnapshotFeed) since() core.Date {
	y, m, d := f.now().AddDate(0, 0, -int(f.window.Hours()/24)).Date()
	return core.NewDate(y, int(m), d)
}

// Changes pulls the window and diffs it against the previous pull.
func (f *SnapshotFeed) Changes(ctx context.Context) ([]core.ChangeRecord, error) {
	rows, err := f.source.RecentTransactions(ctx, f.since())
	if err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}
	current := make(map[string]core.Transaction, len(rows))
	for _, t := range rows {
		current[t.ID] = t
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.primed {
		f.snapshot = current
		f.primed = true
		f.logger.Debug("Change feed primed", log.FieldCount, len(current))
		return nil, nil
	}

	var changes []core.ChangeRecord
	for _, id := range sortedIDs(current) {
		now := current[id]
		before, known := f.snapshot[id]
		if !known {
			changes = append(changes, core.ChangeRecord{
				Kind:     core.KindTransaction,
				EntityID: id,
				Fields:   allFields(now),
			})
			continue
		}
		if fields := diff(before, now); len(fields) > 0 {
			changes = append(changes, core.ChangeRecord{
				Kind:     core.KindTransaction,
				EntityID: id,
				Fields:   fields,
			})
		}
	}

	for _, id := range sortedIDs(f.snapshot) {
		if _, still := current[id]; still {
			continue
		}
		// gone from the window: deleted, or its date moved out
		t, err := f.source.Transaction(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pull changes: %w", err)
		}
		if t == nil || t.Tombstone {
			changes = append(changes, core.ChangeRecord{
				Kind:     core.KindTransaction,
				EntityID: id,
				Fields:   map[string]any{core.FieldTombstone: true},
				Deleted:  true,
			})
			continue
		}
		if fields := diff(f.snapshot[id], *t); len(fields) > 0 {
			changes = append(changes, core.ChangeRecord{
				Kind:     core.KindTransaction,
				EntityID: id,
				Fields:   fields,
			})
		}
	}

	f.snapshot = current
	return changes, nil
}

// Observe records t as already seen, so writes made by this process do not come back
// as changes.
func (f *SnapshotFeed) Observe(t core.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.primed {
		return
	}
	f.snapshot[t.ID] = t
}

// ObservePatch applies patch to the remembered row.
func (f *SnapshotFeed) ObservePatch(id string, patch ledger.Patch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.snapshot[id]
	if !ok {
		return
	}
	if patch.Tombstone != nil && *patch.Tombstone {
		delete(f.snapshot, id)
		return
	}
	f.snapshot[id] = patch.Apply(t)
}

func sortedIDs(m map[string]core.Transaction) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func allFields(t core.Transaction) map[string]any {
	fields := map[string]any{
		core.FieldAccount:             t.AccountID,
		core.FieldAmount:              t.Amount.Cents,
		core.FieldNotes:               t.Notes,
		core.FieldImportedDescription: t.ImportedDescription,
		core.FieldCleared:             t.Cleared,
		core.FieldReconciled:          t.Reconciled,
		core.FieldPayee:               nullable(t.PayeeID),
		core.FieldCategory:            nullable(t.CategoryID),
	}
	if !t.Date.IsEmpty() {
		fields[core.FieldDate] = t.Date.Int()
	}
	return fields
}

func diff(before, after core.Transaction) map[string]any {
	fields := make(map[string]any)
	if before.AccountID != after.AccountID {
		fields[core.FieldAccount] = after.AccountID
	}
	if before.Amount != after.Amount {
		fields[core.FieldAmount] = after.Amount.Cents
	}
	if !before.Date.Equal(after.Date.Time) && !after.Date.IsEmpty() {
		fields[core.FieldDate] = after.Date.Int()
	}
	if before.Notes != after.Notes {
		fields[core.FieldNotes] = after.Notes
	}
	if before.ImportedDescription != after.ImportedDescription {
		fields[core.FieldImportedDescription] = after.ImportedDescription
	}
	if before.Cleared != after.Cleared {
		fields[core.FieldCleared] = after.Cleared
	}
	if before.Reconciled != after.Reconciled {
		fields[core.FieldReconciled] = after.Reconciled
	}
	if before.PayeeID != after.PayeeID {
		fields[core.FieldPayee] = nullable(after.PayeeID)
	}
	if before.CategoryID != after.CategoryID {
		fields[core.FieldCategory] = nullable(after.CategoryID)
	}
	return fields
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
