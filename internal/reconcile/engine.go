// Package reconcile keeps the ledger and the Splitter group in step.
//
// The Engine reacts to ledger change batches (trigger, edit and delete flows) and to
// Splitter polls (expenses paid by others). It owns the processed-expense set and
// drives the tag tracker through the classifier. Callers serialize calls; the
// scheduler holds one lock for a whole cycle.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"splitsync/internal/category"
	"splitsync/internal/classifier"
	"splitsync/internal/core"
	"splitsync/internal/correlation"
	"splitsync/internal/events"
	"splitsync/internal/ledger"
	"splitsync/internal/log"
	"splitsync/internal/splitter"
	"splitsync/internal/storage"
)

const (
	unknownPayee       = "Unknown payee"
	mirrorCreatedNotes = "Auto-created from Actual Budget"
	mirrorUpdatedNotes = "Auto-updated from Actual Budget"
)

// Config holds the engine settings.
type Config struct {
	// SplitterPayee and SplitterAccount receive derived transactions. Each is
	// resolved as an id first, then as a name.
	SplitterPayee   string
	SplitterAccount string

	// AutoTag is appended to derived transaction notes (default: #auto).
	AutoTag string

	// ExternalTag is appended to notes of entries imported from the Splitter
	// (default: #spliit).
	ExternalTag string

	// HistoryWindow bounds the tag tracker reload (default: 30 days).
	HistoryWindow time.Duration

	// HistoryLimit is how many Splitter expenses one poll fetches (default: 50).
	HistoryLimit int

	// Currency is only used to format amounts in logs (default: EUR).
	Currency string
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		AutoTag:       "#auto",
		ExternalTag:   "#spliit",
		HistoryWindow: 30 * 24 * time.Hour,
		HistoryLimit:  50,
		Currency:      core.DefaultCurrency,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AutoTag == "" {
		c.AutoTag = d.AutoTag
	}
	if c.ExternalTag == "" {
		c.ExternalTag = d.ExternalTag
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	return c
}

// Journal persists what the engine did. storage.SQLiteRepository implements it.
type Journal interface {
	MarkProcessed(ctx context.Context, expenseID, outcome string) error
	SetOutcome(ctx context.Context, expenseID, outcome string) error
	ProcessedIDs(ctx context.Context) ([]string, error)
	RecordCorrelation(ctx context.Context, c storage.Correlation) error
}

// Deps are the engine's collaborators. Splitter may be nil, which disables
// mirroring and the Splitter import. Journal and Events are optional.
type Deps struct {
	Ledger     ledger.Ledger
	Splitter   splitter.Splitter
	Classifier *classifier.Classifier
	Mapper     *category.Mapper
	Journal    Journal
	Events     events.Sink
	Logger     *log.Logger
}

// Result counts what one call did.
type Result struct {
	Changes        int
	Triggered      int
	Updated        int
	Deleted        int
	Mirrored       int
	MirrorFailures int
	Imported       int
	Skipped        int
	Failed         int
}

// Mutated reports whether the ledger was written to.
func (r Result) Mutated() bool {
	return r.Triggered+r.Updated+r.Deleted+r.Mirrored+r.Imported > 0
}

// Engine runs the reconciliation flows.
type Engine struct {
	cfg        Config
	ledger     ledger.Ledger
	splitter   splitter.Splitter
	classifier *classifier.Classifier
	mapper     *category.Mapper
	store      *correlation.Store
	journal    Journal
	events     events.Sink
	logger     *log.Logger

	pmu       sync.Mutex
	processed map[string]struct{}

	now func() time.Time
}

// New creates an Engine.
func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	sink := deps.Events
	if sink == nil {
		sink = events.Nop{}
	}
	return &Engine{
		cfg:        cfg.withDefaults(),
		ledger:     deps.Ledger,
		splitter:   deps.Splitter,
		classifier: deps.Classifier,
		mapper:     deps.Mapper,
		store:      correlation.NewStore(deps.Ledger),
		journal:    deps.Journal,
		events:     sink,
		logger:     logger.WithComponent(log.ComponentEngine),
		processed:  make(map[string]struct{}),
		now:        time.Now,
	}
}

// Mirroring reports whether ledger flows are mirrored into the Splitter.
func (e *Engine) Mirroring() bool {
	return e.splitter != nil && e.mapper != nil
}

// TrackerSize returns the number of transactions in the tag tracker.
func (e *Engine) TrackerSize() int {
	return e.classifier.Tracker().Len()
}

// ProcessedCount returns the number of Splitter expenses already considered.
func (e *Engine) ProcessedCount() int {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	return len(e.processed)
}

func (e *Engine) today() core.Date {
	y, m, d := e.now().Date()
	return core.NewDate(y, int(m), d)
}

// Seed loads the tag tracker from the history window and the processed set from the
// most recent Splitter expenses and the journal. Expenses that exist before the
// first poll are never imported.
func (e *Engine) Seed(ctx context.Context) error {
	if err := e.ReloadTracker(ctx); err != nil {
		return err
	}

	if e.splitter != nil {
		expenses, err := e.splitter.ListExpenses(ctx, e.cfg.HistoryLimit)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to load initial splitter expenses",
				log.FieldOperation, log.OpSeed,
				log.FieldError, err)
		}
		for _, x := range expenses {
			if x.ID == "" {
				continue
			}
			if e.markSeen(x.ID) {
				e.persistProcessed(ctx, x.ID, storage.OutcomeSeeded)
			}
		}
	}

	if e.journal != nil {
		ids, err := e.journal.ProcessedIDs(ctx)
		if err != nil {
			return fmt.Errorf("load processed ids: %w", err)
		}
		for _, id := range ids {
			e.markSeen(id)
		}
	}

	e.logger.InfoContext(ctx, "Engine seeded",
		"tracked", e.classifier.Tracker().Len(),
		"processed", e.ProcessedCount(),
		"mirroring", e.Mirroring())
	return nil
}

// ReloadTracker replaces the tag tracker with the notes of every transaction in the
// history window.
func (e *Engine) ReloadTracker(ctx context.Context) error {
	since := e.now().Add(-e.cfg.HistoryWindow)
	txns, err := e.ledger.RecentTransactions(ctx, core.NewDate(since.Year(), int(since.Month()), since.Day()))
	if err != nil {
		return fmt.Errorf("load recent transactions: %w", err)
	}
	notes := make(map[string]string, len(txns))
	for _, t := range txns {
		if t.ID != "" {
			notes[t.ID] = t.Notes
		}
	}
	e.classifier.Tracker().Reload(notes)
	return nil
}

// markSeen adds id to the processed set, reporting whether it was new.
func (e *Engine) markSeen(id string) bool {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	if _, ok := e.processed[id]; ok {
		return false
	}
	e.processed[id] = struct{}{}
	return true
}

func (e *Engine) persistProcessed(ctx context.Context, id, outcome string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.MarkProcessed(ctx, id, outcome); err != nil {
		e.logger.WarnContext(ctx, "Failed to persist processed expense",
			log.FieldExternalID, id,
			log.FieldError, err)
	}
}

// failProcessed rewrites the outcome of an expense whose import failed.
func (e *Engine) failProcessed(ctx context.Context, id string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SetOutcome(ctx, id, storage.OutcomeFailed); err != nil {
		e.logger.WarnContext(ctx, "Failed to record failed import",
			log.FieldExternalID, id,
			log.FieldError, err)
	}
}

func (e *Engine) record(ctx context.Context, c storage.Correlation) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordCorrelation(ctx, c); err != nil {
		e.logger.WarnContext(ctx, "Failed to journal correlation",
			log.FieldOriginalID, c.OriginalID,
			"state", c.State,
			log.FieldError, err)
	}
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", string(ev.Type),
			log.FieldError, err)
	}
}

func newEvent(t events.Type, originalID, derivedID, externalID string) events.Event {
	ev := events.New(t)
	ev.OriginalID = originalID
	ev.DerivedID = derivedID
	ev.ExternalID = externalID
	return ev
}

// destination resolves the payee and account derived transactions are booked to.
func (e *Engine) destination(ctx context.Context) (*core.Payee, *core.Account, error) {
	payee, err := e.ledger.Payee(ctx, e.cfg.SplitterPayee)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup splitter payee: %w", err)
	}
	if payee == nil {
		if payee, err = e.ledger.PayeeByName(ctx, e.cfg.SplitterPayee); err != nil {
			return nil, nil, fmt.Errorf("lookup splitter payee: %w", err)
		}
	}
	if payee == nil {
		return nil, nil, core.Validationf("payee %q not found", e.cfg.SplitterPayee)
	}

	account, err := e.ledger.Account(ctx, e.cfg.SplitterAccount)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup splitter account: %w", err)
	}
	if account == nil {
		if account, err = e.ledger.AccountByName(ctx, e.cfg.SplitterAccount); err != nil {
			return nil, nil, fmt.Errorf("lookup splitter account: %w", err)
		}
	}
	if account == nil {
		return nil, nil, core.Validationf("account %q not found", e.cfg.SplitterAccount)
	}
	return payee, account, nil
}

func (e *Engine) payeeName(ctx context.Context, id string) string {
	if id == "" {
		return unknownPayee
	}
	p, err := e.ledger.Payee(ctx, id)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load payee", log.FieldPayee, id, log.FieldError, err)
		return unknownPayee
	}
	if p == nil || p.Name == "" {
		return unknownPayee
	}
	return p.Name
}

// categoryName returns the ledger name of a category id, nil when unset or unknown.
func (e *Engine) categoryName(ctx context.Context, id string) (*string, error) {
	if id == "" {
		return nil, nil
	}
	c, err := e.ledger.Category(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup category %s: %w", id, err)
	}
	if c == nil {
		return nil, nil
	}
	return &c.Name, nil
}

func (e *Engine) externalCategory(ctx context.Context, localID string) (int, error) {
	name, err := e.categoryName(ctx, localID)
	if err != nil {
		return 0, err
	}
	return e.mapper.ToExternal(ctx, name)
}
