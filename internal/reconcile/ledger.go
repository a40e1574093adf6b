package reconcile

import (
	"context"
	"fmt"
	"time"

	"splitsync/internal/core"
	"splitsync/internal/correlation"
	"splitsync/internal/events"
	"splitsync/internal/ledger"
	"splitsync/internal/log"
	"splitsync/internal/split"
	"splitsync/internal/storage"
)

// effective holds the values a derived transaction is computed from: the change's
// value when the change carries it, the current row's otherwise.
//
// Known gap: when amount and notes are edited in separate cycles, the trigger uses
// whatever the current row holds, which can be a value from before the latest edit
// was synced.
type effective struct {
	amount     core.Money
	date       core.Date
	categoryID string
}

func resolve(change core.ChangeRecord, current core.Transaction) effective {
	eff := effective{
		amount:     current.Amount,
		date:       current.Date,
		categoryID: current.CategoryID,
	}
	if n, ok := change.Int64(core.FieldAmount); ok {
		eff.amount = core.NewMoney(n)
	}
	if d, ok := change.Date(core.FieldDate); ok {
		eff.date = d
	}
	if c, ok := change.Text(core.FieldCategory); ok {
		eff.categoryID = c
	}
	return eff
}

// touched lists the propagated columns a change altered.
type touched struct {
	amount, date, category bool
}

func touchedBy(change core.ChangeRecord) touched {
	return touched{
		amount:   change.Has(core.FieldAmount),
		date:     change.Has(core.FieldDate),
		category: change.Has(core.FieldCategory),
	}
}

func (t touched) none() bool {
	return !t.amount && !t.date && !t.category
}

var allFields = touched{amount: true, date: true, category: true}

// SyncLedger pulls one batch from the ledger change feed and processes it.
func (e *Engine) SyncLedger(ctx context.Context) (Result, error) {
	changes, err := e.ledger.Changes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pull ledger changes: %w", err)
	}
	return e.ProcessChanges(ctx, changes)
}

// ProcessChanges handles one batch of ledger changes. A failure on one change is
// logged and the batch continues. The ledger is committed once when anything was
// written, and the tag tracker is reloaded after any non-empty batch.
func (e *Engine) ProcessChanges(ctx context.Context, changes []core.ChangeRecord) (Result, error) {
	var res Result
	start := time.Now()

	for _, change := range changes {
		if change.Kind != core.KindTransaction {
			continue
		}
		res.Changes++
		if err := e.processChange(ctx, change, &res); err != nil {
			res.Failed++
			e.logger.ErrorContext(ctx, "Failed to reconcile change",
				log.FieldOriginalID, change.EntityID,
				log.FieldError, err)
		}
	}

	if res.Mutated() {
		if err := e.ledger.Commit(ctx); err != nil {
			return res, fmt.Errorf("commit ledger: %w", err)
		}
	}

	if len(changes) > 0 {
		if err := e.ReloadTracker(ctx); err != nil {
			return res, err
		}
		e.logger.DebugContext(ctx, "Processed ledger batch",
			log.FieldCount, len(changes),
			"triggered", res.Triggered,
			"updated", res.Updated,
			"deleted", res.Deleted,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
	return res, nil
}

func (e *Engine) processChange(ctx context.Context, change core.ChangeRecord, res *Result) error {
	if change.IsTombstone() {
		return e.propagateDelete(ctx, change.EntityID, res)
	}

	current, err := e.ledger.Transaction(ctx, change.EntityID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", change.EntityID, err)
	}
	if current != nil {
		// rows we derived are never originals
		if correlation.IsToken(current.ImportedDescription) {
			return nil
		}
		if current.Tombstone {
			return e.propagateDelete(ctx, current.ID, res)
		}
	}

	if original, ok := e.classifier.Classify(change, current); ok {
		return e.trigger(ctx, change, *original, res)
	}
	if current == nil {
		return nil
	}

	fields := touchedBy(change)
	if fields.none() {
		return nil
	}
	derived, err := e.store.FindDerivedFor(ctx, current.ID)
	if err != nil {
		return err
	}
	if derived == nil {
		return nil
	}
	return e.propagateEdit(ctx, fields, resolve(change, *current), *current, *derived, res)
}

// trigger books my share of a newly tagged original and mirrors it.
func (e *Engine) trigger(ctx context.Context, change core.ChangeRecord, original core.Transaction, res *Result) error {
	logger := e.logger.With(log.FieldOperation, log.OpTrigger, log.FieldOriginalID, original.ID)
	eff := resolve(change, original)
	check := original
	check.Date = eff.date
	if err := check.Validate(); err != nil {
		return err
	}

	existing, err := e.store.FindDerivedFor(ctx, original.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.InfoContext(ctx, "Derived transaction already exists, treating trigger as edit",
			log.FieldDerivedID, existing.ID)
		return e.propagateEdit(ctx, allFields, eff, original, *existing, res)
	}

	payee, account, err := e.destination(ctx)
	if err != nil {
		return err
	}
	payeeName := e.payeeName(ctx, original.PayeeID)

	derived := core.Transaction{
		AccountID:           account.ID,
		PayeeID:             payee.ID,
		Amount:              split.Half(eff.amount),
		Date:                eff.date,
		CategoryID:          eff.categoryID,
		Notes:               payeeName + " " + e.cfg.AutoTag,
		ImportedDescription: correlation.BuildToken(original.ID, ""),
	}
	id, err := e.ledger.CreateTransaction(ctx, derived)
	if err != nil {
		return fmt.Errorf("create derived transaction for %s: %w", original.ID, err)
	}
	derived.ID = id
	res.Triggered++

	logger.InfoContext(ctx, "Created derived transaction",
		log.FieldDerivedID, id,
		log.FieldAmountCents, derived.Amount.Cents,
		"amount", derived.Amount.Display(e.cfg.Currency),
		log.FieldDate, derived.Date.String())
	e.record(ctx, storage.Correlation{OriginalID: original.ID, DerivedID: id, State: storage.StateDerived})
	ev := newEvent(events.DerivedCreated, original.ID, id, "")
	ev.AmountCents = derived.Amount.Cents
	e.emit(ctx, ev)

	if e.Mirroring() {
		e.mirror(ctx, original.ID, &derived, payeeName, eff, res)
	}
	return nil
}

// mirror creates the Splitter expense for a derived transaction and records its id
// in the token. Failures are logged and journaled; the derived transaction stays.
func (e *Engine) mirror(ctx context.Context, originalID string, derived *core.Transaction, title string, eff effective, res *Result) bool {
	categoryID, err := e.externalCategory(ctx, eff.categoryID)
	if err != nil {
		e.mirrorFailed(ctx, originalID, derived.ID, "", err, res)
		return false
	}

	draft := core.ExpenseDraft{
		Title:      title,
		Amount:     eff.amount.Abs().Cents,
		Date:       eff.date,
		CategoryID: categoryID,
		SplitMode:  core.SplitEvenly,
		Notes:      mirrorCreatedNotes,
	}
	externalID, err := e.splitter.CreateExpense(ctx, draft)
	if err != nil {
		e.mirrorFailed(ctx, originalID, derived.ID, "", err, res)
		return false
	}
	if err := e.store.AttachExternalID(ctx, derived, externalID); err != nil {
		e.mirrorFailed(ctx, originalID, derived.ID, externalID, err, res)
		return false
	}
	res.Mirrored++

	e.logger.InfoContext(ctx, "Mirrored shared expense",
		log.FieldOperation, log.OpMirror,
		log.FieldOriginalID, originalID,
		log.FieldDerivedID, derived.ID,
		log.FieldExternalID, externalID,
		"category_id", categoryID)
	e.record(ctx, storage.Correlation{
		OriginalID: originalID,
		DerivedID:  derived.ID,
		ExternalID: externalID,
		State:      storage.StateMirrored,
	})
	ev := newEvent(events.MirrorCreated, originalID, derived.ID, externalID)
	ev.AmountCents = draft.Amount
	e.emit(ctx, ev)
	return true
}

func (e *Engine) mirrorFailed(ctx context.Context, originalID, derivedID, externalID string, err error, res *Result) {
	res.MirrorFailures++
	e.logger.ErrorContext(ctx, "Failed to mirror to splitter",
		log.FieldOriginalID, originalID,
		log.FieldDerivedID, derivedID,
		log.FieldExternalID, externalID,
		log.FieldError, err)
	e.record(ctx, storage.Correlation{
		OriginalID: originalID,
		DerivedID:  derivedID,
		ExternalID: externalID,
		State:      storage.StateMirrorFailed,
		LastError:  err.Error(),
	})
	ev := newEvent(events.MirrorFailed, originalID, derivedID, externalID)
	ev.Reason = err.Error()
	e.emit(ctx, ev)
}

func (e *Engine) skipLocked(ctx context.Context, op string, original string, derived core.Transaction, res *Result) {
	res.Skipped++
	e.logger.InfoContext(ctx, "Derived transaction is cleared or reconciled, leaving it alone",
		log.FieldOperation, op,
		log.FieldOriginalID, original,
		log.FieldDerivedID, derived.ID,
		"cleared", derived.Cleared,
		"reconciled", derived.Reconciled)
	e.record(ctx, storage.Correlation{OriginalID: original, DerivedID: derived.ID, State: storage.StateLocked})
	ev := newEvent(events.DerivedSkipped, original, derived.ID, "")
	ev.Reason = "locked"
	e.emit(ctx, ev)
}

// propagateEdit recomputes the touched fields on the derived transaction and the
// mirror. Each side is compared on its own terms: the derived row holds the rounded
// half, the mirror the full amount, so one can change while the other does not.
func (e *Engine) propagateEdit(ctx context.Context, fields touched, eff effective, original, derived core.Transaction, res *Result) error {
	if derived.Locked() {
		e.skipLocked(ctx, log.OpEdit, original.ID, derived, res)
		return nil
	}

	var patch ledger.Patch
	if fields.amount {
		if half := split.Half(eff.amount); half != derived.Amount {
			patch.Amount = &half
		}
	}
	if fields.date && !eff.date.IsEmpty() && !eff.date.Equal(derived.Date.Time) {
		d := eff.date
		patch.Date = &d
	}
	if fields.category && eff.categoryID != derived.CategoryID {
		c := eff.categoryID
		patch.CategoryID = &c
	}

	_, externalID := correlation.Parse(derived.ImportedDescription)
	if !patch.IsEmpty() {
		if err := e.ledger.UpdateTransaction(ctx, derived.ID, patch); err != nil {
			return fmt.Errorf("update derived transaction %s: %w", derived.ID, err)
		}
		res.Updated++

		e.logger.InfoContext(ctx, "Updated derived transaction",
			log.FieldOperation, log.OpEdit,
			log.FieldOriginalID, original.ID,
			log.FieldDerivedID, derived.ID,
			"fields", len(patch.Fields()))
		e.record(ctx, storage.Correlation{OriginalID: original.ID, DerivedID: derived.ID, State: storage.StateUpdated})
		ev := newEvent(events.DerivedUpdated, original.ID, derived.ID, externalID)
		ev.AmountCents = patch.Apply(derived).Amount.Cents
		e.emit(ctx, ev)
	}

	if externalID != "" && e.Mirroring() {
		e.updateMirror(ctx, original.ID, derived.ID, externalID, fields, eff, res)
	}
	return nil
}

// updateMirror rewrites the mirrored expense when a touched field differs from what
// it holds, keeping its current values for everything else.
func (e *Engine) updateMirror(ctx context.Context, originalID, derivedID, externalID string, fields touched, eff effective, res *Result) {
	existing, err := e.splitter.Expense(ctx, externalID)
	if err != nil {
		e.mirrorFailed(ctx, originalID, derivedID, externalID, err, res)
		return
	}
	if existing == nil {
		e.logger.WarnContext(ctx, "Mirrored expense not found, skipping update",
			log.FieldOriginalID, originalID,
			log.FieldExternalID, externalID)
		return
	}

	date, err := core.ParseDate(existing.ExpenseDate)
	if err != nil {
		date = e.today()
	}
	title := existing.Title
	if title == "" {
		title = unknownPayee
	}
	draft := core.ExpenseDraft{
		Title:      title,
		Amount:     existing.Amount,
		Date:       date,
		CategoryID: existing.CategoryID,
		SplitMode:  core.SplitEvenly,
		Notes:      mirrorUpdatedNotes,
	}

	changed := false
	if fields.amount {
		if amount := eff.amount.Abs().Cents; amount != existing.Amount {
			draft.Amount = amount
			changed = true
		}
	}
	if fields.date && !eff.date.IsEmpty() && !eff.date.Equal(date.Time) {
		draft.Date = eff.date
		changed = true
	}
	// a cleared category keeps the Splitter's current one
	if fields.category && eff.categoryID != "" {
		id, err := e.externalCategory(ctx, eff.categoryID)
		if err != nil {
			e.mirrorFailed(ctx, originalID, derivedID, externalID, err, res)
			return
		}
		if id != existing.CategoryID {
			draft.CategoryID = id
			changed = true
		}
	}
	if !changed {
		return
	}

	if err := e.splitter.UpdateExpense(ctx, externalID, draft); err != nil {
		e.mirrorFailed(ctx, originalID, derivedID, externalID, err, res)
		return
	}
	e.logger.InfoContext(ctx, "Updated mirrored expense",
		log.FieldOriginalID, originalID,
		log.FieldExternalID, externalID,
		log.FieldAmountCents, draft.Amount)
	ev := newEvent(events.MirrorUpdated, originalID, derivedID, externalID)
	ev.AmountCents = draft.Amount
	e.emit(ctx, ev)
}

// propagateDelete tombstones the derived transaction of a deleted original and
// deletes its mirror.
func (e *Engine) propagateDelete(ctx context.Context, originalID string, res *Result) error {
	derived, err := e.store.FindDerivedFor(ctx, originalID)
	if err != nil {
		return err
	}
	if derived == nil {
		return nil
	}
	if derived.Locked() {
		e.skipLocked(ctx, log.OpDelete, originalID, *derived, res)
		return nil
	}

	tombstone := true
	if err := e.ledger.UpdateTransaction(ctx, derived.ID, ledger.Patch{Tombstone: &tombstone}); err != nil {
		return fmt.Errorf("delete derived transaction %s: %w", derived.ID, err)
	}
	res.Deleted++

	_, externalID := correlation.Parse(derived.ImportedDescription)
	e.logger.InfoContext(ctx, "Deleted derived transaction",
		log.FieldOperation, log.OpDelete,
		log.FieldOriginalID, originalID,
		log.FieldDerivedID, derived.ID)
	e.record(ctx, storage.Correlation{OriginalID: originalID, DerivedID: derived.ID, State: storage.StateDeleted})
	e.emit(ctx, newEvent(events.DerivedDeleted, originalID, derived.ID, externalID))

	if externalID == "" || !e.Mirroring() {
		return nil
	}
	if err := e.splitter.DeleteExpense(ctx, externalID); err != nil {
		e.mirrorFailed(ctx, originalID, derived.ID, externalID, err, res)
		return nil
	}
	e.logger.InfoContext(ctx, "Deleted mirrored expense",
		log.FieldOriginalID, originalID,
		log.FieldExternalID, externalID)
	e.emit(ctx, newEvent(events.MirrorDeleted, originalID, derived.ID, externalID))
	return nil
}
