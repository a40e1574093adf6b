package reconcile

import (
	"context"
	"fmt"

	"splitsync/internal/core"
	"splitsync/internal/correlation"
	"splitsync/internal/events"
	"splitsync/internal/log"
	"splitsync/internal/split"
	"splitsync/internal/storage"
)

// ProcessExternal polls the Splitter once and books my share of every new expense
// someone else paid for. Each expense is marked processed before anything else
// happens, so it is considered at most once even when booking fails.
func (e *Engine) ProcessExternal(ctx context.Context) (Result, error) {
	var res Result
	if e.splitter == nil {
		return res, nil
	}

	expenses, err := e.splitter.ListExpenses(ctx, e.cfg.HistoryLimit)
	if err != nil {
		return res, fmt.Errorf("list splitter expenses: %w", err)
	}

	for _, x := range expenses {
		if x.ID == "" || !e.markSeen(x.ID) {
			continue
		}
		res.Changes++

		outcome, share := e.assess(x)
		e.persistProcessed(ctx, x.ID, outcome)
		if outcome != storage.OutcomeImported {
			res.Skipped++
			e.logger.DebugContext(ctx, "Skipping splitter expense",
				log.FieldOperation, log.OpImport,
				log.FieldExternalID, x.ID,
				log.FieldReason, outcome)
			ev := newEvent(events.ExternalSkipped, "", "", x.ID)
			ev.Reason = outcome
			e.emit(ctx, ev)
			continue
		}

		if err := e.importExpense(ctx, x, share); err != nil {
			res.Failed++
			e.failProcessed(ctx, x.ID)
			e.logger.ErrorContext(ctx, "Failed to import splitter expense",
				log.FieldExternalID, x.ID,
				log.FieldError, err)
			continue
		}
		res.Imported++
	}

	if res.Mutated() {
		if err := e.ledger.Commit(ctx); err != nil {
			return res, fmt.Errorf("commit ledger: %w", err)
		}
	}
	return res, nil
}

// assess decides whether x is booked and computes my share.
func (e *Engine) assess(x core.Expense) (string, int64) {
	me := e.splitter.PayerID()
	if x.PaidBy.ID == me {
		return storage.OutcomeOwnExpense, 0
	}
	if x.IsReimbursement {
		return storage.OutcomeReimbursement, 0
	}
	share := split.MyShare(x, me)
	if share <= 0 {
		return storage.OutcomeNoShare, 0
	}
	return storage.OutcomeImported, share
}

func (e *Engine) importExpense(ctx context.Context, x core.Expense, share int64) error {
	payee, account, err := e.destination(ctx)
	if err != nil {
		return err
	}

	var categoryID string
	if e.mapper != nil {
		cat, err := e.mapper.ToLocal(ctx, x.CategoryID)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to map splitter category, booking uncategorized",
				log.FieldExternalID, x.ID,
				log.FieldError, err)
		} else if cat != nil {
			categoryID = cat.ID
		}
	}

	date, err := core.ParseDate(x.ExpenseDate)
	if err != nil {
		e.logger.WarnContext(ctx, "Unparseable expense date, using today",
			log.FieldExternalID, x.ID,
			log.FieldDate, x.ExpenseDate)
		date = e.today()
	}

	payer := e.payerName(ctx, x.PaidBy)
	t := core.Transaction{
		AccountID:  account.ID,
		PayeeID:    payee.ID,
		Amount:     core.NewMoney(-share),
		Date:       date,
		CategoryID: categoryID,
		Notes:      fmt.Sprintf("%s (paid by %s) %s", x.Title, payer, e.cfg.ExternalTag),
	}
	id, err := e.ledger.CreateTransaction(ctx, t)
	if err != nil {
		return fmt.Errorf("create transaction for splitter expense %s: %w", x.ID, err)
	}

	e.logger.InfoContext(ctx, "Imported splitter expense",
		log.FieldOperation, log.OpImport,
		log.FieldExternalID, x.ID,
		log.FieldDerivedID, id,
		log.FieldAmountCents, t.Amount.Cents,
		"amount", t.Amount.Display(e.cfg.Currency),
		"paid_by", payer)
	ev := newEvent(events.ExternalImported, "", id, x.ID)
	ev.AmountCents = t.Amount.Cents
	e.emit(ctx, ev)
	return nil
}

func (e *Engine) payerName(ctx context.Context, p core.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return e.splitter.ParticipantName(ctx, p.ID)
}

// Sweep finishes interrupted mirrors: every live derived transaction whose token
// has no external id gets its Splitter expense created and attached. Locked derived
// transactions and those whose original is gone are left alone.
func (e *Engine) Sweep(ctx context.Context) (Result, error) {
	var res Result
	if !e.Mirroring() {
		e.logger.DebugContext(ctx, "Mirroring disabled, nothing to sweep")
		return res, nil
	}

	rows, err := e.store.ListCorrelated(ctx)
	if err != nil {
		return res, err
	}

	for i := range rows {
		derived := rows[i]
		originalID, externalID := correlation.Parse(derived.ImportedDescription)
		if originalID == "" || externalID != "" {
			continue
		}
		res.Changes++

		if derived.Locked() {
			e.skipLocked(ctx, log.OpSweep, originalID, derived, &res)
			continue
		}
		original, err := e.ledger.Transaction(ctx, originalID)
		if err != nil {
			res.Failed++
			e.logger.ErrorContext(ctx, "Failed to load original for sweep",
				log.FieldOriginalID, originalID,
				log.FieldError, err)
			continue
		}
		if original == nil || original.Tombstone {
			res.Skipped++
			e.logger.WarnContext(ctx, "Original of unmirrored derived transaction is gone",
				log.FieldOriginalID, originalID,
				log.FieldDerivedID, derived.ID)
			continue
		}

		eff := effective{amount: original.Amount, date: original.Date, categoryID: original.CategoryID}
		e.mirror(ctx, original.ID, &derived, e.payeeName(ctx, original.PayeeID), eff, &res)
	}

	if res.Mutated() {
		if err := e.ledger.Commit(ctx); err != nil {
			return res, fmt.Errorf("commit ledger: %w", err)
		}
	}
	e.logger.InfoContext(ctx, "Sweep finished",
		log.FieldOperation, log.OpSweep,
		"candidates", res.Changes,
		"mirrored", res.Mirrored,
		"failures", res.MirrorFailures)
	return res, nil
}
