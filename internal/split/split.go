// Package split computes a participant's share of a Splitter expense.
//
// All arithmetic is integer floor division on non-negative operands. Remainders are
// dropped, so the participants' shares may sum to less than the expense total.
package split

import "splitsync/internal/core"

// DefaultShares is the weight assumed for a BY_SHARES entry that carries no value.
const DefaultShares = 100

// MyShare returns participantID's share of e in minor units, or 0 when the
// participant is not part of the expense.
func MyShare(e core.Expense, participantID string) int64 {
	idx := -1
	for i, s := range e.PaidFor {
		if s.ParticipantID == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}
	mine := e.PaidFor[idx]

	switch e.SplitMode {
	case core.SplitByShares:
		var total int64
		for _, s := range e.PaidFor {
			total += sharesOr(s, DefaultShares)
		}
		if total == 0 {
			return 0
		}
		return e.Amount * sharesOr(mine, DefaultShares) / total
	case core.SplitByPercentage:
		// percentages are basis points: 3000 is 30%
		return e.Amount * sharesOr(mine, 0) / 10000
	case core.SplitByAmount:
		return sharesOr(mine, 0)
	default:
		return e.Amount / int64(len(e.PaidFor))
	}
}

// Half returns the derived "my share" amount for a ledger amount: half of it, sign
// flipped, so an expense of -100.00 yields a deposit of 50.00.
func Half(amount core.Money) core.Money {
	return amount.Half().Neg()
}

func sharesOr(s core.Share, def int64) int64 {
	if s.Shares == nil {
		return def
	}
	return *s.Shares
}
