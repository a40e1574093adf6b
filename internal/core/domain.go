package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SplitEvenly       SplitMode = "EVENLY"
	SplitByShares     SplitMode = "BY_SHARES"
	SplitByPercentage SplitMode = "BY_PERCENTAGE"
	SplitByAmount     SplitMode = "BY_AMOUNT"
)

type (
	SplitMode string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a ledger row. Amount is signed: negative for expenses.
	Transaction struct {
		ID                  string
		AccountID           string
		Amount              Money
		Date                Date
		CategoryID          string
		PayeeID             string
		Notes               string
		ImportedDescription string // carries the correlation token on derived rows
		Cleared             bool
		Reconciled          bool
		Tombstone           bool
	}

	Payee struct {
		ID   string
		Name string
	}

	Account struct {
		ID   string
		Name string
	}

	Category struct {
		ID   string
		Name string
	}

	// Participant is a member of the Splitter group.
	Participant struct {
		ID   string
		Name string
	}

	// ExternalCategory is a Splitter category; ids are small integers, 0 is "General".
	ExternalCategory struct {
		ID       int
		Grouping string
		Name     string
	}

	// Share is one participant's entry in an expense's paid-for list. Shares is nil
	// when the Splitter omitted the value.
	Share struct {
		ParticipantID string
		Shares        *int64
	}

	// Expense is a Splitter expense. Amount is unsigned minor units.
	Expense struct {
		ID              string
		Title           string
		Amount          int64
		ExpenseDate     string
		PaidBy          Participant
		CategoryID      int
		SplitMode       SplitMode
		PaidFor         []Share
		IsReimbursement bool
		Notes           string
	}

	// ExpenseDraft is the payload for creating or updating a Splitter expense.
	ExpenseDraft struct {
		Title           string
		Amount          int64
		Date            Date
		CategoryID      int
		SplitMode       SplitMode
		IsReimbursement bool
		Notes           string
		// PaidFor lists the participants sharing the expense; empty means everyone.
		PaidFor []string
	}
)

var (
	// ErrValidation marks a missing required field or a failed lookup. Fatal to the
	// single operation only.
	ErrValidation = errors.New("validation error")
	// ErrExternalService marks a failed call to the Splitter.
	ErrExternalService = errors.New("external service error")
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
)

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current date at UTC midnight.
func Today() Date {
	y, m, d := time.Now().Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts "2006-01-02", RFC3339 timestamps (as sent by the Splitter) and
// the ledger's integer form "20060102".
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if len(s) == 8 && !strings.Contains(s, "-") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return DateFromInt(n)
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// DateFromInt converts the ledger's YYYYMMDD integer representation.
func DateFromInt(n int) (Date, error) {
	year, month, day := n/10000, (n/100)%100, n%100
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Date{}, fmt.Errorf("%w: %d", ErrInvalidDate, n)
	}
	d := NewDate(year, month, day)
	if d.Day() != day {
		return Date{}, fmt.Errorf("%w: %d", ErrInvalidDate, n)
	}
	return d, nil
}

// Int returns the YYYYMMDD form.
func (d Date) Int() int {
	return d.Year()*10000 + int(d.Month())*100 + d.Day()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// Validate checks the fields a derived transaction cannot be built without.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return Validationf("transaction has no id")
	}
	if t.Date.IsEmpty() {
		return Validationf("transaction %s has no date", t.ID)
	}
	return nil
}

// Locked reports whether the transaction is cleared or reconciled and must not be
// modified by the reconciler.
func (t Transaction) Locked() bool {
	return t.Cleared || t.Reconciled
}

// FullName returns the "<grouping>/<name>" form used in category mappings.
func (c ExternalCategory) FullName() string {
	grouping := c.Grouping
	if grouping == "" {
		grouping = "Uncategorized"
	}
	name := c.Name
	if name == "" {
		name = "General"
	}
	return grouping + "/" + name
}

// ParseSplitMode maps unknown or empty values to EVENLY.
func ParseSplitMode(s string) SplitMode {
	switch m := SplitMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case SplitEvenly, SplitByShares, SplitByPercentage, SplitByAmount:
		return m
	default:
		return SplitEvenly
	}
}
