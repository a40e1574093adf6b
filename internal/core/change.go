package core

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// EntityKind names the ledger table a change belongs to.
type EntityKind string

const (
	KindTransaction EntityKind = "transactions"
	KindPayee       EntityKind = "payees"
	KindAccount     EntityKind = "accounts"
	KindCategory    EntityKind = "categories"
)

// Ledger field names as they appear in change records.
const (
	FieldNotes               = "notes"
	FieldAmount              = "amount"
	FieldDate                = "date"
	FieldCategory            = "category"
	FieldPayee               = "payee"
	FieldAccount             = "acct"
	FieldImportedDescription = "imported_description"
	FieldCleared             = "cleared"
	FieldReconciled          = "reconciled"
	FieldTombstone           = "tombstone"
)

// ChangeRecord is one mutation observed on the ledger's change feed.
//
// Fields is sparse: it holds only the columns the mutation touched. A key mapped to
// nil is an explicit null, which is not the same thing as an absent key.
type ChangeRecord struct {
	Kind     EntityKind
	EntityID string
	Fields   map[string]any
	Deleted  bool
}

// Has reports whether the change touched field.
func (c ChangeRecord) Has(field string) bool {
	_, ok := c.Fields[field]
	return ok
}

// Value returns the raw value and whether the field is part of the change.
func (c ChangeRecord) Value(field string) (any, bool) {
	v, ok := c.Fields[field]
	return v, ok
}

// Text returns the field as a string. ok is false when the field is absent, null
// or not a string.
func (c ChangeRecord) Text(field string) (s string, ok bool) {
	v, present := c.Fields[field]
	if !present || v == nil {
		return "", false
	}
	s, ok = v.(string)
	return s, ok
}

// Int64 returns the field as an integer, accepting the numeric shapes produced by
// JSON decoding and by in-process producers.
func (c ChangeRecord) Int64(field string) (int64, bool) {
	v, present := c.Fields[field]
	if !present || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Bool returns the field as a boolean; the ledger stores flags as 0/1 integers.
func (c ChangeRecord) Bool(field string) (bool, bool) {
	v, present := c.Fields[field]
	if !present || v == nil {
		return false, false
	}
	if b, ok := v.(bool); ok {
		return b, true
	}
	if n, ok := c.Int64(field); ok {
		return n != 0, true
	}
	return false, false
}

// Date returns the field as a Date. Integer YYYYMMDD, string and time values are
// accepted.
func (c ChangeRecord) Date(field string) (Date, bool) {
	v, present := c.Fields[field]
	if !present || v == nil {
		return Date{}, false
	}
	switch d := v.(type) {
	case Date:
		return d, true
	case time.Time:
		return NewDate(d.Year(), int(d.Month()), d.Day()), true
	case string:
		parsed, err := ParseDate(d)
		return parsed, err == nil
	}
	if n, ok := c.Int64(field); ok {
		parsed, err := DateFromInt(int(n))
		return parsed, err == nil
	}
	return Date{}, false
}

// IsTombstone reports whether the change deletes the entity, either through the
// Deleted flag or a tombstone column set to true.
func (c ChangeRecord) IsTombstone() bool {
	if c.Deleted {
		return true
	}
	t, ok := c.Bool(FieldTombstone)
	return ok && t
}
