package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldLoop        = "loop"
	FieldOriginalID  = "original_id"
	FieldDerivedID   = "derived_id"
	FieldExternalID  = "external_id"
	FieldAmountCents = "amount_cents"
	FieldDate        = "date"
	FieldCategory    = "category"
	FieldPayee       = "payee"
	FieldReason      = "reason"
	FieldCount       = "count"
	FieldDuration    = "duration_ms"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentEngine     = "engine"
	ComponentClassifier = "classifier"
	ComponentCategory   = "category"
	ComponentScheduler  = "scheduler"
	ComponentLedger     = "ledger"
	ComponentSplitter   = "splitter"
	ComponentStorage    = "storage"
	ComponentEvents     = "events"
	ComponentHTTP       = "http"
	ComponentCLI        = "cli"
)

// Operations defines standard operation names
const (
	OpTrigger  = "trigger"
	OpEdit     = "edit"
	OpDelete   = "delete"
	OpMirror   = "mirror"
	OpImport   = "import"
	OpSweep    = "sweep"
	OpSeed     = "seed"
	OpCycle    = "cycle"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCorrelation adds the ids that tie an original to its derived rows.
// Empty ids are left out.
func (f LogFields) WithCorrelation(originalID, derivedID, externalID string) LogFields {
	if originalID != "" {
		f[FieldOriginalID] = originalID
	}
	if derivedID != "" {
		f[FieldDerivedID] = derivedID
	}
	if externalID != "" {
		f[FieldExternalID] = externalID
	}
	return f
}

// WithAmount adds the amount in minor units
func (f LogFields) WithAmount(cents int64) LogFields {
	f[FieldAmountCents] = cents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
