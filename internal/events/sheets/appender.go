// Package sheets appends reconciliation events to a Google Sheets audit log.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"splitsync/internal/events"
	"splitsync/internal/log"
)

// DefaultSheetName is the tab events go to when none is configured.
const DefaultSheetName = "Audit"

// Credentials locates a service account key. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

// Appender writes one row per event:
// timestamp, type, original id, derived id, external id, amount, reason, event id.
type Appender struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger
}

var _ events.Sink = (*Appender)(nil)

// New creates an Appender authenticated with a service account.
func New(ctx context.Context, spreadsheetID, sheet string, creds Credentials, logger *log.Logger) (*Appender, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheet, logger), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string, logger *log.Logger) *Appender {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Appender{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        logger.WithComponent(log.ComponentEvents),
	}
}

func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(creds.JSON) != "":
		credentialsJSON = []byte(creds.JSON)
	case strings.TrimSpace(creds.File) != "":
		data, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClient()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Row returns the cells written for e.
func Row(e events.Event) []any {
	amount := ""
	if e.AmountCents != 0 {
		amount = fmt.Sprintf("%.2f", float64(e.AmountCents)/100.0)
	}
	return []any{
		e.Timestamp.UTC().Format(time.RFC3339),
		string(e.Type),
		e.OriginalID,
		e.DerivedID,
		e.ExternalID,
		amount,
		e.Reason,
		e.ID,
	}
}

func (a *Appender) Publish(ctx context.Context, e events.Event) error {
	if a.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", a.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{Row(e)}}

	resp, err := a.svc.Spreadsheets.Values.Append(a.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append event to %s: %w", a.sheet, err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	a.logger.DebugContext(ctx, "Appended audit row",
		"event_type", string(e.Type),
		"range", updated)
	return nil
}
