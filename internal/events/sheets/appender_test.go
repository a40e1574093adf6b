package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"splitsync/internal/events"
)

func TestRow(t *testing.T) {
	e := events.Event{
		ID:          "ev-1",
		Type:        events.DerivedCreated,
		OriginalID:  "o1",
		DerivedID:   "d1",
		AmountCents: 5000,
		Timestamp:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	row := Row(e)
	want := []any{"2024-01-15T10:00:00Z", "derived.created", "o1", "d1", "", "50.00", "", "ev-1"}
	if len(row) != len(want) {
		t.Fatalf("row has %d cells", len(row))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestPublishAppendsRow(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotQuery string
	var gotBody gsheet.ValueRange

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRange":"Audit!A2:H2","updatedRows":1}}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	a := NewWithService(svc, "sheet-1", "", nil)

	e := events.New(events.ExternalImported)
	e.ExternalID = "x1"
	if err := a.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(gotPath, "sheet-1") || !strings.HasSuffix(gotPath, ":append") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "valueInputOption=RAW") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(gotBody.Values) != 1 || gotBody.Values[0][1] != "external.imported" || gotBody.Values[0][4] != "x1" {
		t.Fatalf("unexpected body %+v", gotBody.Values)
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), "", "", Credentials{}, nil); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), "s", "", Credentials{}, nil); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
