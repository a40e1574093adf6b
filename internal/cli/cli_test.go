package cli

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"

	"splitsync/internal/category"
	"splitsync/internal/config"
	"splitsync/internal/core"
	ledgermem "splitsync/internal/ledger/memory"
	"splitsync/internal/log"
	splittermem "splitsync/internal/splitter/memory"
	"splitsync/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LedgerBackend:      config.BackendMemory,
		SplitterPayee:      "Spliit",
		SplitterAccount:    "Spliit balance",
		TriggerTag:         "#shared",
		AutoTag:            "#auto",
		ExternalTag:        "#spliit",
		ActualPollInterval: 5 * time.Second,
		SpliitPollInterval: 30 * time.Second,
		HistoryWindow:      30 * 24 * time.Hour,
		SpliitHistoryLimit: 50,
		SpliitBaseURL:      "https://spliit.app",
		SQLiteDBPath:       filepath.Join(t.TempDir(), "splitsync.db"),
		Currency:           "EUR",
	}
}

func TestCheckMapping(t *testing.T) {
	ctx := context.Background()
	group := splittermem.New("me", []core.Participant{{ID: "me", Name: "Me"}}, []core.ExternalCategory{
		{ID: 0, Grouping: "Uncategorized", Name: "General"},
		{ID: 3, Grouping: "Food and Drink", Name: "Groceries"},
		{ID: 5, Grouping: "Transportation", Name: "Taxi"},
	})
	l := ledgermem.New()
	l.AddCategory("Food")

	mapping := category.NewMapping(
		category.Entry{External: "Food and Drink/Groceries", Local: "Food"},
		category.Entry{External: "Transportation/Taxi", Local: "Travel"},
		category.Entry{External: "Nope", Local: "Food"},
		category.Entry{External: "Nothing", Local: "Nowhere"},
	)
	mapper := category.NewMapper(group, l, mapping, log.Discard())

	var buf bytes.Buffer
	broken, err := CheckMapping(ctx, &buf, mapper, l)
	if err != nil {
		t.Fatalf("CheckMapping() error = %v", err)
	}
	if broken != 3 {
		t.Errorf("CheckMapping() broken = %d, want 3", broken)
	}

	out := buf.String()
	for _, want := range []string{
		"ledger category missing",
		"splitter category missing",
		"both missing",
		"4 entries, 3 broken",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProcessedCommand(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, log.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	if err := repo.MarkProcessed(ctx, "exp-1", storage.OutcomeImported); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkProcessed(ctx, "exp-2", storage.OutcomeOwnExpense); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	var buf bytes.Buffer
	cmd := &processedCmd{env: &Env{Config: cfg, Logger: log.Discard(), Out: &buf}, limit: 20}
	if got := cmd.Execute(ctx, flag.NewFlagSet("processed", flag.ContinueOnError)); got != subcommands.ExitSuccess {
		t.Fatalf("Execute() = %v, want success", got)
	}

	out := buf.String()
	for _, want := range []string{"exp-1", storage.OutcomeImported, "exp-2", storage.OutcomeOwnExpense, "2 of 2 shown"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCorrelationsCommandFiltersByState(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, log.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	rows := []storage.Correlation{
		{OriginalID: "orig-1", DerivedID: "der-1", ExternalID: "ext-1", State: storage.StateMirrored},
		{OriginalID: "orig-2", DerivedID: "der-2", State: storage.StateMirrorFailed, LastError: "boom"},
	}
	for _, c := range rows {
		if err := repo.RecordCorrelation(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	repo.Close()

	var buf bytes.Buffer
	cmd := &correlationsCmd{env: &Env{Config: cfg, Logger: log.Discard(), Out: &buf}, state: storage.StateMirrorFailed}
	if got := cmd.Execute(ctx, flag.NewFlagSet("correlations", flag.ContinueOnError)); got != subcommands.ExitSuccess {
		t.Fatalf("Execute() = %v, want success", got)
	}

	out := buf.String()
	if !strings.Contains(out, "orig-2") || !strings.Contains(out, "boom") {
		t.Errorf("output missing the failed row:\n%s", out)
	}
	if strings.Contains(out, "orig-1") {
		t.Errorf("output contains a row in another state:\n%s", out)
	}
	if !strings.Contains(out, "1 rows") {
		t.Errorf("output missing row count:\n%s", out)
	}
}

func TestBuildMemoryBackend(t *testing.T) {
	tests := []struct {
		name      string
		mirroring bool
		wantLoops []string
	}{
		{name: "ledger only", wantLoops: []string{"ledger"}},
		{name: "with mirroring", mirroring: true, wantLoops: []string{"ledger", "splitter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.mirroring {
				cfg.SpliitGroupID = "group-1"
				cfg.SpliitPayerID = "me"
			}

			app, err := Build(context.Background(), cfg, log.Discard())
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			defer app.Close()

			if got := app.Engine.Mirroring(); got != tt.mirroring {
				t.Errorf("Mirroring() = %v, want %v", got, tt.mirroring)
			}
			if app.Events.Len() != 1 {
				t.Errorf("event sinks = %d, want only the recorder", app.Events.Len())
			}

			loops := app.Loops()
			if len(loops) != len(tt.wantLoops) {
				t.Fatalf("Loops() = %d loops, want %d", len(loops), len(tt.wantLoops))
			}
			for i, name := range tt.wantLoops {
				if loops[i].Name != name {
					t.Errorf("loop %d = %q, want %q", i, loops[i].Name, name)
				}
			}
		})
	}
}

func TestMemoryLedgerHasDestination(t *testing.T) {
	cfg := testConfig(t)
	l := NewLedger(cfg, log.Discard())

	ctx := context.Background()
	payee, err := l.PayeeByName(ctx, cfg.SplitterPayee)
	if err != nil || payee == nil {
		t.Fatalf("PayeeByName() = %v, %v; want the splitter payee", payee, err)
	}
	account, err := l.AccountByName(ctx, cfg.SplitterAccount)
	if err != nil || account == nil {
		t.Fatalf("AccountByName() = %v, %v; want the splitter account", account, err)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SplitterPayee = "payee-1"
	cfg.SpliitHistoryLimit = 75

	got := EngineConfig(cfg)
	if got.SplitterPayee != "payee-1" || got.SplitterAccount != cfg.SplitterAccount {
		t.Errorf("EngineConfig() destination = %q/%q", got.SplitterPayee, got.SplitterAccount)
	}
	if got.HistoryLimit != 75 {
		t.Errorf("EngineConfig() HistoryLimit = %d, want 75", got.HistoryLimit)
	}
	if got.AutoTag != "#auto" || got.ExternalTag != "#spliit" {
		t.Errorf("EngineConfig() tags = %q/%q", got.AutoTag, got.ExternalTag)
	}
}

func TestSweepUsageWarnsAgainstRunningDaemon(t *testing.T) {
	usage := (&sweepCmd{}).Usage()
	if !strings.Contains(usage, "only while splitsync is stopped") {
		t.Errorf("sweep usage does not warn about the running daemon:\n%s", usage)
	}
}
