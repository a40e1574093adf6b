package cli

import (
	"context"
	"errors"
	"fmt"

	"splitsync/internal/category"
	"splitsync/internal/classifier"
	"splitsync/internal/config"
	"splitsync/internal/events"
	"splitsync/internal/events/amqp"
	"splitsync/internal/events/sheets"
	"splitsync/internal/ledger"
	"splitsync/internal/ledger/actualhttp"
	ledgermem "splitsync/internal/ledger/memory"
	"splitsync/internal/log"
	"splitsync/internal/reconcile"
	"splitsync/internal/scheduler"
	"splitsync/internal/splitter"
	"splitsync/internal/storage"
)

// recentEvents is how many events the status endpoint can show.
const recentEvents = 200

// App holds the reconciler's collaborators.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Repo     *storage.SQLiteRepository
	Ledger   ledger.Ledger
	Splitter splitter.Splitter // nil when mirroring is disabled
	Mapper   *category.Mapper  // nil when mirroring is disabled
	Recorder *events.Recorder
	Events   *events.Multi
	Engine   *reconcile.Engine

	closers []func() error
}

// Build wires everything cfg describes. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	repo, err := InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return nil, err
	}
	app.Repo = repo
	app.closers = append(app.closers, repo.Close)

	app.Ledger = NewLedger(cfg, logger)
	if cfg.MirroringEnabled() {
		app.Splitter = NewSplitter(cfg, logger)
		app.Mapper = category.NewMapper(app.Splitter, app.Ledger, category.LoadMapping(cfg.CategoryMappingFile, logger), logger)
		logger.Info("Splitter mirroring enabled",
			"group_id", cfg.SpliitGroupID,
			"mapping_entries", app.Mapper.Mapping().Len())
	} else {
		logger.Info("Splitter mirroring disabled - SPLIIT_GROUP_ID or SPLIIT_PAYER_ID not set")
	}

	app.Recorder = events.NewRecorder(recentEvents)
	sinks := []events.Sink{app.Recorder}

	if cfg.AMQPURL != "" {
		pub, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("events broker: %w", err)
		}
		app.closers = append(app.closers, pub.Close)
		sinks = append(sinks, pub)
		logger.Info("Publishing events to AMQP", "exchange", cfg.AMQPExchange)
	}

	if cfg.GoogleSpreadsheetID != "" {
		audit, err := sheets.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleAuditSheetName, sheets.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("audit sheet: %w", err)
		}
		sinks = append(sinks, audit)
		logger.Info("Appending events to audit sheet", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}
	app.Events = events.NewMulti(logger, sinks...)

	app.Engine = reconcile.New(EngineConfig(cfg), reconcile.Deps{
		Ledger:     app.Ledger,
		Splitter:   app.Splitter,
		Classifier: classifier.New(classifier.NewTagTracker(), cfg.TriggerTag, logger),
		Mapper:     app.Mapper,
		Journal:    repo,
		Events:     app.Events,
		Logger:     logger,
	})
	return app, nil
}

// Close releases every resource Build opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// EngineConfig maps the process configuration onto the engine's.
func EngineConfig(cfg *config.Config) reconcile.Config {
	return reconcile.Config{
		SplitterPayee:   cfg.SplitterPayee,
		SplitterAccount: cfg.SplitterAccount,
		AutoTag:         cfg.AutoTag,
		ExternalTag:     cfg.ExternalTag,
		HistoryWindow:   cfg.HistoryWindow,
		HistoryLimit:    cfg.SpliitHistoryLimit,
		Currency:        cfg.Currency,
	}
}

// NewLedger returns the configured ledger backend. The memory backend starts empty
// apart from the Splitter payee and account, so it is only useful for demos.
func NewLedger(cfg *config.Config, logger *log.Logger) ledger.Ledger {
	if cfg.LedgerBackend == config.BackendMemory {
		l := ledgermem.New()
		l.AddPayee(cfg.SplitterPayee)
		l.AddAccount(cfg.SplitterAccount)
		logger.Warn("Using in-memory ledger, nothing is persisted")
		return l
	}
	client := actualhttp.NewClient(actualhttp.Config{
		BaseURL:  cfg.ActualBaseURL,
		Budget:   cfg.ActualBudget,
		APIKey:   cfg.ActualAPIKey,
		Password: cfg.ActualPassword,
	}, logger)
	// Correlation lookups look back twice as far as the change feed so derived rows
	// of originals near the edge of the window are still found.
	return actualhttp.NewLedger(client, cfg.HistoryWindow, 2*cfg.HistoryWindow, logger)
}

// NewSplitter returns a Spliit client for the configured group.
func NewSplitter(cfg *config.Config, logger *log.Logger) *splitter.Client {
	return splitter.NewClient(cfg.SpliitBaseURL, cfg.SpliitGroupID, cfg.SpliitPayerID, nil, logger)
}

// Loops returns the polling loops: the ledger every ActualPollInterval and, when
// mirroring is on, the Splitter every SpliitPollInterval.
func (a *App) Loops() []scheduler.Loop {
	loops := []scheduler.Loop{{
		Name:     "ledger",
		Interval: a.Config.ActualPollInterval,
		Run: func(ctx context.Context) error {
			_, err := a.Engine.SyncLedger(ctx)
			return err
		},
	}}
	if a.Engine.Mirroring() {
		loops = append(loops, scheduler.Loop{
			Name:     "splitter",
			Interval: a.Config.SpliitPollInterval,
			Run: func(ctx context.Context) error {
				_, err := a.Engine.ProcessExternal(ctx)
				return err
			},
		})
	}
	return loops
}

