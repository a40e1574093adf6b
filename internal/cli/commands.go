package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"splitsync/internal/category"
	"splitsync/internal/config"
	"splitsync/internal/ledger"
	"splitsync/internal/log"
)

// Env is what every admin command runs against.
type Env struct {
	Config *config.Config
	Logger *log.Logger
	Out    io.Writer
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// Commands returns the admin commands.
func Commands(env *Env) []subcommands.Command {
	return []subcommands.Command{
		&checkMappingCmd{env: env},
		&sweepCmd{env: env},
		&processedCmd{env: env},
		&correlationsCmd{env: env},
	}
}

type checkMappingCmd struct {
	env *Env
}

func (*checkMappingCmd) Name() string { return "check-mapping" }
func (*checkMappingCmd) Synopsis() string {
	return "verify every category mapping entry resolves on both sides"
}
func (*checkMappingCmd) Usage() string {
	return `splitsync-admin check-mapping

  Loads SPLIIT_CATEGORY_MAPPING_FILE and checks that each Splitter category
  exists in the group and each ledger category exists in the budget.
`
}
func (*checkMappingCmd) SetFlags(*flag.FlagSet) {}

func (c *checkMappingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.env.Config
	if !cfg.MirroringEnabled() {
		fmt.Fprintln(os.Stderr, "mirroring is disabled: set SPLIIT_GROUP_ID and SPLIIT_PAYER_ID")
		return subcommands.ExitUsageError
	}
	l := NewLedger(cfg, c.env.Logger)
	mapping := category.LoadMapping(cfg.CategoryMappingFile, c.env.Logger)
	if mapping.Len() == 0 {
		fmt.Fprintf(os.Stderr, "no usable entries in %s\n", cfg.CategoryMappingFile)
		return subcommands.ExitFailure
	}
	mapper := category.NewMapper(NewSplitter(cfg, c.env.Logger), l, mapping, c.env.Logger)

	broken, err := CheckMapping(ctx, c.env.out(), mapper, l)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if broken > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// CheckMapping prints one line per mapping entry and returns how many do not resolve.
func CheckMapping(ctx context.Context, w io.Writer, mapper *category.Mapper, local ledger.Directory) (int, error) {
	entries := mapper.Mapping().Entries()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SPLITTER\tLEDGER\tSTATUS")

	broken := 0
	for _, e := range entries {
		id, err := mapper.IDByName(ctx, e.External)
		if err != nil {
			return broken, err
		}
		cat, err := local.CategoryByName(ctx, e.Local)
		if err != nil {
			return broken, fmt.Errorf("lookup ledger category %q: %w", e.Local, err)
		}

		status := "ok"
		switch {
		case id == 0 && cat == nil:
			status = "both missing"
		case id == 0:
			status = "splitter category missing"
		case cat == nil:
			status = "ledger category missing"
		}
		if status != "ok" {
			broken++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.External, e.Local, status)
	}
	if err := tw.Flush(); err != nil {
		return broken, err
	}
	fmt.Fprintf(w, "%d entries, %d broken\n", len(entries), broken)
	return broken, nil
}

type sweepCmd struct {
	env *Env
}

func (*sweepCmd) Name() string     { return "sweep" }
func (*sweepCmd) Synopsis() string { return "mirror derived transactions that never reached the Splitter" }
func (*sweepCmd) Usage() string {
	return `splitsync-admin sweep

  Finds derived transactions whose correlation token has no Splitter expense
  id yet and creates the missing expenses.

  Run it only while splitsync is stopped: a sweep racing a running trigger
  can mirror the same transaction twice. The daemon already sweeps on
  startup when SWEEP_ON_STARTUP is set.
`
}
func (*sweepCmd) SetFlags(*flag.FlagSet) {}

func (c *sweepCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.env.Config.MirroringEnabled() {
		fmt.Fprintln(os.Stderr, "mirroring is disabled: set SPLIIT_GROUP_ID and SPLIIT_PAYER_ID")
		return subcommands.ExitUsageError
	}
	app, err := Build(ctx, c.env.Config, c.env.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	res, err := app.Engine.Sweep(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(c.env.out(), "%d candidates, %d mirrored, %d failed, %d skipped\n",
		res.Changes, res.Mirrored, res.MirrorFailures+res.Failed, res.Skipped)
	if res.MirrorFailures+res.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type processedCmd struct {
	env   *Env
	limit int
}

func (*processedCmd) Name() string     { return "processed" }
func (*processedCmd) Synopsis() string { return "list Splitter expenses already considered" }
func (*processedCmd) Usage() string {
	return `splitsync-admin processed [-n <limit>]

  Lists the most recently processed Splitter expenses with their outcome.
`
}

func (p *processedCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.limit, "n", 20, "Number of expenses to show, 0 for all.")
}

func (p *processedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	repo, err := InitSQLite(p.env.Logger, p.env.Config.SQLiteDBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer repo.Close()

	rows, err := repo.ListProcessed(ctx, p.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	total, err := repo.CountProcessed(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	w := p.env.out()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPENSE\tOUTCOME\tPROCESSED AT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ExpenseID, r.Outcome, r.ProcessedAt.Format(time.RFC3339))
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d shown\n", len(rows), total)
	return subcommands.ExitSuccess
}

type correlationsCmd struct {
	env   *Env
	state string
}

func (*correlationsCmd) Name() string     { return "correlations" }
func (*correlationsCmd) Synopsis() string { return "list the correlation journal" }
func (*correlationsCmd) Usage() string {
	return `splitsync-admin correlations [-state <state>]

  Lists journaled correlations between original transactions, derived
  transactions and Splitter expenses, most recent first.
`
}

func (c *correlationsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.state, "state", "", "Only show rows in this state (derived, mirrored, mirror_failed, updated, locked, deleted).")
}

func (c *correlationsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	repo, err := InitSQLite(c.env.Logger, c.env.Config.SQLiteDBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer repo.Close()

	rows, err := repo.ListCorrelations(ctx, c.state)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	w := c.env.out()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORIGINAL\tDERIVED\tEXTERNAL\tSTATE\tUPDATED\tERROR")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.OriginalID, dash(r.DerivedID), dash(r.ExternalID), r.State,
			r.UpdatedAt.Format(time.RFC3339), dash(r.LastError))
	}
	tw.Flush()
	fmt.Fprintf(w, "%d rows\n", len(rows))
	return subcommands.ExitSuccess
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
