// Command reportctl runs imports and reports against the reporting database
// without the HTTP server.
//
// Commands:
//
//	fetch-month -month YYYY-MM                 Import one revenue month from SoftPro
//	backfill -from YYYY-MM -to YYYY-MM         Import a range of revenue months
//	import-open-orders -file X.xlsx [-month]   Import an open-orders workbook
//	report -name NAME [-month M -year Y]       Print a report as JSON
//	discrepancies [-month M -year Y] [-xlsx F] Run the data-quality battery
//
// Every command accepts -config (default config.toml). Database and SoftPro
// settings come from config and the environment, as for the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/config"
	"github.com/titledesk/production-reports/discrepancy"
	"github.com/titledesk/production-reports/ingest"
	"github.com/titledesk/production-reports/logging"
	"github.com/titledesk/production-reports/report"
	"github.com/titledesk/production-reports/store/sqlstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "fetch-month":
		err = fetchMonth(ctx, args)
	case "backfill":
		err = backfill(ctx, args)
	case "import-open-orders":
		err = importOpenOrders(ctx, args)
	case "report":
		err = runReport(ctx, args)
	case "discrepancies":
		err = runDiscrepancies(ctx, args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("reportctl - production reporting CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reportctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  fetch-month         Import one revenue month from SoftPro")
	fmt.Println("  backfill            Import a range of revenue months")
	fmt.Println("  import-open-orders  Import an open-orders workbook")
	fmt.Println("  report              Print a report as JSON")
	fmt.Println("  discrepancies       Run the data-quality checks")
	fmt.Println()
	fmt.Println("Reports:")
	for _, n := range report.Names() {
		fmt.Printf("  %s\n", n)
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

type env struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *sqlstore.Store
	imports *ingest.Service
}

func open(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log)

	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var fetcher ingest.Fetcher
	if cfg.SoftPro.BaseURL != "" {
		fetcher = ingest.NewSoftProClient(cfg.SoftPro.BaseURL, cfg.SoftPro.Timeout.Duration)
	}
	imports := ingest.NewService(fetcher, store, log)
	imports.BackfillPause = cfg.SoftPro.BackfillPause.Duration

	return &env{cfg: cfg, log: log, store: store, imports: imports}, nil
}

func (e *env) Close() { e.store.Close() }

func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, fs.String("config", "config.toml", "Path to config.toml")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// monthYear defaults to the current month and year.
func monthYear(month, year int) (int, int) {
	now := time.Now()
	if month == 0 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}
	return month, year
}

// =============================================================================
// IMPORTS
// =============================================================================

func fetchMonth(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("fetch-month")
	month := fs.String("month", "", "Month to import (YYYY-MM)")
	fs.Parse(args)

	ym, err := calendar.ParseYearMonth(*month)
	if err != nil {
		return err
	}
	e, err := open(*cfgPath)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.imports.ImportRevenueMonth(ctx, ym, ingest.TriggerCLI)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func backfill(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("backfill")
	from := fs.String("from", "", "First month (YYYY-MM)")
	to := fs.String("to", "", "Last month (YYYY-MM), default current month")
	fs.Parse(args)

	start, err := calendar.ParseYearMonth(*from)
	if err != nil {
		return err
	}
	end := calendar.DayOf(time.Now()).YearMonth()
	if *to != "" {
		if end, err = calendar.ParseYearMonth(*to); err != nil {
			return err
		}
	}

	e, err := open(*cfgPath)
	if err != nil {
		return err
	}
	defer e.Close()

	results, err := e.imports.Backfill(ctx, start, end, ingest.TriggerBackfill)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if err := printJSON(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d months failed", failed, len(results))
	}
	return nil
}

func importOpenOrders(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("import-open-orders")
	file := fs.String("file", "", "Open-orders workbook (.xlsx)")
	month := fs.String("month", "", "Open month (YYYY-MM), default from file name or data")
	fs.Parse(args)

	if *file == "" {
		return errors.New("-file is required")
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	e, err := open(*cfgPath)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.imports.ImportOpenOrderWorkbook(ctx, f, *file, *month, ingest.TriggerCLI)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// =============================================================================
// REPORTS
// =============================================================================

func runReport(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("report")
	name := fs.String("name", "", "Report name")
	month := fs.Int("month", 0, "Month 1-12, default current")
	year := fs.Int("year", 0, "Year, default current")
	fs.Parse(args)

	n, err := report.ParseName(*name)
	if err != nil {
		return err
	}
	e, err := open(*cfgPath)
	if err != nil {
		return err
	}
	defer e.Close()

	opts, err := e.cfg.ReportOptions()
	if err != nil {
		return err
	}
	m, y := monthYear(*month, *year)
	res, err := report.NewBuilder(e.store, opts, e.log).Build(ctx, n, m, y)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runDiscrepancies(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("discrepancies")
	month := fs.Int("month", 0, "Month 1-12, default current")
	year := fs.Int("year", 0, "Year, default current")
	xlsx := fs.String("xlsx", "", "Also write the flagged rows to this workbook")
	fs.Parse(args)

	e, err := open(*cfgPath)
	if err != nil {
		return err
	}
	defer e.Close()

	m, y := monthYear(*month, *year)
	rep, err := discrepancy.NewRunner(e.store, e.log).Run(ctx, m, y)
	if err != nil {
		return err
	}

	if *xlsx != "" {
		out, err := os.Create(*xlsx)
		if err != nil {
			return err
		}
		if err := discrepancy.WriteWorkbook(out, rep); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
	return printJSON(rep)
}
