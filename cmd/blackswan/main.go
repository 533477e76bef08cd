package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"blackswan/internal/bootstrap"
	"blackswan/internal/infrastructure/server"
	"blackswan/internal/pipeline"
	"blackswan/internal/report"
	"blackswan/pkg/cli"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

const usage = `usage: blackswan <command> [flags]

commands:
  simulate     run a Monte Carlo simulation and print the report
  indicators   print the MACD and Bollinger Band summary of the history
  serve        start the HTTP API
  runs         list stored runs, or show one with -id
  version      print the version
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command. An interrupt or SIGTERM cancels ctx so long
// simulations stop between paths.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "simulate":
		err = runSimulate(ctx, args[1:], stdout, stderr)
	case "indicators":
		err = runIndicators(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "runs":
		err = runRuns(ctx, args[1:], stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "blackswan version %s (built %s)\n", version, buildTime)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "blackswan %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// commonFlags are shared by the commands that read a price history
type commonFlags struct {
	fs          *flag.FlagSet
	configPath  string
	csvPath     string
	symbol      string
	paths       int
	steps       int
	seed        uint64
	startPrice  float64
	percentiles string
	floor       bool
	asJSON      bool
}

func newCommonFlags(name string, stderr io.Writer) *commonFlags {
	f := &commonFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)
	f.fs.StringVar(&f.configPath, "config", "", "Path to configuration file (defaults apply when empty)")
	f.fs.StringVar(&f.csvPath, "csv", "", "Prices CSV (overrides data.prices_csv)")
	f.fs.StringVar(&f.symbol, "symbol", "", "Stock Name to select from the CSV (overrides data.symbol)")
	f.fs.IntVar(&f.paths, "paths", 0, "Number of simulated paths (overrides simulation.num_paths)")
	f.fs.IntVar(&f.steps, "steps", 0, "Steps per path (overrides simulation.num_steps)")
	f.fs.Uint64Var(&f.seed, "seed", 0, "Random seed, 0 for a fresh one (overrides simulation.seed)")
	f.fs.Float64Var(&f.startPrice, "start-price", 0, "Start price, 0 for the last close (overrides simulation.start_price)")
	f.fs.StringVar(&f.percentiles, "percentiles", "", "Comma separated percentiles (overrides simulation.percentiles)")
	f.fs.BoolVar(&f.floor, "floor", false, "Treat zero as an absorbing price (overrides simulation.floor_at_zero)")
	f.fs.BoolVar(&f.asJSON, "json", false, "Print JSON instead of text")
	return f
}

// load parses args, reads the configuration and applies explicitly set flags
func (f *commonFlags) load(args []string) (*bootstrap.Config, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cli.ValidateFilePath(f.configPath); err != nil {
		return nil, err
	}
	if err := cli.ValidateFilePath(f.csvPath); err != nil {
		return nil, err
	}
	if err := cli.ValidateSymbol(f.symbol); err != nil {
		return nil, err
	}

	cfg, err := bootstrap.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	var flagErr error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "csv":
			cfg.Data.PricesCSV = f.csvPath
		case "symbol":
			cfg.Data.Symbol = f.symbol
		case "paths":
			cfg.Simulation.NumPaths = f.paths
		case "steps":
			cfg.Simulation.NumSteps = f.steps
		case "seed":
			cfg.Simulation.Seed = f.seed
		case "start-price":
			cfg.Simulation.StartPrice = f.startPrice
		case "floor":
			cfg.Simulation.FloorAtZero = f.floor
		case "percentiles":
			qs, err := cli.ParsePercentiles(f.percentiles)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Simulation.Percentiles = qs
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}
	return cfg, cfg.Validate()
}

func requestFromConfig(cfg *bootstrap.Config) pipeline.Request {
	return pipeline.Request{
		Symbol:      cfg.Data.Symbol,
		StartPrice:  cfg.Simulation.StartPrice,
		NumPaths:    cfg.Simulation.NumPaths,
		NumSteps:    cfg.Simulation.NumSteps,
		Seed:        cfg.Simulation.Seed,
		FloorAtZero: cfg.Simulation.FloorAtZero,
		Percentiles: cfg.Simulation.Percentiles,
	}
}

func runSimulate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newCommonFlags("simulate", stderr)
	cfg, err := f.load(args)
	if err != nil {
		return err
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	rep, err := app.Service.Simulate(ctx, requestFromConfig(cfg))
	if err != nil {
		return err
	}

	if f.asJSON {
		return writeJSON(stdout, rep)
	}
	return rep.Render(stdout)
}

func runIndicators(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newCommonFlags("indicators", stderr)
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.Service.Indicators(requestFromConfig(cfg), bootstrap.IndicatorParams(cfg))
	if err != nil {
		return err
	}
	if f.asJSON {
		return writeJSON(stdout, summary)
	}
	return report.RenderIndicators(stdout, summary)
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	f := newCommonFlags("serve", stderr)
	port := f.fs.Int("port", 0, "Listen port (overrides server.port)")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := []server.Option{server.WithHealthMonitor(app.Health)}
	if app.Store != nil {
		opts = append(opts, server.WithRunReader(app.Store))
	}
	if app.Pool != nil {
		opts = append(opts, server.WithPool(app.Pool))
	}
	srv := server.NewServer(server.Options{
		Port:         cfg.Server.Port,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxPaths:     cfg.Server.MaxPaths,
		MaxSteps:     cfg.Server.MaxSteps,
		MaxPoints:    cfg.Server.MaxPoints,
		DefaultPaths: cfg.Simulation.NumPaths,
		DefaultSteps: cfg.Simulation.NumSteps,
		Version:      version,
	}, app.Service, app.Logger, opts...)

	return app.Run(ctx, srv)
}

func runRuns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newCommonFlags("runs", stderr)
	limit := f.fs.Int("limit", 20, "Number of runs to list")
	id := f.fs.String("id", "", "Show a single run")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	if !cfg.Store.Enabled {
		return fmt.Errorf("the run store is disabled (store.enabled)")
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if *id != "" {
		rep, err := app.Store.GetRun(ctx, *id)
		if err != nil {
			return err
		}
		if f.asJSON {
			return writeJSON(stdout, rep)
		}
		return rep.Render(stdout)
	}

	runs, err := app.Store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if f.asJSON {
		return writeJSON(stdout, runs)
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tCREATED\tPATHS\tSTEPS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.ID, r.Symbol, r.CreatedAt.Format("2006-01-02 15:04:05"), r.NumPaths, r.NumSteps)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
