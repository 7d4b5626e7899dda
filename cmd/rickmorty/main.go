// Command rickmorty fetches the Rick and Morty dataset over REST or GraphQL,
// prints statistics and exports CSV files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/rickmorty-client/internal/config"
	"github.com/Sternrassler/rickmorty-client/internal/workflow"
	"github.com/Sternrassler/rickmorty-client/pkg/benchmark"
	"github.com/Sternrassler/rickmorty-client/pkg/logging"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type globalOptions struct {
	Config    string `short:"c" long:"config" env:"RICKMORTY_CONFIG" description:"YAML settings file"`
	Transport string `short:"t" long:"transport" env:"RICKMORTY_TRANSPORT" default:"rest" choice:"rest" choice:"graphql" description:"Upstream transport"`

	RESTURL     string `long:"rest-url" env:"RICKMORTY_REST_URL" description:"REST base URL"`
	GraphQLURL  string `long:"graphql-url" env:"RICKMORTY_GRAPHQL_URL" description:"GraphQL endpoint"`
	RedisURL    string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for the response cache (optional)"`
	Concurrency int    `long:"concurrency" env:"RICKMORTY_CONCURRENCY" description:"Pages fetched in parallel"`
	MaxRetries  int    `long:"max-retries" env:"RICKMORTY_MAX_RETRIES" default:"-1" description:"Retries per request (-1 keeps the settings value)"`
	LogLevel    string `long:"log-level" env:"LOG_LEVEL" description:"debug, info, warn, error or disabled"`

	Verbose bool `short:"v" long:"verbose" description:"Debug logging and data quality details"`
	Quiet   bool `short:"q" long:"quiet" description:"Only report errors"`
	DryRun  bool `long:"dry-run" description:"Show what would be done without calling the API"`
	NoColor bool `long:"no-color" description:"Disable colored output"`
}

type exportCommand struct {
	OutputDir string `short:"o" long:"output-dir" env:"RICKMORTY_OUTPUT_DIR" description:"Directory for CSV files"`
	Optimized bool   `long:"optimized" description:"Use combined-page queries (graphql only)"`
}

type statsCommand struct {
	Optimized bool `long:"optimized" description:"Use combined-page queries (graphql only)"`
}

type characterCommand struct {
	Args struct {
		ID int `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`
}

type benchmarkCommand struct {
	Iterations int    `short:"n" long:"iterations" default:"3" description:"Iterations per transport"`
	Optimized  bool   `long:"optimized" description:"Also time the combined-page GraphQL fetch"`
	Output     string `long:"output" description:"Report file (default benchmark_results/comparison_<timestamp>.json)"`
}

type options struct {
	globalOptions

	Export     exportCommand    `command:"export" description:"Fetch all data, print statistics and export CSV files"`
	Characters exportCommand    `command:"characters" description:"Fetch and export characters only"`
	Locations  exportCommand    `command:"locations" description:"Fetch and export locations only"`
	Stats      statsCommand     `command:"stats" description:"Fetch all data and print statistics"`
	Character  characterCommand `command:"character" description:"Show one character with its location"`
	Benchmark  benchmarkCommand `command:"benchmark" description:"Compare REST and GraphQL timings"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "rickmorty"

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return workflow.ExitOK
		}
		fmt.Fprintln(stderr, err)
		return workflow.ExitUsage
	}

	settings, err := loadSettings(opts.globalOptions, opts.Export.OutputDir, opts.Characters.OutputDir, opts.Locations.OutputDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return workflow.ExitUsage
	}
	if opts.Quiet && opts.Verbose {
		fmt.Fprintln(stderr, "--quiet and --verbose are mutually exclusive")
		return workflow.ExitUsage
	}

	logCfg := settings.LoggingConfig()
	logCfg.Output = stderr
	logCfg.NoColor = opts.NoColor
	switch {
	case opts.Verbose:
		logCfg.Level = logging.LevelDebug
	case opts.Quiet:
		logCfg.Level = logging.LevelError
	}
	logging.Setup(logCfg)

	printer := workflow.NewPrinter(stdout, opts.NoColor)

	if parser.Active.Name == "benchmark" {
		err = runBenchmark(ctx, settings, opts.Benchmark, printer, opts.Quiet)
	} else {
		err = runWorkflow(ctx, parser.Active, &opts, settings, printer)
	}
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		fmt.Fprintln(stderr, "error:", err)
	}
	return workflow.ExitCode(err)
}

// loadSettings reads the settings file and applies flag and environment
// overrides. The first non-empty output directory among the commands wins.
func loadSettings(g globalOptions, outputDirs ...string) (*config.Settings, error) {
	settings, err := config.LoadOrDefault(g.Config)
	if err != nil {
		return nil, err
	}
	o := config.Overrides{
		RESTBaseURL:    g.RESTURL,
		GraphQLURL:     g.GraphQLURL,
		RedisURL:       g.RedisURL,
		LogLevel:       g.LogLevel,
		MaxConcurrency: g.Concurrency,
		MaxRetries:     g.MaxRetries,
	}
	for _, dir := range outputDirs {
		if dir != "" {
			o.OutputDir = dir
			break
		}
	}
	if err := settings.Apply(o); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

func runWorkflow(ctx context.Context, active *flags.Command, opts *options, settings *config.Settings, printer *workflow.Printer) error {
	wo := workflow.Options{
		OutputDir: settings.Output.Dir,
		DryRun:    opts.DryRun,
		Quiet:     opts.Quiet,
		Verbose:   opts.Verbose,
	}
	switch active.Name {
	case "export":
		wo.Mode = workflow.ModeFullExport
		wo.Optimized = opts.Export.Optimized
	case "characters":
		wo.Mode = workflow.ModeCharactersOnly
	case "locations":
		wo.Mode = workflow.ModeLocationsOnly
	case "stats":
		wo.Mode = workflow.ModeStatisticsOnly
		wo.Optimized = opts.Stats.Optimized
	case "character":
		wo.Mode = workflow.ModeSingleCharacter
		wo.CharacterID = opts.Character.Args.ID
	default:
		return fmt.Errorf("%w: unknown command %q", workflow.ErrUsage, active.Name)
	}
	if err := wo.Validate(); err != nil {
		return err
	}

	transport, err := rickmorty.ParseTransport(opts.Transport)
	if err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrUsage, err)
	}
	rdb, err := openCache(settings, wo)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	c, err := rickmorty.New(transport, settings.ClientConfig(rdb))
	if err != nil {
		return err
	}
	defer c.Close()

	return workflow.New(c, printer).Run(ctx, wo)
}

// openCache connects the response cache unless the run makes no requests.
func openCache(settings *config.Settings, wo workflow.Options) (*redis.Client, error) {
	if wo.DryRun {
		return nil, nil
	}
	return settings.OpenRedis()
}

func runBenchmark(ctx context.Context, settings *config.Settings, cmd benchmarkCommand, printer *workflow.Printer, quiet bool) error {
	if cmd.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be >= 1 (got %d)", workflow.ErrUsage, cmd.Iterations)
	}

	report, err := benchmark.NewRunner(settings.ClientConfig(nil)).Run(ctx, benchmark.Options{
		Iterations:       cmd.Iterations,
		IncludeOptimized: cmd.Optimized,
	})
	if err != nil {
		return err
	}
	path, err := report.Save(cmd.Output)
	if err != nil {
		return err
	}
	if !quiet {
		printer.Benchmark(report)
		printer.Saved("Report", path)
	}
	return nil
}
