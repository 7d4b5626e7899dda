// Package workflow runs the command-line modes: full export, one resource
// only, statistics only and single character lookup, each with a dry run.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/rickmorty-client/pkg/export"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/Sternrassler/rickmorty-client/pkg/stats"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Process exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// ErrUsage marks invalid arguments.
var ErrUsage = errors.New("invalid arguments")

// ExitCode maps a Run error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	default:
		return ExitError
	}
}

// Mode selects what Run does.
type Mode string

const (
	ModeFullExport      Mode = "full_export"
	ModeCharactersOnly  Mode = "characters_only"
	ModeLocationsOnly   Mode = "locations_only"
	ModeStatisticsOnly  Mode = "statistics_only"
	ModeSingleCharacter Mode = "single_character"
)

// Options configures one run.
type Options struct {
	Mode        Mode
	CharacterID int
	OutputDir   string

	// Optimized uses the combined-page fetch when the transport has one.
	Optimized bool

	DryRun  bool
	Quiet   bool
	Verbose bool
}

// Validate rejects inconsistent options. Errors wrap ErrUsage.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeFullExport, ModeCharactersOnly, ModeLocationsOnly, ModeStatisticsOnly:
	case ModeSingleCharacter:
		if o.CharacterID <= 0 {
			return fmt.Errorf("%w: character id must be a positive integer (got %d)", ErrUsage, o.CharacterID)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrUsage, o.Mode)
	}
	if o.Quiet && o.Verbose {
		return fmt.Errorf("%w: quiet and verbose are mutually exclusive", ErrUsage)
	}
	if o.OutputDir == "" && o.exports() {
		return fmt.Errorf("%w: output directory cannot be empty", ErrUsage)
	}
	return nil
}

func (o Options) exports() bool {
	return o.Mode == ModeFullExport || o.Mode == ModeCharactersOnly || o.Mode == ModeLocationsOnly
}

// Runner executes workflow modes against one client. The caller owns the
// client and closes it.
type Runner struct {
	client  rickmorty.Client
	printer *Printer
	logger  zerolog.Logger
}

// New creates a runner.
func New(c rickmorty.Client, printer *Printer) *Runner {
	return &Runner{
		client:  c,
		printer: printer,
		logger:  log.With().Str("component", "workflow").Logger(),
	}
}

// Run executes opts.Mode.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	info := r.client.Info()
	r.logger.Info().
		Str("transport", info.Transport).
		Str("mode", string(opts.Mode)).
		Bool("dry_run", opts.DryRun).
		Msg("Starting workflow")

	switch opts.Mode {
	case ModeSingleCharacter:
		return r.singleCharacter(ctx, opts)
	case ModeStatisticsOnly:
		return r.statistics(ctx, opts)
	default:
		return r.data(ctx, opts)
	}
}

func (r *Runner) singleCharacter(ctx context.Context, opts Options) error {
	if opts.DryRun {
		r.printer.DryRun(r.client.Info(), fmt.Sprintf("Would fetch character %d with location details", opts.CharacterID))
		return nil
	}

	result, err := r.client.FetchCharacterWithLocation(ctx, opts.CharacterID)
	if err != nil {
		return fmt.Errorf("fetch character %d: %w", opts.CharacterID, err)
	}
	if !opts.Quiet {
		r.printer.Character(result)
	}
	return nil
}

func (r *Runner) statistics(ctx context.Context, opts Options) error {
	if opts.DryRun {
		r.printer.DryRun(r.client.Info(), "Would fetch all data and generate statistics")
		return nil
	}

	loaded, err := rickmorty.LoadDataset(ctx, r.client, opts.Optimized)
	if err != nil {
		return err
	}
	if !opts.Quiet {
		if loaded.Optimized {
			r.printer.Optimization(loaded)
		}
		r.printer.Statistics(r.client.Info().Transport, method(loaded), stats.ComputeStatistics(loaded.Dataset.Characters, loaded.Dataset.Locations), opts.Verbose)
	}
	return nil
}

func (r *Runner) data(ctx context.Context, opts Options) error {
	if opts.DryRun {
		what := "all data"
		switch opts.Mode {
		case ModeCharactersOnly:
			what = "characters only"
		case ModeLocationsOnly:
			what = "locations only"
		}
		r.printer.DryRun(r.client.Info(), fmt.Sprintf("Would fetch %s and export to %s", what, opts.OutputDir))
		return nil
	}

	loaded, err := r.fetch(ctx, opts)
	if err != nil {
		return err
	}
	ds := loaded.Dataset

	st := stats.ComputeStatistics(ds.Characters, ds.Locations)
	if !opts.Quiet {
		if loaded.Optimized {
			r.printer.Optimization(loaded)
		}
		r.printer.Statistics(r.client.Info().Transport, method(loaded), st, opts.Verbose)
	}

	exp := export.NewExporter(opts.OutputDir)
	var files export.Files
	switch opts.Mode {
	case ModeCharactersOnly:
		files.Characters, err = exp.ExportCharacters(ds)
	case ModeLocationsOnly:
		files.Locations, err = exp.ExportLocations(ds)
	default:
		files, err = exp.Export(ds)
		if err == nil {
			files.Statistics, err = exp.ExportJSON(export.StatisticsFile, st)
		}
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if !opts.Quiet {
		r.printer.Export(files, ds)
	}
	return nil
}

// fetch loads what the mode needs. Single-resource modes paginate only that
// resource; the full export may use the optimized strategy.
func (r *Runner) fetch(ctx context.Context, opts Options) (*rickmorty.LoadResult, error) {
	switch opts.Mode {
	case ModeCharactersOnly:
		before := r.client.Calls()
		characters, err := r.client.FetchAllCharacters(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch characters: %w", err)
		}
		return &rickmorty.LoadResult{
			Dataset:   model.Dataset{Characters: characters},
			Transport: r.client.Info().Transport,
			APICalls:  int(r.client.Calls() - before),
		}, nil
	case ModeLocationsOnly:
		before := r.client.Calls()
		locations, err := r.client.FetchAllLocations(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch locations: %w", err)
		}
		return &rickmorty.LoadResult{
			Dataset:   model.Dataset{Locations: locations},
			Transport: r.client.Info().Transport,
			APICalls:  int(r.client.Calls() - before),
		}, nil
	default:
		return rickmorty.LoadDataset(ctx, r.client, opts.Optimized)
	}
}

func method(l *rickmorty.LoadResult) string {
	if l.Optimized {
		return "combined-page queries"
	}
	return "standard pagination"
}

