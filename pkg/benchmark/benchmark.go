// Package benchmark times the REST and GraphQL transports against each other.
package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/export"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultDir is where reports are saved when no path is given.
const DefaultDir = "benchmark_results"

// TransportResult holds the timings of one transport.
type TransportResult struct {
	Transport  string  `json:"method"`
	Iterations int     `json:"iterations"`
	Characters Summary `json:"character_fetch"`
	Locations  Summary `json:"location_fetch"`
	Total      Summary `json:"total"`

	CharacterCount int `json:"character_count"`
	LocationCount  int `json:"location_count"`

	// APICalls is the number of requests of one iteration.
	APICalls int `json:"api_calls"`
}

// OptimizedResult holds the timing of one combined-page GraphQL fetch.
type OptimizedResult struct {
	Seconds          float64 `json:"total_time"`
	CharacterCount   int     `json:"character_count"`
	LocationCount    int     `json:"location_count"`
	APICalls         int     `json:"api_calls"`
	NaiveCalls       int     `json:"naive_api_calls"`
	ReductionPercent float64 `json:"reduction_percent"`
	Fallbacks        int     `json:"fallbacks"`
}

// Comparison relates GraphQL to REST. Positive improvements favour GraphQL.
type Comparison struct {
	TimeImprovementPercent float64 `json:"time_improvement_percent"`
	SpeedFactor            float64 `json:"speed_factor"`
	AbsoluteSeconds        float64 `json:"absolute_seconds"`

	// APICallReductionPercent compares the cheapest GraphQL strategy that
	// ran with REST pagination.
	APICallReductionPercent float64 `json:"api_call_reduction_percent"`
}

// Report is the outcome of one benchmark run.
type Report struct {
	RunID     string           `json:"run_id"`
	Timestamp time.Time        `json:"timestamp"`
	REST      TransportResult  `json:"rest"`
	GraphQL   TransportResult  `json:"graphql"`
	Optimized *OptimizedResult `json:"graphql_optimized,omitempty"`
	Compared  Comparison       `json:"comparison"`
}

// Options controls a run.
type Options struct {
	Iterations       int
	IncludeOptimized bool
}

// Runner executes benchmarks.
type Runner struct {
	config client.Config
	newFn  func(rickmorty.Transport, client.Config) (rickmorty.Client, error)
	logger zerolog.Logger
}

// NewRunner creates a runner. The response cache and shared rate-limit
// state are disabled so that every iteration reaches the upstream.
func NewRunner(cfg client.Config) *Runner {
	cfg.Redis = nil
	return &Runner{
		config: cfg,
		newFn: func(t rickmorty.Transport, c client.Config) (rickmorty.Client, error) {
			return rickmorty.New(t, c)
		},
		logger: log.With().Str("component", "benchmark").Logger(),
	}
}

// Run benchmarks both transports and, if requested, the optimized fetch.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be >= 1 (got %d)", opts.Iterations)
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
	r.logger.Info().Str("run_id", report.RunID).Int("iterations", opts.Iterations).Msg("Starting benchmark")

	var err error
	if report.REST, err = r.transport(ctx, rickmorty.TransportREST, opts.Iterations); err != nil {
		return nil, err
	}
	if report.GraphQL, err = r.transport(ctx, rickmorty.TransportGraphQL, opts.Iterations); err != nil {
		return nil, err
	}
	if opts.IncludeOptimized {
		if report.Optimized, err = r.optimized(ctx); err != nil {
			return nil, err
		}
	}

	report.Compared = compare(report)
	return report, nil
}

func (r *Runner) transport(ctx context.Context, transport rickmorty.Transport, iterations int) (TransportResult, error) {
	c, err := r.newFn(transport, r.config)
	if err != nil {
		return TransportResult{}, err
	}
	defer c.Close()

	var charTimes, locTimes, totals []time.Duration
	result := TransportResult{Transport: string(transport), Iterations: iterations}
	before := c.Calls()

	for i := 0; i < iterations; i++ {
		r.logger.Info().Str("transport", string(transport)).Int("iteration", i+1).Int("of", iterations).Msg("Benchmark iteration")

		start := time.Now()
		characters, err := c.FetchAllCharacters(ctx)
		if err != nil {
			return TransportResult{}, fmt.Errorf("%s characters: %w", transport, err)
		}
		charTime := time.Since(start)

		start = time.Now()
		locations, err := c.FetchAllLocations(ctx)
		if err != nil {
			return TransportResult{}, fmt.Errorf("%s locations: %w", transport, err)
		}
		locTime := time.Since(start)

		charTimes = append(charTimes, charTime)
		locTimes = append(locTimes, locTime)
		totals = append(totals, charTime+locTime)
		result.CharacterCount = len(characters)
		result.LocationCount = len(locations)
	}

	result.Characters = Summarize(charTimes)
	result.Locations = Summarize(locTimes)
	result.Total = Summarize(totals)
	result.APICalls = int(c.Calls()-before) / iterations
	return result, nil
}

func (r *Runner) optimized(ctx context.Context) (*OptimizedResult, error) {
	c, err := r.newFn(rickmorty.TransportGraphQL, r.config)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	o, ok := c.(rickmorty.Optimizer)
	if !ok {
		return nil, fmt.Errorf("graphql client does not support optimized fetch")
	}
	res, err := o.FetchAllOptimized(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimized fetch: %w", err)
	}
	return &OptimizedResult{
		Seconds:          res.Duration.Seconds(),
		CharacterCount:   len(res.Characters),
		LocationCount:    len(res.Locations),
		APICalls:         res.APICalls,
		NaiveCalls:       res.NaiveCalls,
		ReductionPercent: res.ReductionPercent,
		Fallbacks:        res.Fallbacks,
	}, nil
}

func compare(report *Report) Comparison {
	var c Comparison
	restAvg, gqlAvg := report.REST.Total.Mean, report.GraphQL.Total.Mean
	if restAvg > 0 {
		c.TimeImprovementPercent = (restAvg - gqlAvg) / restAvg * 100
	}
	if gqlAvg > 0 {
		c.SpeedFactor = restAvg / gqlAvg
	}
	c.AbsoluteSeconds = restAvg - gqlAvg

	gqlCalls := report.GraphQL.APICalls
	if report.Optimized != nil {
		gqlCalls = report.Optimized.APICalls
	}
	if report.REST.APICalls > 0 {
		c.APICallReductionPercent = float64(report.REST.APICalls-gqlCalls) / float64(report.REST.APICalls) * 100
	}
	return c
}

// Save writes the report as JSON. An empty path saves to
// benchmark_results/comparison_<timestamp>.json.
func (r *Report) Save(path string) (string, error) {
	dir, name := DefaultDir, fmt.Sprintf("comparison_%s.json", r.Timestamp.Format("20060102_150405"))
	if path != "" {
		dir, name = filepath.Dir(path), filepath.Base(path)
	}
	return export.NewExporter(dir).ExportJSON(name, r)
}
