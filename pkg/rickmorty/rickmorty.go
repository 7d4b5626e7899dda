// Package rickmorty is the transport-agnostic entry point: one Client
// contract with a REST and a GraphQL implementation, and a dataset loader
// that picks the cheapest strategy the transport offers.
package rickmorty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/graphql"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/pagination"
	"github.com/Sternrassler/rickmorty-client/pkg/rest"
	"github.com/rs/zerolog/log"
)

// Transport selects the upstream protocol.
type Transport string

const (
	TransportREST    Transport = client.TransportREST
	TransportGraphQL Transport = client.TransportGraphQL
)

// ParseTransport accepts "rest" or "graphql", case-insensitively.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportREST, TransportGraphQL:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want rest or graphql)", s)
	}
}

// Client is implemented by both transports.
//
// A Client is ready after construction and performs no network call until
// the first operation. After Close every operation fails with
// client.ErrClosed.
type Client interface {
	FetchAllCharacters(ctx context.Context) ([]model.Character, error)
	FetchAllLocations(ctx context.Context) ([]model.Location, error)
	FetchCharacter(ctx context.Context, id int) (model.Character, error)
	FetchLocation(ctx context.Context, id int) (model.Location, error)
	FetchCharacterWithLocation(ctx context.Context, id int) (model.CharacterWithLocation, error)
	Close() error
	Info() model.ImplementationInfo
	Calls() int64
}

// Optimizer is implemented by transports that can fetch a whole dataset in
// fewer requests than paginating each resource.
type Optimizer interface {
	FetchAllOptimized(ctx context.Context) (*graphql.OptimizedResult, error)
}

var (
	_ Client    = (*rest.Client)(nil)
	_ Client    = (*graphql.Client)(nil)
	_ Optimizer = (*graphql.Client)(nil)
)

type options struct {
	progress pagination.Progress
}

// Option configures New.
type Option func(*options)

// WithProgress reports every completed page.
func WithProgress(progress pagination.Progress) Option {
	return func(o *options) {
		o.progress = progress
	}
}

// New creates a client for transport.
func New(transport Transport, cfg client.Config, opts ...Option) (Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch transport {
	case TransportREST:
		var restOpts []rest.Option
		if o.progress != nil {
			restOpts = append(restOpts, rest.WithProgress(o.progress))
		}
		c, err := rest.New(cfg, restOpts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportGraphQL:
		var gqlOpts []graphql.Option
		if o.progress != nil {
			gqlOpts = append(gqlOpts, graphql.WithProgress(o.progress))
		}
		c, err := graphql.New(cfg, gqlOpts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

// LoadResult is a fully materialized dataset and what it cost.
type LoadResult struct {
	Dataset   model.Dataset
	Transport string
	APICalls  int
	Optimized bool

	// ReductionPercent is only set for optimized loads.
	ReductionPercent float64

	Duration time.Duration
}

// LoadDataset fetches all characters and all locations. With optimize set
// and a transport that supports it the combined-page strategy is used;
// otherwise each resource is paginated in turn.
func LoadDataset(ctx context.Context, c Client, optimize bool) (*LoadResult, error) {
	logger := log.With().Str("component", "loader").Logger()
	start := time.Now()
	result := &LoadResult{Transport: c.Info().Transport}

	if o, ok := c.(Optimizer); ok && optimize {
		optimized, err := o.FetchAllOptimized(ctx)
		if err != nil {
			return nil, err
		}
		result.Dataset = optimized.Dataset()
		result.APICalls = optimized.APICalls
		result.Optimized = true
		result.ReductionPercent = optimized.ReductionPercent
		result.Duration = time.Since(start)
		return result, nil
	}
	if optimize {
		logger.Info().Str("transport", result.Transport).Msg("Transport has no optimized fetch, paginating each resource")
	}

	before := c.Calls()
	characters, err := c.FetchAllCharacters(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch characters: %w", err)
	}
	locations, err := c.FetchAllLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch locations: %w", err)
	}

	result.Dataset = model.Dataset{Characters: characters, Locations: locations}
	result.APICalls = int(c.Calls() - before)
	result.Duration = time.Since(start)

	logger.Info().
		Str("transport", result.Transport).
		Int("characters", len(characters)).
		Int("locations", len(locations)).
		Int("api_calls", result.APICalls).
		Dur("duration", result.Duration).
		Msg("Dataset loaded")
	return result, nil
}
