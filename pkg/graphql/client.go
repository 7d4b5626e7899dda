package graphql

import (
	"context"
	"strings"
	"sync"

	"github.com/Sternrassler/rickmorty-client/internal/lookup"
	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/pagination"
	"github.com/Sternrassler/rickmorty-client/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Option configures a Client.
type Option func(*Client)

// WithProgress reports every completed page, including the pages fetched by
// the optimizer.
func WithProgress(progress pagination.Progress) Option {
	return func(c *Client) {
		c.progress = progress
	}
}

// Client is the GraphQL implementation of the Rick and Morty client.
type Client struct {
	http     *client.Client
	fetcher  *Fetcher
	parser   record.Parser
	progress pagination.Progress
	logger   zerolog.Logger

	mu    sync.Mutex
	pages map[model.Resource]int
}

// New creates a GraphQL client from cfg. Reference URLs in parsed records
// are rebuilt against cfg.RESTBaseURL.
func New(cfg client.Config, opts ...Option) (*Client, error) {
	httpClient, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithHTTP(httpClient, opts...), nil
}

// NewWithHTTP creates a GraphQL client sharing an existing HTTP client.
func NewWithHTTP(httpClient *client.Client, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		fetcher: NewFetcher(httpClient),
		parser:  record.NewGraphQLParser(strings.TrimRight(httpClient.Config().RESTBaseURL, "/")),
		logger:  log.With().Str("component", "graphql").Logger(),
		pages:   make(map[model.Resource]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTP returns the underlying HTTP client.
func (c *Client) HTTP() *client.Client {
	return c.http
}

// Fetcher returns the operation executor.
func (c *Client) Fetcher() *Fetcher {
	return c.fetcher
}

// FetchAllCharacters fetches every character in id order, one query per page.
func (c *Client) FetchAllCharacters(ctx context.Context) ([]model.Character, error) {
	return fetchAll(ctx, c, model.ResourceCharacters, c.parser.Character)
}

// FetchAllLocations fetches every location in id order, one query per page.
func (c *Client) FetchAllLocations(ctx context.Context) ([]model.Location, error) {
	return fetchAll(ctx, c, model.ResourceLocations, c.parser.Location)
}

func fetchAll[T any](ctx context.Context, c *Client, resource model.Resource, parse pagination.ParseFunc[T]) ([]T, error) {
	bf := pagination.NewBatchFetcher(c.fetcher, parse, pagination.Config{
		MaxConcurrency: c.http.Config().MaxConcurrency,
		Progress:       c.progress,
	})
	result, err := bf.FetchAll(ctx, resource)
	if err != nil {
		return nil, err
	}
	c.observePages(resource, result.Info.Pages)

	c.logger.Info().
		Str("resource", resource.String()).
		Int("records", len(result.Records)).
		Int("pages", result.PagesFetched).
		Msg("Fetched all records")
	return result.Records, nil
}

// FetchCharacter fetches one character by id.
func (c *Client) FetchCharacter(ctx context.Context, id int) (model.Character, error) {
	raw, err := c.fetcher.FetchRecord(ctx, model.ResourceCharacters, id)
	if err != nil {
		return model.Character{}, err
	}
	return c.parser.Character(raw)
}

// FetchLocation fetches one location by id.
func (c *Client) FetchLocation(ctx context.Context, id int) (model.Location, error) {
	raw, err := c.fetcher.FetchRecord(ctx, model.ResourceLocations, id)
	if err != nil {
		return model.Location{}, err
	}
	return c.parser.Location(raw)
}

// FetchCharacterWithLocation fetches a character and then its current
// location. A failed location lookup is logged and leaves Location nil; a
// missing character is a not-found error.
func (c *Client) FetchCharacterWithLocation(ctx context.Context, id int) (model.CharacterWithLocation, error) {
	return lookup.CharacterWithLocation(ctx, c.logger, id, c.FetchCharacter, c.FetchLocation)
}

// Close releases the HTTP client. Calling Close twice is a no-op.
func (c *Client) Close() error {
	return c.http.Close()
}

// Calls returns the number of upstream requests issued so far.
func (c *Client) Calls() int64 {
	return c.http.Calls()
}

// Info describes the GraphQL transport. The call estimate is that of the
// optimized fetch, max(Pc, Pl), known once both page counts were observed.
func (c *Client) Info() model.ImplementationInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := model.ImplementationInfo{
		Transport:                        client.TransportGraphQL,
		Endpoint:                         c.fetcher.endpoint,
		SupportsBatchQueries:             true,
		SupportsRelationshipOptimization: true,
	}
	chars, okc := c.pages[model.ResourceCharacters]
	locs, okl := c.pages[model.ResourceLocations]
	if okc && okl {
		info.EstimatedAPICalls = max(chars, locs, 1)
	}
	return info
}

func (c *Client) observePages(resource model.Resource, pages int) {
	c.mu.Lock()
	c.pages[resource] = pages
	c.mu.Unlock()
}
