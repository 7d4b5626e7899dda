package rest

import (
	"context"
	"fmt"
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

// WithProgress reports every completed page.
func WithProgress(progress pagination.Progress) Option {
	return func(c *Client) {
		c.progress = progress
	}
}

// Client is the REST implementation of the Rick and Morty client.
type Client struct {
	http     *client.Client
	fetcher  *Fetcher
	progress pagination.Progress
	logger   zerolog.Logger

	mu    sync.Mutex
	pages map[model.Resource]int
}

// New creates a REST client from cfg.
func New(cfg client.Config, opts ...Option) (*Client, error) {
	httpClient, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithHTTP(httpClient, opts...), nil
}

// NewWithHTTP creates a REST client sharing an existing HTTP client.
func NewWithHTTP(httpClient *client.Client, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		fetcher: NewFetcher(httpClient),
		logger:  log.With().Str("component", "rest").Logger(),
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

// Fetcher returns the page fetcher.
func (c *Client) Fetcher() *Fetcher {
	return c.fetcher
}

// FetchAllCharacters fetches every character in id order.
func (c *Client) FetchAllCharacters(ctx context.Context) ([]model.Character, error) {
	return fetchAll(ctx, c, model.ResourceCharacters, record.ParseCharacter)
}

// FetchAllLocations fetches every location in id order.
func (c *Client) FetchAllLocations(ctx context.Context) ([]model.Location, error) {
	return fetchAll(ctx, c, model.ResourceLocations, record.ParseLocation)
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

	c.mu.Lock()
	c.pages[resource] = result.Info.Pages
	c.mu.Unlock()

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
		return model.Character{}, notFound(err, model.ResourceCharacters, id)
	}
	return record.ParseCharacter(raw)
}

// FetchLocation fetches one location by id.
func (c *Client) FetchLocation(ctx context.Context, id int) (model.Location, error) {
	raw, err := c.fetcher.FetchRecord(ctx, model.ResourceLocations, id)
	if err != nil {
		return model.Location{}, notFound(err, model.ResourceLocations, id)
	}
	return record.ParseLocation(raw)
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

// Info describes the REST transport. The call estimate is one request per
// page of each resource, known once both resources have been fetched.
func (c *Client) Info() model.ImplementationInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := model.ImplementationInfo{
		Transport: client.TransportREST,
		Endpoint:  c.fetcher.baseURL,
	}
	chars, okc := c.pages[model.ResourceCharacters]
	locs, okl := c.pages[model.ResourceLocations]
	if okc && okl {
		info.EstimatedAPICalls = max(chars, 1) + max(locs, 1)
	}
	return info
}

func notFound(err error, resource model.Resource, id int) error {
	if !client.IsNotFound(err) {
		return err
	}
	return &client.APIError{
		StatusCode: 404,
		ErrorClass: client.ErrorClassNotFound,
		Message:    fmt.Sprintf("%s %d not found", resource.RESTPath(), id),
		Err:        err,
	}
}
