package pagination

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the number of pages fetched in parallel.
	// 1 fetches strictly page by page.
	MaxConcurrency int

	// Timeout bounds each page fetch, retries included. 0 disables it.
	Timeout time.Duration

	// Progress, if set, is called once per completed page.
	Progress Progress
}

// DefaultConfig returns the sequential configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 1,
	}
}

// RawPage is one page as returned by a transport, records still unparsed.
type RawPage struct {
	Items []json.RawMessage
	Info  model.PaginationInfo
}

// PageFetcher fetches one page of one resource.
type PageFetcher interface {
	FetchPage(ctx context.Context, resource model.Resource, page int) (RawPage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, resource model.Resource, page int) (RawPage, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc) FetchPage(ctx context.Context, resource model.Resource, page int) (RawPage, error) {
	return f(ctx, resource, page)
}

// ParseFunc converts one raw record.
type ParseFunc[T any] func(raw []byte) (T, error)

// Progress observes completed pages. completed counts pages done so far,
// which equals page in sequential mode.
type Progress func(resource model.Resource, page, completed, totalPages int)

// Result is the outcome of a complete paginated fetch.
type Result[T any] struct {
	Records []T
	Info    model.PaginationInfo

	// PagesFetched is the number of page requests issued.
	PagesFetched int
}

// BatchFetcher fetches every page of a resource.
type BatchFetcher[T any] struct {
	fetcher PageFetcher
	parse   ParseFunc[T]
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher[T any](fetcher PageFetcher, parse ParseFunc[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &BatchFetcher[T]{
		fetcher: fetcher,
		parse:   parse,
		config:  config,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// PaginateAll fetches all records of resource with the default configuration.
func PaginateAll[T any](ctx context.Context, fetcher PageFetcher, resource model.Resource, parse ParseFunc[T]) ([]T, error) {
	result, err := NewBatchFetcher(fetcher, parse, DefaultConfig()).FetchAll(ctx, resource)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// FetchAll fetches page 1, then pages 2..pages. Any failed page aborts the
// fetch with an APIError naming the resource and page.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, resource model.Resource) (*Result[T], error) {
	start := time.Now()

	first, err := bf.fetchPage(ctx, resource, 1)
	if err != nil {
		return nil, bf.fail(resource, 1, err)
	}

	records, err := bf.parsePage(first)
	if err != nil {
		return nil, bf.fail(resource, 1, err)
	}

	totalPages := first.Info.Pages
	bf.completed(resource, 1, 1, totalPages, len(first.Items))

	result := &Result[T]{
		Records:      records,
		Info:         first.Info,
		PagesFetched: 1,
	}

	if totalPages <= 1 {
		bf.logger.Info().
			Str("resource", resource.String()).
			Int("records", len(result.Records)).
			Int("pages", totalPages).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return result, nil
	}

	if bf.config.MaxConcurrency == 1 {
		err = bf.fetchSequential(ctx, resource, first.Info, result)
	} else {
		err = bf.fetchParallel(ctx, resource, totalPages, result)
	}
	if err != nil {
		return nil, err
	}

	paginationDuration.WithLabelValues(resource.String()).Observe(time.Since(start).Seconds())
	bf.logger.Info().
		Str("resource", resource.String()).
		Int("records", len(result.Records)).
		Int("pages", result.PagesFetched).
		Int("total_pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}

func (bf *BatchFetcher[T]) fetchSequential(ctx context.Context, resource model.Resource, info model.PaginationInfo, result *Result[T]) error {
	for page := 2; page <= info.Pages; page++ {
		if !info.HasNext() {
			bf.logger.Warn().
				Str("resource", resource.String()).
				Int("page", page-1).
				Int("total_pages", info.Pages).
				Msg("Upstream reported no next page before the last page")
			break
		}

		raw, err := bf.fetchPage(ctx, resource, page)
		if err != nil {
			return bf.fail(resource, page, err)
		}
		records, err := bf.parsePage(raw)
		if err != nil {
			return bf.fail(resource, page, err)
		}

		result.Records = append(result.Records, records...)
		result.PagesFetched++
		bf.completed(resource, page, page, info.Pages, len(raw.Items))
		info.Next = raw.Info.Next
	}
	return nil
}

type pageResult[T any] struct {
	page    int
	records []T
	items   int
	err     error
}

// fetchParallel distributes pages 2..totalPages over a worker pool. The
// first failure cancels the remaining pages.
func (bf *BatchFetcher[T]) fetchParallel(ctx context.Context, resource model.Resource, totalPages int, result *Result[T]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int)
	pageResults := make(chan pageResult[T])

	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	workers := bf.config.MaxConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, resource, pageQueue, pageResults, &wg)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	pages := make([][]T, totalPages+1)
	completed := 1
	var firstErr error

	for res := range pageResults {
		if res.err != nil {
			if firstErr == nil {
				firstErr = bf.fail(resource, res.page, res.err)
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		pages[res.page] = res.records
		completed++
		result.PagesFetched++
		bf.completed(resource, res.page, completed, totalPages, res.items)
	}

	if firstErr != nil {
		return firstErr
	}

	for page := 2; page <= totalPages; page++ {
		result.Records = append(result.Records, pages[page]...)
	}
	return nil
}

// worker processes pages from the queue.
func (bf *BatchFetcher[T]) worker(ctx context.Context, resource model.Resource, pageQueue <-chan int, results chan<- pageResult[T], wg *sync.WaitGroup) {
	defer wg.Done()

	for page := range pageQueue {
		res := pageResult[T]{page: page}

		raw, err := bf.fetchPage(ctx, resource, page)
		if err == nil {
			res.items = len(raw.Items)
			res.records, err = bf.parsePage(raw)
		}
		res.err = err

		select {
		case results <- res:
		case <-ctx.Done():
			// The collector still drains; deliver failures so they are reported.
			if res.err != nil {
				results <- res
			}
			return
		}
	}
}

func (bf *BatchFetcher[T]) fetchPage(ctx context.Context, resource model.Resource, page int) (RawPage, error) {
	if bf.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()
	}
	return bf.fetcher.FetchPage(ctx, resource, page)
}

func (bf *BatchFetcher[T]) parsePage(raw RawPage) ([]T, error) {
	records := make([]T, 0, len(raw.Items))
	for _, item := range raw.Items {
		rec, err := bf.parse(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (bf *BatchFetcher[T]) completed(resource model.Resource, page, completed, totalPages, items int) {
	pagesFetchedTotal.WithLabelValues(resource.String()).Inc()
	bf.logger.Info().
		Str("resource", resource.String()).
		Int("page", page).
		Int("completed", completed).
		Int("total_pages", totalPages).
		Int("records", items).
		Msg("Page fetched")
	if bf.config.Progress != nil {
		bf.config.Progress(resource, page, completed, totalPages)
	}
}

func (bf *BatchFetcher[T]) fail(resource model.Resource, page int, err error) error {
	paginationFailuresTotal.WithLabelValues(resource.String()).Inc()
	bf.logger.Error().
		Err(err).
		Str("resource", resource.String()).
		Int("page", page).
		Msg("Page fetch failed - aborting")
	return client.WrapPage(err, resource.String(), page)
}
