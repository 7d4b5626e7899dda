package graphql

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/pagination"
	"github.com/tidwall/gjson"
)

// OptimizedResult is a full dataset fetched with combined page queries.
type OptimizedResult struct {
	Characters []model.Character
	Locations  []model.Location

	CharacterPages int
	LocationPages  int

	// APICalls counts the queries that reached the upstream, failed ones
	// included. Queries answered from the response cache are not counted.
	APICalls int

	// NaiveCalls is the cost of paginating each resource on its own,
	// max(Pc, 1) + max(Pl, 1).
	NaiveCalls int

	// ReductionPercent is (NaiveCalls - APICalls) / NaiveCalls * 100.
	ReductionPercent float64

	// Fallbacks counts combined queries that were split into single queries.
	Fallbacks int

	Duration time.Duration
}

// Dataset returns the fetched records as a dataset.
func (r *OptimizedResult) Dataset() model.Dataset {
	return model.Dataset{Characters: r.Characters, Locations: r.Locations}
}

// FetchFirstPages fetches page 1 of both resources in a single query.
func (c *Client) FetchFirstPages(ctx context.Context) (characters, locations pagination.RawPage, err error) {
	data, err := c.fetcher.Execute(ctx, Request{Query: allDataQuery, OperationName: OpAllData})
	if err != nil {
		return pagination.RawPage{}, pagination.RawPage{}, err
	}
	return splitCombined(data)
}

// FetchAllOptimized fetches both resources with as few queries as possible.
//
// The first query returns page 1 of each resource. After that a shared index
// i requests page i+2 of both resources in one query while both still have
// such a page, and of the remaining resource alone once the other is
// exhausted. Without failures this costs max(Pc, Pl) queries. A failed
// combined query is retried as two single-resource queries; a failed
// single-resource query aborts the whole fetch.
func (c *Client) FetchAllOptimized(ctx context.Context) (*OptimizedResult, error) {
	start := time.Now()
	callsBefore := c.http.Calls()
	run := &optimizerRun{
		client: c,
		result: &OptimizedResult{
			Characters: []model.Character{},
			Locations:  []model.Location{},
		},
		completed: make(map[model.Resource]int),
	}

	if err := run.pair(ctx, 1, 1); err != nil {
		return nil, err
	}
	pc, pl := run.result.CharacterPages, run.result.LocationPages

	for i := 0; ; i++ {
		charPage, locPage := i+2, i+2
		needChars, needLocs := charPage <= pc, locPage <= pl
		if !needChars && !needLocs {
			break
		}

		var err error
		switch {
		case needChars && needLocs:
			err = run.pair(ctx, charPage, locPage)
		case needChars:
			err = run.single(ctx, model.ResourceCharacters, charPage)
		case needLocs:
			err = run.single(ctx, model.ResourceLocations, locPage)
		}
		if err != nil {
			return nil, err
		}
	}

	result := run.result
	result.APICalls = int(c.http.Calls() - callsBefore)
	result.NaiveCalls = max(pc, 1) + max(pl, 1)
	result.ReductionPercent = float64(result.NaiveCalls-result.APICalls) / float64(result.NaiveCalls) * 100
	result.Duration = time.Since(start)

	c.observePages(model.ResourceCharacters, pc)
	c.observePages(model.ResourceLocations, pl)
	optimizerAPICalls.Observe(float64(result.APICalls))
	optimizerReductionPercent.Set(result.ReductionPercent)

	c.logger.Info().
		Int("characters", len(result.Characters)).
		Int("locations", len(result.Locations)).
		Int("api_calls", result.APICalls).
		Int("naive_calls", result.NaiveCalls).
		Float64("reduction_percent", result.ReductionPercent).
		Int("fallbacks", result.Fallbacks).
		Dur("duration", result.Duration).
		Msg("Optimized fetch complete")
	return result, nil
}

type optimizerRun struct {
	client    *Client
	result    *OptimizedResult
	completed map[model.Resource]int
}

// pair fetches one page of each resource in a single query, falling back to
// two single queries when it fails. Page 1 uses the GetAllData query.
func (r *optimizerRun) pair(ctx context.Context, charPage, locPage int) error {
	req := Request{Query: allDataQuery, OperationName: OpAllData}
	if charPage != 1 || locPage != 1 {
		req = Request{
			Query:         combinedPageQuery,
			Variables:     map[string]any{"charPage": charPage, "locPage": locPage},
			OperationName: OpCombinedPage,
		}
	}

	chars, locs, err := r.combined(ctx, req)
	if err == nil {
		r.accept(model.ResourceCharacters, charPage, chars)
		r.accept(model.ResourceLocations, locPage, locs)
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, client.ErrClosed) {
		return err
	}

	r.result.Fallbacks++
	optimizerFallbacksTotal.Inc()
	r.client.logger.Warn().
		Err(err).
		Str("operation", req.OperationName).
		Int("character_page", charPage).
		Int("location_page", locPage).
		Msg("Combined query failed, falling back to single queries")

	if err := r.single(ctx, model.ResourceCharacters, charPage); err != nil {
		return err
	}
	return r.single(ctx, model.ResourceLocations, locPage)
}

type parsedPage struct {
	info       model.PaginationInfo
	characters []model.Character
	locations  []model.Location
}

func (r *optimizerRun) combined(ctx context.Context, req Request) (parsedPage, parsedPage, error) {
	data, err := r.client.fetcher.Execute(ctx, req)
	if err != nil {
		return parsedPage{}, parsedPage{}, err
	}
	rawChars, rawLocs, err := splitCombined(data)
	if err != nil {
		return parsedPage{}, parsedPage{}, err
	}
	chars, err := r.parse(model.ResourceCharacters, rawChars)
	if err != nil {
		return parsedPage{}, parsedPage{}, err
	}
	locs, err := r.parse(model.ResourceLocations, rawLocs)
	if err != nil {
		return parsedPage{}, parsedPage{}, err
	}
	return chars, locs, nil
}

// single fetches one page of one resource. Failures are not recovered.
func (r *optimizerRun) single(ctx context.Context, resource model.Resource, page int) error {
	raw, err := r.client.fetcher.FetchPage(ctx, resource, page)
	if err != nil {
		return client.WrapPage(err, resource.String(), page)
	}
	parsed, err := r.parse(resource, raw)
	if err != nil {
		return client.WrapPage(err, resource.String(), page)
	}
	r.accept(resource, page, parsed)
	return nil
}

func (r *optimizerRun) parse(resource model.Resource, raw pagination.RawPage) (parsedPage, error) {
	parsed := parsedPage{info: raw.Info}
	for _, item := range raw.Items {
		switch resource {
		case model.ResourceCharacters:
			ch, err := r.client.parser.Character(item)
			if err != nil {
				return parsedPage{}, err
			}
			parsed.characters = append(parsed.characters, ch)
		case model.ResourceLocations:
			loc, err := r.client.parser.Location(item)
			if err != nil {
				return parsedPage{}, err
			}
			parsed.locations = append(parsed.locations, loc)
		default:
			return parsedPage{}, unsupported(resource)
		}
	}
	return parsed, nil
}

// accept appends a page in page order. Page 1 fixes the page count.
func (r *optimizerRun) accept(resource model.Resource, page int, parsed parsedPage) {
	var total int
	switch resource {
	case model.ResourceCharacters:
		if page == 1 {
			r.result.CharacterPages = parsed.info.Pages
		}
		r.result.Characters = append(r.result.Characters, parsed.characters...)
		total = r.result.CharacterPages
	case model.ResourceLocations:
		if page == 1 {
			r.result.LocationPages = parsed.info.Pages
		}
		r.result.Locations = append(r.result.Locations, parsed.locations...)
		total = r.result.LocationPages
	}

	r.completed[resource]++
	if r.client.progress != nil {
		r.client.progress(resource, page, r.completed[resource], total)
	}
}

func splitCombined(data gjson.Result) (characters, locations pagination.RawPage, err error) {
	characters, err = ParseConnection(data.Get(model.ResourceCharacters.GraphQLRoot()))
	if err != nil {
		return pagination.RawPage{}, pagination.RawPage{}, err
	}
	locations, err = ParseConnection(data.Get(model.ResourceLocations.GraphQLRoot()))
	if err != nil {
		return pagination.RawPage{}, pagination.RawPage{}, err
	}
	return characters, locations, nil
}
