// Package rest implements the Rick and Morty REST transport.
//
// Collections are paginated 20 records at a time at {base}/{resource}?page=N
// and single records live at {base}/{resource}/{id}. A resource with no
// records answers page 1 with 404 {"error":"There is nothing here"}, which is
// reported as an empty page rather than an error.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/pagination"
	"github.com/tidwall/gjson"
)

const emptyResourceMessage = "There is nothing here"

// Fetcher issues REST page and record requests.
type Fetcher struct {
	http    *client.Client
	baseURL string
}

// NewFetcher creates a fetcher on top of an HTTP client.
func NewFetcher(httpClient *client.Client) *Fetcher {
	return &Fetcher{
		http:    httpClient,
		baseURL: strings.TrimRight(httpClient.Config().RESTBaseURL, "/"),
	}
}

// PageURL returns the URL of one collection page.
func (f *Fetcher) PageURL(resource model.Resource, page int) string {
	return fmt.Sprintf("%s/%s?page=%d", f.baseURL, resource.RESTPath(), page)
}

// RecordURL returns the URL of one record.
func (f *Fetcher) RecordURL(resource model.Resource, id int) string {
	return model.ResourceURL(f.baseURL, resource, id)
}

// FetchPage implements pagination.PageFetcher.
func (f *Fetcher) FetchPage(ctx context.Context, resource model.Resource, page int) (pagination.RawPage, error) {
	if page < 1 {
		return pagination.RawPage{}, &client.APIError{
			ErrorClass: client.ErrorClassClient,
			Message:    fmt.Sprintf("invalid page %d", page),
		}
	}

	body, err := f.http.Get(ctx, f.PageURL(resource, page))
	if err != nil {
		if page == 1 && isEmptyResource(err) {
			return pagination.RawPage{Items: []json.RawMessage{}}, nil
		}
		return pagination.RawPage{}, err
	}
	return ParsePage(body)
}

// FetchRecord fetches the raw JSON of one record.
func (f *Fetcher) FetchRecord(ctx context.Context, resource model.Resource, id int) ([]byte, error) {
	if id < 1 {
		return nil, &client.APIError{
			ErrorClass: client.ErrorClassClient,
			Message:    fmt.Sprintf("invalid %s id %d", resource.RESTPath(), id),
		}
	}
	return f.http.Get(ctx, f.RecordURL(resource, id))
}

// ParsePage splits a REST collection body into its records and info block.
func ParsePage(body []byte) (pagination.RawPage, error) {
	info := gjson.GetBytes(body, "info")
	results := gjson.GetBytes(body, "results")
	if !info.IsObject() {
		return pagination.RawPage{}, client.NewMalformedError("page has no info object", nil)
	}
	if !results.IsArray() {
		return pagination.RawPage{}, client.NewMalformedError("page has no results array", nil)
	}

	page := pagination.RawPage{
		Items: make([]json.RawMessage, 0, len(results.Array())),
		Info: model.PaginationInfo{
			Count: int(info.Get("count").Int()),
			Pages: int(info.Get("pages").Int()),
			Next:  nullableString(info.Get("next")),
			Prev:  nullableString(info.Get("prev")),
		},
	}
	results.ForEach(func(_, item gjson.Result) bool {
		page.Items = append(page.Items, json.RawMessage(item.Raw))
		return true
	})
	return page, nil
}

func nullableString(v gjson.Result) string {
	if v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

func isEmptyResource(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		apiErr, ok := err.(*client.APIError)
		if ok && apiErr.StatusCode == 404 && strings.Contains(apiErr.Body, emptyResourceMessage) {
			return true
		}
	}
	return false
}
