// Package graphql implements the Rick and Morty GraphQL transport.
//
// Every request is a POST of {"query", "variables", "operationName"} to a
// single endpoint. Collections sit under data.characters / data.locations as
// {info, results}; info.next and info.prev are page numbers rather than URLs
// and are normalized to their decimal string form.
package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/pagination"
	"github.com/tidwall/gjson"
)

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Fetcher executes GraphQL operations.
type Fetcher struct {
	http     *client.Client
	endpoint string
}

// NewFetcher creates a fetcher on top of an HTTP client.
func NewFetcher(httpClient *client.Client) *Fetcher {
	return &Fetcher{
		http:     httpClient,
		endpoint: httpClient.Config().GraphQLURL,
	}
}

// Execute posts req and returns its data object. A non-empty errors array
// fails the request even when partial data is present; an error message
// saying "not found" is reported as a not-found error.
func (f *Fetcher) Execute(ctx context.Context, req Request) (gjson.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, &client.APIError{ErrorClass: client.ErrorClassClient, Message: "encode graphql request", Err: err}
	}

	body, err := f.http.PostJSON(ctx, f.endpoint, payload)
	if err != nil {
		return gjson.Result{}, err
	}

	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		var messages []string
		errs.ForEach(func(_, e gjson.Result) bool {
			messages = append(messages, e.Get("message").String())
			return true
		})
		message := fmt.Sprintf("%s: %s", req.OperationName, strings.Join(messages, "; "))
		if strings.Contains(strings.ToLower(message), "not found") {
			return gjson.Result{}, client.NewNotFoundError(message)
		}
		return gjson.Result{}, &client.APIError{
			StatusCode: 200,
			ErrorClass: client.ErrorClassClient,
			Message:    message,
		}
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return gjson.Result{}, client.NewMalformedError(req.OperationName+": response has no data object", nil)
	}
	return data, nil
}

// FetchPage implements pagination.PageFetcher.
func (f *Fetcher) FetchPage(ctx context.Context, resource model.Resource, page int) (pagination.RawPage, error) {
	if page < 1 {
		return pagination.RawPage{}, &client.APIError{
			ErrorClass: client.ErrorClassClient,
			Message:    fmt.Sprintf("invalid page %d", page),
		}
	}

	req, err := pageRequest(resource, page)
	if err != nil {
		return pagination.RawPage{}, err
	}
	data, err := f.Execute(ctx, req)
	if err != nil {
		return pagination.RawPage{}, err
	}
	return ParseConnection(data.Get(resource.GraphQLRoot()))
}

// FetchRecord returns one record object, or a not-found error when the
// upstream answers null.
func (f *Fetcher) FetchRecord(ctx context.Context, resource model.Resource, id int) ([]byte, error) {
	if id < 1 {
		return nil, &client.APIError{
			ErrorClass: client.ErrorClassClient,
			Message:    fmt.Sprintf("invalid %s id %d", resource.RESTPath(), id),
		}
	}

	req := Request{Variables: map[string]any{"id": strconv.Itoa(id)}}
	switch resource {
	case model.ResourceCharacters:
		req.Query, req.OperationName = characterQuery, OpCharacter
	case model.ResourceLocations:
		req.Query, req.OperationName = locationQuery, OpLocation
	default:
		return nil, unsupported(resource)
	}

	data, err := f.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	rec := data.Get(resource.RESTPath())
	if rec.Type == gjson.Null || !rec.Exists() {
		return nil, client.NewNotFoundError(fmt.Sprintf("%s %d not found", resource.RESTPath(), id))
	}
	if !rec.IsObject() {
		return nil, client.NewMalformedError(fmt.Sprintf("%s %d is not an object", resource.RESTPath(), id), nil)
	}
	return []byte(rec.Raw), nil
}

// ParseConnection reads a {info, results} object. A null results list is
// treated as empty.
func ParseConnection(v gjson.Result) (pagination.RawPage, error) {
	if !v.IsObject() {
		return pagination.RawPage{}, client.NewMalformedError("connection is not an object", nil)
	}
	info := v.Get("info")
	if !info.IsObject() {
		return pagination.RawPage{}, client.NewMalformedError("connection has no info object", nil)
	}
	results := v.Get("results")
	if results.Exists() && results.Type != gjson.Null && !results.IsArray() {
		return pagination.RawPage{}, client.NewMalformedError("connection results is not a list", nil)
	}

	page := pagination.RawPage{
		Items: []json.RawMessage{},
		Info: model.PaginationInfo{
			Count: int(info.Get("count").Int()),
			Pages: int(info.Get("pages").Int()),
			Next:  pageCursor(info.Get("next")),
			Prev:  pageCursor(info.Get("prev")),
		},
	}
	if results.IsArray() {
		results.ForEach(func(_, item gjson.Result) bool {
			page.Items = append(page.Items, json.RawMessage(item.Raw))
			return true
		})
	}
	return page, nil
}

func pageCursor(v gjson.Result) string {
	switch v.Type {
	case gjson.Number:
		return strconv.FormatInt(v.Int(), 10)
	case gjson.String:
		return v.Str
	default:
		return ""
	}
}

func pageRequest(resource model.Resource, page int) (Request, error) {
	vars := map[string]any{"page": page}
	switch resource {
	case model.ResourceCharacters:
		return Request{Query: charactersQuery, Variables: vars, OperationName: OpCharacters}, nil
	case model.ResourceLocations:
		return Request{Query: locationsQuery, Variables: vars, OperationName: OpLocations}, nil
	default:
		return Request{}, unsupported(resource)
	}
}

func unsupported(resource model.Resource) error {
	return &client.APIError{
		ErrorClass: client.ErrorClassClient,
		Message:    fmt.Sprintf("resource %q is not queryable", resource),
	}
}
