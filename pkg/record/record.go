// Package record converts raw upstream records into the model types.
//
// Both transports are accepted. REST records already carry reference URLs;
// GraphQL records carry nested {id name} objects, which are rewritten into
// the URLs the REST transport would have returned so that everything
// downstream stays transport-agnostic.
package record

import (
	"fmt"
	"strconv"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/tidwall/gjson"
)

// Format identifies the shape of raw records.
type Format int

const (
	// FormatREST is the REST shape: references are {name, url}.
	FormatREST Format = iota

	// FormatGraphQL is the GraphQL shape: references are {id, name}.
	FormatGraphQL
)

func (f Format) String() string {
	if f == FormatGraphQL {
		return "graphql"
	}
	return "rest"
}

// Parser turns raw JSON records into model values.
type Parser struct {
	format   Format
	restBase string
}

// NewRESTParser returns a parser for REST records.
func NewRESTParser() Parser {
	return Parser{format: FormatREST}
}

// NewGraphQLParser returns a parser for GraphQL records. restBase is used to
// rebuild reference URLs, e.g. "https://rickandmortyapi.com/api".
func NewGraphQLParser(restBase string) Parser {
	return Parser{format: FormatGraphQL, restBase: restBase}
}

// Format returns the record shape the parser expects.
func (p Parser) Format() Format {
	return p.format
}

// ParseCharacter parses a REST character record.
func ParseCharacter(raw []byte) (model.Character, error) {
	return NewRESTParser().Character(raw)
}

// ParseLocation parses a REST location record.
func ParseLocation(raw []byte) (model.Location, error) {
	return NewRESTParser().Location(raw)
}

// Character parses one character. Missing optional fields become empty
// values; a missing or non-positive id is a malformed record.
func (p Parser) Character(raw []byte) (model.Character, error) {
	rec, id, err := parseObject(raw, "character")
	if err != nil {
		return model.Character{}, err
	}

	c := model.Character{
		ID:      id,
		Name:    rec.Get("name").String(),
		Status:  rec.Get("status").String(),
		Species: rec.Get("species").String(),
		Type:    rec.Get("type").String(),
		Gender:  rec.Get("gender").String(),
		Image:   rec.Get("image").String(),
		Created: rec.Get("created").String(),
	}

	if p.format == FormatGraphQL {
		c.Origin = p.graphQLRef(rec.Get("origin"), model.ResourceLocations)
		c.Location = p.graphQLRef(rec.Get("location"), model.ResourceLocations)
		c.Episode = p.graphQLRefURLs(rec.Get("episode"), model.ResourceEpisodes)
		c.URL = model.ResourceURL(p.restBase, model.ResourceCharacters, id)
		return c, nil
	}

	c.Origin = restRef(rec.Get("origin"))
	c.Location = restRef(rec.Get("location"))
	c.Episode = stringList(rec.Get("episode"))
	c.URL = rec.Get("url").String()
	return c, nil
}

// Location parses one location.
func (p Parser) Location(raw []byte) (model.Location, error) {
	rec, id, err := parseObject(raw, "location")
	if err != nil {
		return model.Location{}, err
	}

	l := model.Location{
		ID:        id,
		Name:      rec.Get("name").String(),
		Type:      rec.Get("type").String(),
		Dimension: rec.Get("dimension").String(),
		Created:   rec.Get("created").String(),
	}

	if p.format == FormatGraphQL {
		l.Residents = p.graphQLRefURLs(rec.Get("residents"), model.ResourceCharacters)
		l.URL = model.ResourceURL(p.restBase, model.ResourceLocations, id)
		return l, nil
	}

	l.Residents = stringList(rec.Get("residents"))
	l.URL = rec.Get("url").String()
	return l, nil
}

// ResidentNames returns the resident names embedded in a GraphQL location
// record, in order. REST records carry no names and yield nil.
func ResidentNames(raw []byte) []string {
	var names []string
	gjson.GetBytes(raw, "residents").ForEach(func(_, v gjson.Result) bool {
		if name := v.Get("name").String(); name != "" {
			names = append(names, name)
		}
		return true
	})
	return names
}

func parseObject(raw []byte, kind string) (gjson.Result, int, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, 0, client.NewMalformedError(kind+" record is not valid JSON", nil)
	}
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return gjson.Result{}, 0, client.NewMalformedError(kind+" record is not an object", nil)
	}

	id, ok := positiveID(rec.Get("id"))
	if !ok {
		return gjson.Result{}, 0, client.NewMalformedError(
			fmt.Sprintf("%s record has no valid id (%q)", kind, rec.Get("id").Raw), nil)
	}
	return rec, id, nil
}

// positiveID accepts numeric ids (REST) and string ids (GraphQL).
func positiveID(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		id := v.Int()
		if float64(id) != v.Float() || id <= 0 {
			return 0, false
		}
		return int(id), true
	case gjson.String:
		id, err := strconv.Atoi(v.Str)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

func restRef(v gjson.Result) model.Ref {
	if !v.IsObject() {
		return model.Ref{}
	}
	return model.Ref{
		Name: v.Get("name").String(),
		URL:  v.Get("url").String(),
	}
}

// graphQLRef rebuilds {id name} as {name url}. A null or missing id keeps
// the name and leaves the reference unresolved.
func (p Parser) graphQLRef(v gjson.Result, resource model.Resource) model.Ref {
	if !v.IsObject() {
		return model.Ref{}
	}
	ref := model.Ref{Name: v.Get("name").String()}
	if id, ok := positiveID(v.Get("id")); ok {
		ref.URL = model.ResourceURL(p.restBase, resource, id)
	}
	return ref
}

func (p Parser) graphQLRefURLs(v gjson.Result, resource model.Resource) []string {
	urls := []string{}
	if !v.IsArray() {
		return urls
	}
	v.ForEach(func(_, item gjson.Result) bool {
		if id, ok := positiveID(item.Get("id")); ok {
			urls = append(urls, model.ResourceURL(p.restBase, resource, id))
		}
		return true
	})
	return urls
}

func stringList(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		return out
	}
	v.ForEach(func(_, item gjson.Result) bool {
		if item.Type == gjson.String {
			out = append(out, item.Str)
		}
		return true
	})
	return out
}
