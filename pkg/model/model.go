// Package model defines the canonical in-memory representation of characters
// and locations shared by every transport.
package model

import (
	"strconv"
	"strings"
)

// Resource identifies one of the two fetchable collections.
type Resource string

const (
	// ResourceCharacters is the character collection.
	ResourceCharacters Resource = "character"

	// ResourceLocations is the location collection.
	ResourceLocations Resource = "location"

	// ResourceEpisodes only appears in back-reference URLs; it is never fetched.
	ResourceEpisodes Resource = "episode"
)

// RESTPath returns the path segment used by the REST transport.
func (r Resource) RESTPath() string {
	return string(r)
}

// GraphQLRoot returns the collection query root used by the GraphQL transport.
func (r Resource) GraphQLRoot() string {
	return string(r) + "s"
}

// String implements fmt.Stringer.
func (r Resource) String() string {
	return string(r) + "s"
}

// Ref is a weak reference to another record: a display name plus an optional
// URL whose trailing path segment carries the numeric ID.
type Ref struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID resolves the reference to a numeric ID.
// ok is false when the URL is absent or does not end in a positive integer.
func (r Ref) ID() (id int, ok bool) {
	return ExtractID(r.URL)
}

// HasURL reports whether the reference carries a URL at all.
func (r Ref) HasURL() bool {
	return strings.TrimSpace(r.URL) != ""
}

// ExtractID parses the trailing path segment of a reference URL.
//
//	ExtractID("https://rickandmortyapi.com/api/location/7") // 7, true
//	ExtractID("")                                           // 0, false
func ExtractID(url string) (int, bool) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return 0, false
	}
	segment := url[strings.LastIndex(url, "/")+1:]
	id, err := strconv.Atoi(segment)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ResourceURL builds the canonical back-reference URL for a record.
func ResourceURL(base string, resource Resource, id int) string {
	return strings.TrimRight(base, "/") + "/" + resource.RESTPath() + "/" + strconv.Itoa(id)
}

// Character is one character record.
type Character struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Species  string   `json:"species"`
	Type     string   `json:"type"`
	Gender   string   `json:"gender"`
	Origin   Ref      `json:"origin"`
	Location Ref      `json:"location"`
	Image    string   `json:"image"`
	Episode  []string `json:"episode"`
	URL      string   `json:"url"`
	Created  string   `json:"created"`
}

// LocationID resolves the character's current location reference.
func (c Character) LocationID() (int, bool) {
	return c.Location.ID()
}

// OriginID resolves the character's origin reference.
func (c Character) OriginID() (int, bool) {
	return c.Origin.ID()
}

// EpisodeCount returns the number of episodes the character appears in.
func (c Character) EpisodeCount() int {
	return len(c.Episode)
}

// Location is one location record. Residents are weak references; the
// characters themselves are owned by the dataset.
type Location struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Dimension string   `json:"dimension"`
	Residents []string `json:"residents"`
	URL       string   `json:"url"`
	Created   string   `json:"created"`
}

// ResidentIDs resolves resident URLs, skipping the ones that do not resolve.
func (l Location) ResidentIDs() []int {
	ids := make([]int, 0, len(l.Residents))
	for _, u := range l.Residents {
		if id, ok := ExtractID(u); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResidentCount returns the number of resident references.
func (l Location) ResidentCount() int {
	return len(l.Residents)
}

// PaginationInfo describes where a page sits in its collection.
// Next and Prev are empty when there is no such page.
type PaginationInfo struct {
	Count int    `json:"count"`
	Pages int    `json:"pages"`
	Next  string `json:"next,omitempty"`
	Prev  string `json:"prev,omitempty"`
}

// HasNext reports whether the upstream advertised a following page.
func (p PaginationInfo) HasNext() bool {
	return p.Next != ""
}

// Dataset is the pair of collections materialized for one run.
type Dataset struct {
	Characters []Character `json:"characters"`
	Locations  []Location  `json:"locations"`
}

// LocationIndex maps location IDs to locations. Later duplicates do not
// replace the first occurrence.
func LocationIndex(locations []Location) map[int]Location {
	index := make(map[int]Location, len(locations))
	for _, loc := range locations {
		if _, exists := index[loc.ID]; !exists {
			index[loc.ID] = loc
		}
	}
	return index
}

// CharacterIndex maps character IDs to characters, first occurrence wins.
func CharacterIndex(characters []Character) map[int]Character {
	index := make(map[int]Character, len(characters))
	for _, c := range characters {
		if _, exists := index[c.ID]; !exists {
			index[c.ID] = c
		}
	}
	return index
}

// CharacterWithLocation is a character plus its resolved current location.
// Location is nil when the character has no resolvable location or the
// location lookup failed.
type CharacterWithLocation struct {
	Character Character `json:"character"`
	Location  *Location `json:"location"`
}

// ImplementationInfo describes a transport implementation.
type ImplementationInfo struct {
	Transport                        string `json:"transport"`
	Endpoint                         string `json:"endpoint"`
	SupportsBatchQueries             bool   `json:"supports_batch_queries"`
	SupportsRelationshipOptimization bool   `json:"supports_relationship_optimization"`

	// EstimatedAPICalls is the request count for a full dataset fetch,
	// derived from the last observed page counts. 0 until both resources
	// have been fetched once.
	EstimatedAPICalls int `json:"estimated_api_calls"`
}
