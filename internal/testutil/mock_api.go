// Package testutil provides an in-process fake of the Rick and Morty API
// serving both the REST and the GraphQL transport from one dataset.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/model"
)

// PageSize is the fixed upstream page size.
const PageSize = 20

// Fault is an injected response returned instead of the real one.
type Fault struct {
	StatusCode int
	Body       string
	Headers    map[string]string

	// Times is how many requests the fault applies to; < 0 means forever.
	Times int
}

// MockAPI is a configurable fake upstream for testing.
type MockAPI struct {
	server *httptest.Server

	mu         sync.RWMutex
	characters []model.Character
	locations  []model.Location
	faults     map[string]*Fault
	counts     map[string]int
	headers    map[string]string
	latency    time.Duration
	etags      bool

	// Tracking
	requestCount     int
	conditionalCount int
	operations       []string
}

// NewMockAPI starts a fake upstream holding the default fixture of 45
// characters (3 pages) and 25 locations (2 pages).
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		faults:  make(map[string]*Fault),
		counts:  make(map[string]int),
		headers: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{resource}", m.handleCollection)
	mux.HandleFunc("GET /api/{resource}/{id}", m.handleSingle)
	mux.HandleFunc("POST /graphql", m.handleGraphQL)

	m.server = httptest.NewServer(m.track(mux))

	ds := Fixture(m.RESTBaseURL(), 45, 25)
	m.characters, m.locations = ds.Characters, ds.Locations
	return m
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// RESTBaseURL returns the REST base endpoint.
func (m *MockAPI) RESTBaseURL() string {
	return m.server.URL + "/api"
}

// GraphQLURL returns the GraphQL endpoint.
func (m *MockAPI) GraphQLURL() string {
	return m.server.URL + "/graphql"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetDataset replaces the served records. Reference URLs may point at any
// host; only their trailing IDs matter.
func (m *MockAPI) SetDataset(ds model.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.characters, m.locations = ds.Characters, ds.Locations
}

// Dataset returns the served records.
func (m *MockAPI) Dataset() model.Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.Dataset{Characters: m.characters, Locations: m.locations}
}

// InjectFault makes requests matching key fail. Keys are
//
//	/api/character            any page of the collection
//	/api/character?page=3     one page
//	/api/location/7           one record
//	graphql:GetCombinedPage   one GraphQL operation
//	graphql:GetCharacters:2   an operation for one page (or id)
//	graphql:GetCombinedPage:2:2
func (m *MockAPI) InjectFault(key string, fault Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := fault
	m.faults[key] = &f
}

// ClearFaults removes all injected faults.
func (m *MockAPI) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[string]*Fault)
}

// SetHeader adds a header to every response.
func (m *MockAPI) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// SetLatency delays every response.
func (m *MockAPI) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// EnableETags makes successful responses carry an ETag and answers
// matching If-None-Match requests with 304.
func (m *MockAPI) EnableETags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags = true
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.operations = nil
	m.counts = make(map[string]int)
}

// RequestCount returns the number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of conditional requests.
func (m *MockAPI) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// Count returns the number of requests that matched key (see InjectFault).
func (m *MockAPI) Count(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[key]
}

// Operations returns the GraphQL operation names received, in order.
func (m *MockAPI) Operations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.operations...)
}

// track counts requests and applies latency and extra headers.
func (m *MockAPI) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCount++
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			m.conditionalCount++
		}
		latency := m.latency
		for k, v := range m.headers {
			w.Header().Set(k, v)
		}
		m.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// matchFault records the request under keys (most specific first) and
// returns the first active fault.
func (m *MockAPI) matchFault(keys ...string) *Fault {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		m.counts[key]++
	}
	for _, key := range keys {
		f, ok := m.faults[key]
		if !ok || f.Times == 0 {
			continue
		}
		if f.Times > 0 {
			f.Times--
		}
		copied := *f
		return &copied
	}
	return nil
}

func writeFault(w http.ResponseWriter, f *Fault) {
	for k, v := range f.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(f.StatusCode)
	if f.Body != "" {
		w.Write([]byte(f.Body))
	}
}

func (m *MockAPI) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.mu.RLock()
	etags := m.etags
	m.mu.RUnlock()

	if etags && status == http.StatusOK {
		etag := fmt.Sprintf(`"%x"`, fnv32(body))
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(status)
	w.Write(body)
}

func nothingHere(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"There is nothing here"}`))
}

func (m *MockAPI) handleCollection(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			nothingHere(w)
			return
		}
		page = n
	}

	if f := m.matchFault(fmt.Sprintf("%s?page=%d", r.URL.Path, page), r.URL.Path); f != nil {
		writeFault(w, f)
		return
	}

	m.mu.RLock()
	var (
		items []any
		total int
	)
	switch resource {
	case "character":
		total = len(m.characters)
		for _, c := range pageOf(m.characters, page) {
			items = append(items, c)
		}
	case "location":
		total = len(m.locations)
		for _, l := range pageOf(m.locations, page) {
			items = append(items, l)
		}
	default:
		m.mu.RUnlock()
		nothingHere(w)
		return
	}
	m.mu.RUnlock()

	pages := pageCount(total)
	if page < 1 || page > pages {
		nothingHere(w)
		return
	}

	info := map[string]any{"count": total, "pages": pages, "next": nil, "prev": nil}
	base := m.RESTBaseURL() + "/" + resource
	if page < pages {
		info["next"] = fmt.Sprintf("%s?page=%d", base, page+1)
	}
	if page > 1 {
		info["prev"] = fmt.Sprintf("%s?page=%d", base, page-1)
	}

	m.writeJSON(w, r, http.StatusOK, map[string]any{"info": info, "results": items})
}

func (m *MockAPI) handleSingle(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	if f := m.matchFault(r.URL.Path); f != nil {
		writeFault(w, f)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Hey! you must provide an id"}`))
		return
	}

	var (
		record   any
		notFound = `{"error":"There is nothing here"}`
	)
	m.mu.RLock()
	switch resource {
	case "character":
		notFound = `{"error":"Character not found"}`
		for _, c := range m.characters {
			if c.ID == id {
				record = c
				break
			}
		}
	case "location":
		notFound = `{"error":"Location not found"}`
		for _, l := range m.locations {
			if l.ID == id {
				record = l
				break
			}
		}
	}
	m.mu.RUnlock()

	if record == nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(notFound))
		return
	}
	m.writeJSON(w, r, http.StatusOK, record)
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (m *MockAPI) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"invalid request body"}]}`))
		return
	}

	op := req.OperationName
	m.mu.Lock()
	m.operations = append(m.operations, op)
	m.mu.Unlock()

	keys := []string{"graphql:" + op}
	switch op {
	case "GetCharacters", "GetLocations":
		keys = append([]string{fmt.Sprintf("graphql:%s:%d", op, intVar(req.Variables, "page", 1))}, keys...)
	case "GetCharacter", "GetLocation":
		keys = append([]string{fmt.Sprintf("graphql:%s:%d", op, intVar(req.Variables, "id", 0))}, keys...)
	case "GetCombinedPage":
		keys = append([]string{fmt.Sprintf("graphql:%s:%d:%d", op,
			intVar(req.Variables, "charPage", 1), intVar(req.Variables, "locPage", 1))}, keys...)
	}
	if f := m.matchFault(keys...); f != nil {
		writeFault(w, f)
		return
	}

	m.mu.RLock()
	data := map[string]any{}
	switch op {
	case "GetCharacters":
		data["characters"] = m.graphQLCharacterPage(intVar(req.Variables, "page", 1))
	case "GetLocations":
		data["locations"] = m.graphQLLocationPage(intVar(req.Variables, "page", 1))
	case "GetAllData":
		data["characters"] = m.graphQLCharacterPage(1)
		data["locations"] = m.graphQLLocationPage(1)
	case "GetCombinedPage":
		data["characters"] = m.graphQLCharacterPage(intVar(req.Variables, "charPage", 1))
		data["locations"] = m.graphQLLocationPage(intVar(req.Variables, "locPage", 1))
	case "GetCharacter":
		data["character"] = m.graphQLCharacter(intVar(req.Variables, "id", 0))
	case "GetLocation":
		data["location"] = m.graphQLLocation(intVar(req.Variables, "id", 0))
	default:
		m.mu.RUnlock()
		m.writeJSON(w, r, http.StatusOK, map[string]any{
			"errors": []map[string]string{{"message": fmt.Sprintf("unknown operation %q", op)}},
		})
		return
	}
	m.mu.RUnlock()

	m.writeJSON(w, r, http.StatusOK, map[string]any{"data": data})
}

func (m *MockAPI) graphQLCharacterPage(page int) map[string]any {
	results := []any{}
	for _, c := range pageOf(m.characters, page) {
		results = append(results, m.graphQLCharacterRecord(c))
	}
	return map[string]any{"info": graphQLInfo(len(m.characters), page), "results": results}
}

func (m *MockAPI) graphQLLocationPage(page int) map[string]any {
	results := []any{}
	for _, l := range pageOf(m.locations, page) {
		results = append(results, m.graphQLLocationRecord(l))
	}
	return map[string]any{"info": graphQLInfo(len(m.locations), page), "results": results}
}

func (m *MockAPI) graphQLCharacter(id int) any {
	for _, c := range m.characters {
		if c.ID == id {
			return m.graphQLCharacterRecord(c)
		}
	}
	return nil
}

func (m *MockAPI) graphQLLocation(id int) any {
	for _, l := range m.locations {
		if l.ID == id {
			return m.graphQLLocationRecord(l)
		}
	}
	return nil
}

func (m *MockAPI) graphQLCharacterRecord(c model.Character) map[string]any {
	episodes := []any{}
	for _, u := range c.Episode {
		if id, ok := model.ExtractID(u); ok {
			episodes = append(episodes, map[string]any{"id": strconv.Itoa(id)})
		}
	}
	return map[string]any{
		"id":       strconv.Itoa(c.ID),
		"name":     c.Name,
		"status":   c.Status,
		"species":  c.Species,
		"type":     c.Type,
		"gender":   c.Gender,
		"origin":   graphQLRef(c.Origin),
		"location": graphQLRef(c.Location),
		"image":    c.Image,
		"episode":  episodes,
		"created":  c.Created,
	}
}

func (m *MockAPI) graphQLLocationRecord(l model.Location) map[string]any {
	names := make(map[int]string, len(m.characters))
	for _, c := range m.characters {
		names[c.ID] = c.Name
	}
	residents := []any{}
	for _, u := range l.Residents {
		if id, ok := model.ExtractID(u); ok {
			residents = append(residents, map[string]any{"id": strconv.Itoa(id), "name": names[id]})
		}
	}
	return map[string]any{
		"id":        strconv.Itoa(l.ID),
		"name":      l.Name,
		"type":      l.Type,
		"dimension": l.Dimension,
		"residents": residents,
		"created":   l.Created,
	}
}

func graphQLRef(ref model.Ref) map[string]any {
	out := map[string]any{"id": nil, "name": ref.Name}
	if id, ok := ref.ID(); ok {
		out["id"] = strconv.Itoa(id)
	}
	return out
}

func graphQLInfo(total, page int) map[string]any {
	pages := pageCount(total)
	info := map[string]any{"count": total, "pages": pages, "next": nil, "prev": nil}
	if page < pages {
		info["next"] = page + 1
	}
	if page > 1 && page <= pages+1 {
		info["prev"] = page - 1
	}
	return info
}

func pageCount(total int) int {
	return (total + PageSize - 1) / PageSize
}

func pageOf[T any](items []T, page int) []T {
	if page < 1 {
		return nil
	}
	start := (page - 1) * PageSize
	if start >= len(items) {
		return nil
	}
	end := start + PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func intVar(vars map[string]any, name string, def int) int {
	switch v := vars[name].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func fnv32(b []byte) uint32 {
	h := uint32(2166136261)
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

// Fixture builds a deterministic dataset. Every fifth character has an
// unknown location; the rest live at location ((i-1) % nLocs) + 1. Episode
// counts vary between 1 and 3.
func Fixture(restBase string, nChars, nLocs int) model.Dataset {
	restBase = strings.TrimRight(restBase, "/")
	statuses := []string{"Alive", "Dead", "unknown"}
	species := []string{"Human", "Alien", "Robot"}
	genders := []string{"Male", "Female", "unknown"}
	locTypes := []string{"Planet", "Space station", "Microverse", "Dimension"}
	dims := []string{"Dimension C-137", "Replacement Dimension", "unknown"}

	locations := make([]model.Location, 0, nLocs)
	for i := 1; i <= nLocs; i++ {
		locations = append(locations, model.Location{
			ID:        i,
			Name:      fmt.Sprintf("Location %d", i),
			Type:      locTypes[(i-1)%len(locTypes)],
			Dimension: dims[(i-1)%len(dims)],
			Residents: []string{},
			URL:       model.ResourceURL(restBase, model.ResourceLocations, i),
			Created:   "2017-11-10T12:42:04.162Z",
		})
	}

	characters := make([]model.Character, 0, nChars)
	for i := 1; i <= nChars; i++ {
		c := model.Character{
			ID:       i,
			Name:     fmt.Sprintf("Character %d", i),
			Status:   statuses[(i-1)%len(statuses)],
			Species:  species[(i-1)%len(species)],
			Gender:   genders[(i-1)%len(genders)],
			Origin:   model.Ref{Name: "unknown"},
			Location: model.Ref{Name: "unknown"},
			Image:    fmt.Sprintf("%s/character/avatar/%d.jpeg", restBase, i),
			URL:      model.ResourceURL(restBase, model.ResourceCharacters, i),
			Created:  "2017-11-04T18:48:46.250Z",
		}
		for e := 1; e <= 1+(i-1)%3; e++ {
			c.Episode = append(c.Episode, model.ResourceURL(restBase, model.ResourceEpisodes, e))
		}
		if nLocs > 0 {
			origin := locations[(i*7)%nLocs]
			c.Origin = model.Ref{Name: origin.Name, URL: origin.URL}
			if i%5 != 0 {
				loc := &locations[(i-1)%nLocs]
				c.Location = model.Ref{Name: loc.Name, URL: loc.URL}
				loc.Residents = append(loc.Residents, c.URL)
			}
		}
		characters = append(characters, c)
	}

	return model.Dataset{Characters: characters, Locations: locations}
}
