package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/rickmorty-client/internal/config"
	"github.com/Sternrassler/rickmorty-client/internal/testutil"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, transport rickmorty.Transport) (*Server, *testutil.MockAPI) {
	t.Helper()
	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	settings := config.Default()
	settings.API.RESTBaseURL = mock.RESTBaseURL()
	settings.API.GraphQLURL = mock.GraphQLURL()
	settings.Retry.InitialBackoff = time.Millisecond
	settings.Output.Dir = t.TempDir()

	c, err := rickmorty.New(transport, settings.ClientConfig(nil))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return New(c, settings), mock
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv, mock := testServer(t, rickmorty.TransportREST)

	w := do(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-ID"), "req_"))

	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "rest", body["transport"])
	assert.Zero(t, mock.RequestCount(), "health must not call upstream")
}

func TestRequestIDPassthrough(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestListCharacters(t *testing.T) {
	for _, transport := range []rickmorty.Transport{rickmorty.TransportREST, rickmorty.TransportGraphQL} {
		t.Run(string(transport), func(t *testing.T) {
			srv, _ := testServer(t, transport)

			w := do(t, srv, http.MethodGet, "/api/characters")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "45", w.Header().Get("X-Total-Count"))

			chars := decode[[]CharacterResponse](t, w)
			require.Len(t, chars, 45)
			require.NotNil(t, chars[0].LocationID)
			assert.Equal(t, 1, *chars[0].LocationID)
			assert.Nil(t, chars[4].LocationID, "character 5 has an unknown location")
			assert.Equal(t, "unknown", chars[4].LocationName)
		})
	}
}

func TestListCharacters_FiltersAndWindow(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)

	tests := []struct {
		query   string
		wantLen int
		wantID  int
		total   string
	}{
		{"status=alive&species=HUMAN", 15, 1, "15"},
		{"status=Dead", 15, 2, "15"},
		{"limit=10&offset=40", 5, 41, "45"},
		{"limit=1000", 45, 1, "45"},
		{"offset=45", 0, 0, "45"},
		{"origin=nowhere", 0, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, "/api/characters?"+tt.query)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.total, w.Header().Get("X-Total-Count"))

			chars := decode[[]CharacterResponse](t, w)
			require.Len(t, chars, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantID, chars[0].ID)
			}
		})
	}
}

func TestListCharacters_BadQuery(t *testing.T) {
	srv, mock := testServer(t, rickmorty.TransportREST)

	for _, q := range []string{"limit=0", "limit=1001", "limit=abc", "offset=-1"} {
		w := do(t, srv, http.MethodGet, "/api/characters?"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)

		body := decode[map[string]any](t, w)
		assert.NotEmpty(t, body["error"], q)
		assert.NotEmpty(t, body["request_id"], q)
	}
	assert.Zero(t, mock.RequestCount(), "invalid queries must not call upstream")
}

func TestGetCharacter(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)

	w := do(t, srv, http.MethodGet, "/api/characters/1")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[CharacterDetail](t, w)
	assert.Equal(t, "Character 1", detail.Name)
	require.NotNil(t, detail.LocationDetails)
	assert.Equal(t, 1, detail.LocationDetails.ID)

	w = do(t, srv, http.MethodGet, "/api/characters/5")
	require.Equal(t, http.StatusOK, w.Code)
	raw := decode[map[string]any](t, w)
	assert.Contains(t, raw, "location_details")
	assert.Nil(t, raw["location_details"])

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/characters/999").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/characters/abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/characters/0").Code)
}

func TestGetCharacter_LocationFailureTolerated(t *testing.T) {
	srv, mock := testServer(t, rickmorty.TransportREST)
	mock.InjectFault("/api/location/1", testutil.Fault{StatusCode: 500, Times: -1})

	w := do(t, srv, http.MethodGet, "/api/characters/1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[CharacterDetail](t, w).LocationDetails)
}

func TestListLocations(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)

	tests := []struct {
		query   string
		wantLen int
	}{
		{"", 25},
		{"type=planet", 7},
		{"min_residents=1", 20},
		{"dimension=unknown&limit=3", 3},
	}
	for _, tt := range tests {
		w := do(t, srv, http.MethodGet, "/api/locations?"+tt.query)
		require.Equal(t, http.StatusOK, w.Code, tt.query)
		assert.Len(t, decode[[]LocationResponse](t, w), tt.wantLen, tt.query)
	}

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/locations?min_residents=-1").Code)
}

func TestStatistics(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportGraphQL)

	w := do(t, srv, http.MethodGet, "/api/statistics")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 45, body["total_characters"])
	assert.EqualValues(t, 25, body["total_locations"])
	assert.Contains(t, body, "data_quality")
}

func TestUpstreamFailure(t *testing.T) {
	srv, mock := testServer(t, rickmorty.TransportREST)
	mock.InjectFault("/api/character?page=1", testutil.Fault{StatusCode: 503, Times: -1})

	w := do(t, srv, http.MethodGet, "/api/characters")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["error"], "upstream request failed")
}

func TestExportAndDownload(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)

	w := do(t, srv, http.MethodGet, "/api/export/download/characters")
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing exported yet")

	w = do(t, srv, http.MethodPost, "/api/export")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ExportResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.Files.Characters)
	assert.NotEmpty(t, resp.Files.Locations)
	assert.NotEmpty(t, resp.Files.Statistics)

	w = do(t, srv, http.MethodGet, "/api/export/download/characters")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "rickandmorty_characters.csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "id,name,status,species,origin_name,location_id"))

	w = do(t, srv, http.MethodGet, "/api/export/download/locations")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 26, strings.Count(w.Body.String(), "\n"), "header plus 25 rows")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/export/download/episodes").Code)
}

func TestExport_Selection(t *testing.T) {
	srv, mock := testServer(t, rickmorty.TransportREST)

	w := do(t, srv, http.MethodPost, "/api/export?include_locations=false")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ExportResponse](t, w)
	assert.NotEmpty(t, resp.Files.Characters)
	assert.Empty(t, resp.Files.Locations)
	assert.Empty(t, resp.Files.Statistics)
	assert.Zero(t, mock.Count("/api/location"))

	assert.Equal(t, http.StatusBadRequest,
		do(t, srv, http.MethodPost, "/api/export?include_characters=false&include_locations=false").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/export?include_characters=maybe").Code)
}

func TestConfig(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportGraphQL)

	w := do(t, srv, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "graphql", body["transport"])
	assert.Equal(t, false, body["cache_enabled"])
	assert.EqualValues(t, 3, body["max_retries"])
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)
	do(t, srv, http.MethodGet, "/api/locations")

	w := do(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rickmorty_requests_total")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestReady_WithoutRedis(t *testing.T) {
	srv, _ := testServer(t, rickmorty.TransportREST)

	w := do(t, srv, http.MethodGet, "/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disabled", decode[map[string]any](t, w)["cache"])
}
