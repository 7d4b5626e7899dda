package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/export"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/stats"
	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// CharacterResponse is one entry of GET /api/characters.
type CharacterResponse struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Species      string `json:"species"`
	OriginName   string `json:"origin_name"`
	LocationID   *int   `json:"location_id"`
	LocationName string `json:"location_name"`
	Image        string `json:"image"`
	EpisodeCount int    `json:"episode_count"`
}

func characterResponse(c model.Character) CharacterResponse {
	r := CharacterResponse{
		ID:           c.ID,
		Name:         c.Name,
		Status:       c.Status,
		Species:      c.Species,
		OriginName:   c.Origin.Name,
		LocationName: c.Location.Name,
		Image:        c.Image,
		EpisodeCount: c.EpisodeCount(),
	}
	if id, ok := c.LocationID(); ok {
		r.LocationID = &id
	}
	return r
}

// LocationResponse is one entry of GET /api/locations.
type LocationResponse struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Dimension     string `json:"dimension"`
	ResidentCount int    `json:"resident_count"`
}

func locationResponse(l model.Location) LocationResponse {
	return LocationResponse{
		ID:            l.ID,
		Name:          l.Name,
		Type:          l.Type,
		Dimension:     l.Dimension,
		ResidentCount: l.ResidentCount(),
	}
}

// CharacterDetail is the body of GET /api/characters/:id.
type CharacterDetail struct {
	CharacterResponse
	Gender          string            `json:"gender"`
	Type            string            `json:"type"`
	LocationDetails *LocationResponse `json:"location_details"`
}

// ExportResponse is the body of POST /api/export.
type ExportResponse struct {
	Status    string       `json:"status"`
	Message   string       `json:"message"`
	Files     export.Files `json:"files"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": c.GetString(requestIDKey),
	})
}

// upstreamFailed answers for an error returned by the client.
func (s *Server) upstreamFailed(c *gin.Context, err error) {
	s.logger.Error().Err(err).
		Str("error_class", string(client.ClassOf(err))).
		Str("request_id", c.GetString(requestIDKey)).
		Msg("Upstream request failed")
	if c.Request.Context().Err() != nil || errors.Is(err, client.ErrContextCancelled) {
		s.fail(c, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	s.fail(c, http.StatusBadGateway, fmt.Sprintf("upstream request failed: %v", err))
}

// window reads limit and offset.
func window(c *gin.Context) (limit, offset int, err error) {
	limit, err = intQuery(c, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if limit < 1 || limit > maxLimit {
		return 0, 0, fmt.Errorf("limit must be between 1 and %d (got %d)", maxLimit, limit)
	}
	offset, err = intQuery(c, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if offset < 0 {
		return 0, 0, fmt.Errorf("offset must be >= 0 (got %d)", offset)
	}
	return limit, offset, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", name, raw)
	}
	return n, nil
}

func boolQuery(c *gin.Context, name string, def bool) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q)", name, raw)
	}
	return b, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "Rick and Morty API Client",
		"transport": s.client.Info().Transport,
		"endpoints": gin.H{
			"health":     "/health",
			"metrics":    "/metrics",
			"characters": "/api/characters?status=&species=&origin=&limit=&offset=",
			"character":  "/api/characters/<id>",
			"locations":  "/api/locations?type=&dimension=&min_residents=&limit=&offset=",
			"statistics": "/api/statistics",
			"export":     "/api/export (POST)",
			"download":   "/api/export/download/<characters|locations>",
			"config":     "/api/config",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"transport": s.client.Info().Transport,
		"api_endpoints": gin.H{
			"rest":    s.settings.API.RESTBaseURL,
			"graphql": s.settings.API.GraphQLURL,
		},
	})
}

// ready reports whether the shared cache is reachable. Without Redis the
// server is always ready.
func (s *Server) ready(c *gin.Context) {
	if s.redis == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "cache": "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Redis ping failed")
		s.fail(c, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "cache": "ok"})
}

func (s *Server) listCharacters(c *gin.Context) {
	limit, offset, err := window(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	characters, err := s.client.FetchAllCharacters(c.Request.Context())
	if err != nil {
		s.upstreamFailed(c, err)
		return
	}
	characters = stats.FilterCharacters(characters, stats.CharacterFilter{
		Status:     c.Query("status"),
		Species:    c.Query("species"),
		OriginName: c.Query("origin"),
	})

	out := make([]CharacterResponse, 0, limit)
	for _, ch := range page(characters, limit, offset) {
		out = append(out, characterResponse(ch))
	}
	c.Header("X-Total-Count", strconv.Itoa(len(characters)))
	c.JSON(http.StatusOK, out)
}

func (s *Server) getCharacter(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		s.fail(c, http.StatusBadRequest, fmt.Sprintf("invalid character id %q", c.Param("id")))
		return
	}

	result, err := s.client.FetchCharacterWithLocation(c.Request.Context(), id)
	if client.IsNotFound(err) {
		s.fail(c, http.StatusNotFound, "Character not found")
		return
	}
	if err != nil {
		s.upstreamFailed(c, err)
		return
	}

	detail := CharacterDetail{
		CharacterResponse: characterResponse(result.Character),
		Gender:            result.Character.Gender,
		Type:              result.Character.Type,
	}
	if result.Location != nil {
		loc := locationResponse(*result.Location)
		detail.LocationDetails = &loc
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) listLocations(c *gin.Context) {
	limit, offset, err := window(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	minResidents, err := intQuery(c, "min_residents", 0)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if minResidents < 0 {
		s.fail(c, http.StatusBadRequest, fmt.Sprintf("min_residents must be >= 0 (got %d)", minResidents))
		return
	}

	locations, err := s.client.FetchAllLocations(c.Request.Context())
	if err != nil {
		s.upstreamFailed(c, err)
		return
	}
	locations = stats.FilterLocations(locations, stats.LocationFilter{
		Type:         c.Query("type"),
		Dimension:    c.Query("dimension"),
		MinResidents: minResidents,
	})

	out := make([]LocationResponse, 0, limit)
	for _, l := range page(locations, limit, offset) {
		out = append(out, locationResponse(l))
	}
	c.Header("X-Total-Count", strconv.Itoa(len(locations)))
	c.JSON(http.StatusOK, out)
}

func (s *Server) dataset(c *gin.Context, characters, locations bool) (model.Dataset, error) {
	var ds model.Dataset
	var err error
	if characters {
		if ds.Characters, err = s.client.FetchAllCharacters(c.Request.Context()); err != nil {
			return ds, fmt.Errorf("fetch characters: %w", err)
		}
	}
	if locations {
		if ds.Locations, err = s.client.FetchAllLocations(c.Request.Context()); err != nil {
			return ds, fmt.Errorf("fetch locations: %w", err)
		}
	}
	return ds, nil
}

func (s *Server) statistics(c *gin.Context) {
	ds, err := s.dataset(c, true, true)
	if err != nil {
		s.upstreamFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, stats.ComputeStatistics(ds.Characters, ds.Locations))
}

func (s *Server) exportData(c *gin.Context) {
	withCharacters, err := boolQuery(c, "include_characters", true)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	withLocations, err := boolQuery(c, "include_locations", true)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !withCharacters && !withLocations {
		s.fail(c, http.StatusBadRequest, "nothing to export")
		return
	}

	ds, err := s.dataset(c, withCharacters, withLocations)
	if err != nil {
		s.upstreamFailed(c, err)
		return
	}

	var files export.Files
	if withCharacters {
		if files.Characters, err = s.exporter.ExportCharacters(ds); err != nil {
			s.exportFailed(c, err)
			return
		}
	}
	if withLocations {
		if files.Locations, err = s.exporter.ExportLocations(ds); err != nil {
			s.exportFailed(c, err)
			return
		}
	}
	if withCharacters && withLocations {
		st := stats.ComputeStatistics(ds.Characters, ds.Locations)
		if files.Statistics, err = s.exporter.ExportJSON(export.StatisticsFile, st); err != nil {
			s.exportFailed(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, ExportResponse{
		Status:    "success",
		Message:   "Data exported successfully",
		Files:     files,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) exportFailed(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("Export failed")
	s.fail(c, http.StatusInternalServerError, fmt.Sprintf("export failed: %v", err))
}

func (s *Server) download(c *gin.Context) {
	var name string
	switch kind := c.Param("type"); kind {
	case "characters":
		name = export.CharactersFile
	case "locations":
		name = export.LocationsFile
	default:
		s.fail(c, http.StatusBadRequest, "invalid file type, use 'characters' or 'locations'")
		return
	}

	path := s.exporter.Path(name)
	if _, err := os.Stat(path); err != nil {
		s.fail(c, http.StatusNotFound, fmt.Sprintf("%s CSV not found, export first", c.Param("type")))
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.FileAttachment(path, "rickandmorty_"+name)
}

func (s *Server) showConfig(c *gin.Context) {
	st := s.settings
	c.JSON(http.StatusOK, gin.H{
		"transport":       s.client.Info().Transport,
		"rest_base_url":   st.API.RESTBaseURL,
		"graphql_url":     st.API.GraphQLURL,
		"user_agent":      st.API.UserAgent,
		"timeout":         st.API.Timeout.String(),
		"max_concurrency": st.API.MaxConcurrency,
		"max_retries":     st.Retry.MaxRetries,
		"initial_backoff": st.Retry.InitialBackoff.String(),
		"cache_enabled":   st.Cache.RedisURL != "",
		"cache_ttl":       st.Cache.TTL.String(),
		"output_dir":      st.Output.Dir,
	})
}
