// Package export writes a dataset to CSV and statistics to JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default file names inside an export directory.
const (
	CharactersFile = "characters.csv"
	LocationsFile  = "locations.csv"
	StatisticsFile = "statistics.json"

	// maxResidentNames bounds the names listed per location.
	maxResidentNames = 20
)

var (
	// CharacterHeader is the column order of the characters CSV.
	CharacterHeader = []string{
		"id", "name", "status", "species", "origin_name",
		"location_id", "location_name", "location_type", "location_dimension",
		"episode_count",
	}

	// LocationHeader is the column order of the locations CSV.
	LocationHeader = []string{"id", "name", "type", "dimension", "resident_count", "character_names"}
)

// CharacterRow projects a character. Location type and dimension are filled
// when the location id resolves in locations; an unresolved id leaves the
// location_id column empty.
func CharacterRow(c model.Character, locations map[int]model.Location) []string {
	var locationID, locationName, locationType, locationDimension string
	locationName = c.Location.Name
	if id, ok := c.LocationID(); ok {
		locationID = strconv.Itoa(id)
		if loc, found := locations[id]; found {
			locationName = loc.Name
			locationType = loc.Type
			locationDimension = loc.Dimension
		}
	}
	return []string{
		strconv.Itoa(c.ID),
		c.Name,
		c.Status,
		c.Species,
		c.Origin.Name,
		locationID,
		locationName,
		locationType,
		locationDimension,
		strconv.Itoa(c.EpisodeCount()),
	}
}

// LocationRow projects a location. Residents found in characters are listed
// by name, "; "-separated, at most 20 followed by "... and N more".
func LocationRow(l model.Location, characters map[int]model.Character) []string {
	var names []string
	for _, id := range l.ResidentIDs() {
		if c, ok := characters[id]; ok {
			names = append(names, c.Name)
		}
	}
	if len(names) > maxResidentNames {
		extra := len(names) - maxResidentNames
		names = append(names[:maxResidentNames:maxResidentNames], fmt.Sprintf("... and %d more", extra))
	}
	return []string{
		strconv.Itoa(l.ID),
		l.Name,
		l.Type,
		l.Dimension,
		strconv.Itoa(l.ResidentCount()),
		strings.Join(names, "; "),
	}
}

// WriteCharactersCSV writes the characters CSV, header included.
func WriteCharactersCSV(w io.Writer, characters []model.Character, locations []model.Location) error {
	index := model.LocationIndex(locations)
	rows := make([][]string, 0, len(characters))
	for _, c := range characters {
		rows = append(rows, CharacterRow(c, index))
	}
	return writeCSV(w, CharacterHeader, rows)
}

// WriteLocationsCSV writes the locations CSV, header included.
func WriteLocationsCSV(w io.Writer, locations []model.Location, characters []model.Character) error {
	index := model.CharacterIndex(characters)
	rows := make([][]string, 0, len(locations))
	for _, l := range locations {
		rows = append(rows, LocationRow(l, index))
	}
	return writeCSV(w, LocationHeader, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Files lists the paths written by an export.
type Files struct {
	Characters string `json:"characters,omitempty"`
	Locations  string `json:"locations,omitempty"`
	Statistics string `json:"statistics,omitempty"`
}

// Exporter writes files into one directory.
type Exporter struct {
	dir    string
	logger zerolog.Logger
}

// NewExporter creates an exporter writing into dir. The directory is
// created on first write.
func NewExporter(dir string) *Exporter {
	return &Exporter{
		dir:    dir,
		logger: log.With().Str("component", "exporter").Logger(),
	}
}

// Dir returns the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Path returns the full path of name inside the output directory.
func (e *Exporter) Path(name string) string {
	return filepath.Join(e.dir, name)
}

// Export writes both CSV files.
func (e *Exporter) Export(ds model.Dataset) (Files, error) {
	chars, err := e.ExportCharacters(ds)
	if err != nil {
		return Files{}, err
	}
	locs, err := e.ExportLocations(ds)
	if err != nil {
		return Files{}, err
	}
	return Files{Characters: chars, Locations: locs}, nil
}

// ExportCharacters writes characters.csv. ds.Locations is used only to
// enrich the location columns and may be empty.
func (e *Exporter) ExportCharacters(ds model.Dataset) (string, error) {
	path, err := e.writeFile(CharactersFile, func(w io.Writer) error {
		return WriteCharactersCSV(w, ds.Characters, ds.Locations)
	})
	if err != nil {
		return "", err
	}
	e.logger.Info().Str("path", path).Int("records", len(ds.Characters)).Msg("Wrote characters CSV")
	return path, nil
}

// ExportLocations writes locations.csv. ds.Characters is used only to list
// resident names and may be empty.
func (e *Exporter) ExportLocations(ds model.Dataset) (string, error) {
	path, err := e.writeFile(LocationsFile, func(w io.Writer) error {
		return WriteLocationsCSV(w, ds.Locations, ds.Characters)
	})
	if err != nil {
		return "", err
	}
	e.logger.Info().Str("path", path).Int("records", len(ds.Locations)).Msg("Wrote locations CSV")
	return path, nil
}

// ExportJSON writes v as indented JSON to name.
func (e *Exporter) ExportJSON(name string, v any) (string, error) {
	path, err := e.writeFile(name, func(w io.Writer) error {
		return WriteJSON(w, v)
	})
	if err != nil {
		return "", err
	}
	e.logger.Info().Str("path", path).Msg("Wrote JSON")
	return path, nil
}

// writeFile writes through a temporary file renamed into place, so readers
// never see a partial file.
func (e *Exporter) writeFile(name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", e.dir, err)
	}
	path := e.Path(name)

	tmp, err := os.CreateTemp(e.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", path, err)
	}
	return path, nil
}
