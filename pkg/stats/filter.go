package stats

import (
	"strings"

	"github.com/Sternrassler/rickmorty-client/pkg/model"
)

// CharacterFilter selects characters. Empty fields match everything;
// comparisons ignore case.
type CharacterFilter struct {
	Status       string `json:"status,omitempty"`
	Species      string `json:"species,omitempty"`
	Gender       string `json:"gender,omitempty"`
	LocationName string `json:"location,omitempty"`
	OriginName   string `json:"origin,omitempty"`
}

// Match reports whether c passes the filter.
func (f CharacterFilter) Match(c model.Character) bool {
	return matches(f.Status, c.Status) &&
		matches(f.Species, c.Species) &&
		matches(f.Gender, c.Gender) &&
		matches(f.LocationName, c.Location.Name) &&
		matches(f.OriginName, c.Origin.Name)
}

// LocationFilter selects locations. Empty fields match everything;
// comparisons ignore case.
type LocationFilter struct {
	Type         string `json:"type,omitempty"`
	Dimension    string `json:"dimension,omitempty"`
	MinResidents int    `json:"min_residents,omitempty"`
}

// Match reports whether l passes the filter.
func (f LocationFilter) Match(l model.Location) bool {
	return matches(f.Type, l.Type) &&
		matches(f.Dimension, l.Dimension) &&
		l.ResidentCount() >= f.MinResidents
}

// FilterCharacters returns the characters matching f, in input order.
func FilterCharacters(characters []model.Character, f CharacterFilter) []model.Character {
	out := make([]model.Character, 0, len(characters))
	for _, c := range characters {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// FilterLocations returns the locations matching f, in input order.
func FilterLocations(locations []model.Location, f LocationFilter) []model.Location {
	out := make([]model.Location, 0, len(locations))
	for _, l := range locations {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

func matches(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}
