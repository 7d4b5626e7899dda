package stats

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://rickandmortyapi.com/api"

func character(id int, status, species string, locationID int) model.Character {
	c := model.Character{
		ID:       id,
		Name:     fmt.Sprintf("Character %d", id),
		Status:   status,
		Species:  species,
		Gender:   "Male",
		Origin:   model.Ref{Name: "Earth (C-137)", URL: model.ResourceURL(base, model.ResourceLocations, 1)},
		Location: model.Ref{Name: "unknown"},
	}
	if locationID > 0 {
		c.Location = model.Ref{
			Name: fmt.Sprintf("Location %d", locationID),
			URL:  model.ResourceURL(base, model.ResourceLocations, locationID),
		}
	}
	return c
}

func location(id int, typ, dimension string, residents int) model.Location {
	l := model.Location{ID: id, Name: fmt.Sprintf("Location %d", id), Type: typ, Dimension: dimension, Residents: []string{}}
	for i := 1; i <= residents; i++ {
		l.Residents = append(l.Residents, model.ResourceURL(base, model.ResourceCharacters, i))
	}
	return l
}

func TestComputeStatistics_Empty(t *testing.T) {
	s := ComputeStatistics(nil, nil)

	assert.Zero(t, s.TotalCharacters)
	assert.Zero(t, s.TotalLocations)
	assert.Empty(t, s.Status)
	assert.Empty(t, s.LocationTypes)
	assert.Empty(t, s.MostPopulated)
	assert.Zero(t, s.Mapping.SuccessRate)
	assert.Zero(t, s.DataQuality.CompletenessScore)

	// Empty collections serialize as lists, not null.
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"character_status":[]`)
	assert.Contains(t, string(out), `"location_id_issues":[]`)
}

func TestComputeStatistics_MappingSuccessRate(t *testing.T) {
	characters := []model.Character{
		character(1, "Alive", "Human", 3),
		character(2, "Alive", "Human", 0),
	}
	locations := []model.Location{location(3, "Planet", "C-137", 1)}

	s := ComputeStatistics(characters, locations)
	assert.Equal(t, 50.0, s.Mapping.SuccessRate)
	assert.Equal(t, 2, s.Mapping.CharactersWithLocation)
	assert.Equal(t, 1, s.Mapping.CharactersWithValidLocation)
	assert.Empty(t, s.Mapping.Issues)
}

func TestComputeStatistics_MappingIssuesCapped(t *testing.T) {
	var characters []model.Character
	for i := 1; i <= 8; i++ {
		characters = append(characters, character(i, "Alive", "Human", 100+i))
	}

	s := ComputeStatistics(characters, []model.Location{location(1, "Planet", "C-137", 0)})
	assert.Zero(t, s.Mapping.SuccessRate)
	require.Len(t, s.Mapping.Issues, 5)
	assert.Equal(t, MappingIssue{
		CharacterID:   1,
		CharacterName: "Character 1",
		LocationID:    101,
		LocationURL:   base + "/location/101",
	}, s.Mapping.Issues[0])
}

func TestComputeStatistics_Distributions(t *testing.T) {
	characters := []model.Character{
		character(1, "Alive", "Human", 0),
		character(2, "Dead", "Alien", 0),
		character(3, "Alive", "Alien", 0),
		character(4, "unknown", "Human", 0),
		character(5, "Alive", "Robot", 0),
	}

	s := ComputeStatistics(characters, nil)
	assert.Equal(t, Distribution{{"Alive", 3}, {"Dead", 1}, {"unknown", 1}}, s.Status)
	assert.Equal(t, Distribution{{"Alien", 2}, {"Human", 2}, {"Robot", 1}}, s.Species)
	assert.Equal(t, 5, s.Gender.Get("Male"))
	assert.Equal(t, 0, s.Gender.Get("Female"))
	assert.Equal(t, map[string]int{"Alive": 3, "Dead": 1, "unknown": 1}, s.Status.Map())
}

func TestComputeStatistics_MostPopulated(t *testing.T) {
	var locations []model.Location
	for i := 1; i <= 15; i++ {
		locations = append(locations, location(i, "Planet", "C-137", i%4))
	}

	s := ComputeStatistics(nil, locations)
	require.Len(t, s.MostPopulated, DefaultTopN)
	assert.Equal(t, 3, s.MostPopulated[0].ResidentCount)
	assert.Equal(t, 3, s.MostPopulated[0].ID, "ties keep input order")
	for i := 1; i < len(s.MostPopulated); i++ {
		assert.GreaterOrEqual(t, s.MostPopulated[i-1].ResidentCount, s.MostPopulated[i].ResidentCount)
	}

	assert.Len(t, Compute(nil, locations, Options{TopN: 3}).MostPopulated, 3)
	assert.Len(t, Compute(nil, locations, Options{TopN: -1}).MostPopulated, 15)
}

func TestComputeStatistics_Completeness(t *testing.T) {
	tests := []struct {
		name       string
		characters []model.Character
		locations  []model.Location
		want       float64
	}{
		{
			name:       "all checks pass",
			characters: []model.Character{character(1, "Alive", "Human", 1)},
			locations:  []model.Location{location(1, "Planet", "C-137", 1)},
			want:       100,
		},
		{
			// 1 of 4 checks fails on the character, locations are perfect.
			name:       "unknown status",
			characters: []model.Character{character(1, "unknown", "Human", 1)},
			locations:  []model.Location{location(1, "Planet", "C-137", 1)},
			want:       87.5,
		},
		{
			// 2 of 12 checks fail: (1*1 + 2*(6/8)) / 3
			name:       "weighted by size",
			characters: []model.Character{character(1, "Alive", "Human", 1)},
			locations:  []model.Location{location(1, "", "C-137", 1), location(2, "Planet", "C-137", 0)},
			want:       83.33,
		},
		{
			name:      "locations only",
			locations: []model.Location{{ID: 1}},
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeStatistics(tt.characters, tt.locations)
			assert.Equal(t, tt.want, s.DataQuality.CompletenessScore)
		})
	}
}

func TestComputeStatistics_Quality(t *testing.T) {
	c := character(1, "unknown", "", 0)
	c.Origin = model.Ref{}
	c.Location = model.Ref{}

	s := ComputeStatistics([]model.Character{c}, []model.Location{{ID: 1}})
	assert.Equal(t, CharacterQuality{MissingOrigin: 1, MissingLocation: 1, MissingSpecies: 1, UnknownStatus: 1}, s.DataQuality.Characters)
	assert.Equal(t, LocationQuality{MissingType: 1, MissingDimension: 1, NoResidents: 1, EmptyNames: 1}, s.DataQuality.Locations)
	assert.Zero(t, s.Mapping.CharactersWithLocation)
}
