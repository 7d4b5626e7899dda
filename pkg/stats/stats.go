// Package stats computes aggregate statistics over a fetched dataset.
// Everything here is a pure function of the two record lists.
package stats

import (
	"math"
	"sort"

	"github.com/Sternrassler/rickmorty-client/pkg/model"
)

const (
	// DefaultTopN is the number of most populated locations reported.
	DefaultTopN = 10

	// maxMappingIssues bounds the unresolved references kept for display.
	maxMappingIssues = 5

	// checksPerRecord is the number of quality checks applied to each record.
	checksPerRecord = 4
)

// Count is one bucket of a distribution.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Distribution is a list of buckets sorted by count descending, then key.
type Distribution []Count

// Get returns the count for key, 0 if absent.
func (d Distribution) Get(key string) int {
	for _, c := range d {
		if c.Key == key {
			return c.Count
		}
	}
	return 0
}

// Map returns the distribution as a map.
func (d Distribution) Map() map[string]int {
	m := make(map[string]int, len(d))
	for _, c := range d {
		m[c.Key] = c.Count
	}
	return m
}

// PopulatedLocation is one entry of the most populated locations list.
type PopulatedLocation struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Dimension     string `json:"dimension"`
	ResidentCount int    `json:"resident_count"`
}

// MappingIssue is a character whose location id resolves to no fetched location.
type MappingIssue struct {
	CharacterID   int    `json:"character_id"`
	CharacterName string `json:"character_name"`
	LocationID    int    `json:"location_id"`
	LocationURL   string `json:"location_url"`
}

// Mapping describes how well character locations resolve against the
// fetched locations.
type Mapping struct {
	TotalCharacters             int            `json:"total_characters"`
	CharactersWithLocation      int            `json:"characters_with_location"`
	CharactersWithValidLocation int            `json:"characters_with_valid_location_mapping"`
	SuccessRate                 float64        `json:"mapping_success_rate"`
	Issues                      []MappingIssue `json:"location_id_issues"`
}

// CharacterQuality counts character records failing each quality check.
type CharacterQuality struct {
	MissingOrigin   int `json:"missing_origin"`
	MissingLocation int `json:"missing_location"`
	MissingSpecies  int `json:"missing_species"`
	UnknownStatus   int `json:"unknown_status"`
}

func (q CharacterQuality) total() int {
	return q.MissingOrigin + q.MissingLocation + q.MissingSpecies + q.UnknownStatus
}

// LocationQuality counts location records failing each quality check.
type LocationQuality struct {
	MissingType      int `json:"missing_type"`
	MissingDimension int `json:"missing_dimension"`
	NoResidents      int `json:"no_residents"`
	EmptyNames       int `json:"empty_names"`
}

func (q LocationQuality) total() int {
	return q.MissingType + q.MissingDimension + q.NoResidents + q.EmptyNames
}

// DataQuality summarizes missing or unknown fields.
type DataQuality struct {
	Characters CharacterQuality `json:"character_data_quality"`
	Locations  LocationQuality  `json:"location_data_quality"`

	// CompletenessScore is the share of passed checks in percent, rounded
	// to two decimals. 0 for an empty dataset.
	CompletenessScore float64 `json:"overall_completeness_score"`
}

// Statistics is the full report over one dataset.
type Statistics struct {
	TotalCharacters int `json:"total_characters"`
	TotalLocations  int `json:"total_locations"`

	Status        Distribution `json:"character_status"`
	Species       Distribution `json:"character_species"`
	Gender        Distribution `json:"character_gender"`
	LocationTypes Distribution `json:"location_types"`
	Dimensions    Distribution `json:"location_dimensions"`

	MostPopulated []PopulatedLocation `json:"most_populated_locations"`
	Mapping       Mapping             `json:"character_location_mapping"`
	DataQuality   DataQuality         `json:"data_quality"`
}

// Options tunes Compute.
type Options struct {
	// TopN limits MostPopulated. 0 means DefaultTopN; negative keeps all.
	TopN int
}

// ComputeStatistics computes statistics with default options.
func ComputeStatistics(characters []model.Character, locations []model.Location) Statistics {
	return Compute(characters, locations, Options{})
}

// Compute computes statistics over characters and locations.
func Compute(characters []model.Character, locations []model.Location, opts Options) Statistics {
	return Statistics{
		TotalCharacters: len(characters),
		TotalLocations:  len(locations),
		Status:          distribution(characters, func(c model.Character) string { return c.Status }),
		Species:         distribution(characters, func(c model.Character) string { return c.Species }),
		Gender:          distribution(characters, func(c model.Character) string { return c.Gender }),
		LocationTypes:   distribution(locations, func(l model.Location) string { return l.Type }),
		Dimensions:      distribution(locations, func(l model.Location) string { return l.Dimension }),
		MostPopulated:   mostPopulated(locations, opts.TopN),
		Mapping:         mapping(characters, locations),
		DataQuality:     dataQuality(characters, locations),
	}
}

func distribution[T any](items []T, key func(T) string) Distribution {
	counts := make(map[string]int)
	for _, item := range items {
		counts[key(item)]++
	}
	d := make(Distribution, 0, len(counts))
	for k, n := range counts {
		d = append(d, Count{Key: k, Count: n})
	}
	sort.Slice(d, func(i, j int) bool {
		if d[i].Count != d[j].Count {
			return d[i].Count > d[j].Count
		}
		return d[i].Key < d[j].Key
	})
	return d
}

func mostPopulated(locations []model.Location, topN int) []PopulatedLocation {
	if topN == 0 {
		topN = DefaultTopN
	}
	out := make([]PopulatedLocation, 0, len(locations))
	for _, l := range locations {
		out = append(out, PopulatedLocation{
			ID:            l.ID,
			Name:          l.Name,
			Type:          l.Type,
			Dimension:     l.Dimension,
			ResidentCount: l.ResidentCount(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ResidentCount > out[j].ResidentCount
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func mapping(characters []model.Character, locations []model.Location) Mapping {
	index := model.LocationIndex(locations)
	m := Mapping{
		TotalCharacters: len(characters),
		Issues:          []MappingIssue{},
	}

	for _, c := range characters {
		if c.Location.Name == "" {
			continue
		}
		m.CharactersWithLocation++

		id, ok := c.LocationID()
		if !ok {
			continue
		}
		if _, found := index[id]; found {
			m.CharactersWithValidLocation++
			continue
		}
		if len(m.Issues) < maxMappingIssues {
			m.Issues = append(m.Issues, MappingIssue{
				CharacterID:   c.ID,
				CharacterName: c.Name,
				LocationID:    id,
				LocationURL:   c.Location.URL,
			})
		}
	}

	if len(characters) > 0 {
		m.SuccessRate = float64(m.CharactersWithValidLocation) / float64(len(characters)) * 100
	}
	return m
}

func dataQuality(characters []model.Character, locations []model.Location) DataQuality {
	var q DataQuality
	for _, c := range characters {
		if c.Origin.Name == "" {
			q.Characters.MissingOrigin++
		}
		if c.Location.Name == "" {
			q.Characters.MissingLocation++
		}
		if c.Species == "" {
			q.Characters.MissingSpecies++
		}
		if c.Status == "unknown" {
			q.Characters.UnknownStatus++
		}
	}
	for _, l := range locations {
		if l.Type == "" {
			q.Locations.MissingType++
		}
		if l.Dimension == "" {
			q.Locations.MissingDimension++
		}
		if len(l.Residents) == 0 {
			q.Locations.NoResidents++
		}
		if l.Name == "" {
			q.Locations.EmptyNames++
		}
	}
	q.CompletenessScore = completeness(q, len(characters), len(locations))
	return q
}

// completeness weighs each resource's passed-check ratio by its size.
func completeness(q DataQuality, chars, locs int) float64 {
	if chars == 0 && locs == 0 {
		return 0
	}
	charScore, locScore := 1.0, 1.0
	if chars > 0 {
		charScore = float64(chars*checksPerRecord-q.Characters.total()) / float64(chars*checksPerRecord)
	}
	if locs > 0 {
		locScore = float64(locs*checksPerRecord-q.Locations.total()) / float64(locs*checksPerRecord)
	}
	overall := (charScore*float64(chars) + locScore*float64(locs)) / float64(chars+locs)
	return math.Round(overall*100*100) / 100
}
