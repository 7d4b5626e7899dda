package benchmark

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/rickmorty-client/internal/testutil"
	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		samples []time.Duration
		want    Summary
	}{
		{name: "empty", samples: nil, want: Summary{Times: []float64{}}},
		{
			name:    "single sample",
			samples: []time.Duration{2 * time.Second},
			want:    Summary{Times: []float64{2}, Mean: 2, Min: 2, Max: 2},
		},
		{
			name:    "sample stddev",
			samples: []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second},
			want:    Summary{Times: []float64{1, 2, 3}, Mean: 2, Min: 1, Max: 3, StdDev: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.samples)
			assert.Equal(t, tt.want.Times, got.Times)
			assert.InDelta(t, tt.want.Mean, got.Mean, 1e-9)
			assert.InDelta(t, tt.want.Min, got.Min, 1e-9)
			assert.InDelta(t, tt.want.Max, got.Max, 1e-9)
			assert.InDelta(t, tt.want.StdDev, got.StdDev, 1e-9)
		})
	}
}

func newRunner(mock *testutil.MockAPI) *Runner {
	cfg := client.DefaultConfig()
	cfg.RESTBaseURL = mock.RESTBaseURL()
	cfg.GraphQLURL = mock.GraphQLURL()
	return NewRunner(cfg)
}

func TestRunner_Run(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	report, err := newRunner(mock).Run(context.Background(), Options{Iterations: 2, IncludeOptimized: true})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	for _, r := range []TransportResult{report.REST, report.GraphQL} {
		assert.Equal(t, 2, r.Iterations)
		assert.Len(t, r.Total.Times, 2)
		assert.Equal(t, 45, r.CharacterCount)
		assert.Equal(t, 25, r.LocationCount)
		assert.Equal(t, 5, r.APICalls, r.Transport)
	}

	require.NotNil(t, report.Optimized)
	assert.Equal(t, 3, report.Optimized.APICalls)
	assert.InDelta(t, 40.0, report.Optimized.ReductionPercent, 1e-9)
	assert.InDelta(t, 40.0, report.Compared.APICallReductionPercent, 1e-9)
	assert.Positive(t, report.Compared.SpeedFactor)

	// 2 iterations x 5 requests per transport + 3 optimized.
	assert.Equal(t, 23, mock.RequestCount())
}

func TestRunner_InvalidIterations(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	_, err := newRunner(mock).Run(context.Background(), Options{Iterations: 0})
	assert.ErrorContains(t, err, "iterations must be >= 1")
}

func TestRunner_FailureAborts(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.InjectFault("graphql:GetCharacters:2", testutil.Fault{StatusCode: 400, Times: -1})

	_, err := newRunner(mock).Run(context.Background(), Options{Iterations: 1})
	assert.ErrorContains(t, err, "graphql characters")
}

func TestReport_Save(t *testing.T) {
	report := &Report{
		RunID:     "run-1",
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		REST:      TransportResult{Transport: "rest", APICalls: 49},
	}

	path := filepath.Join(t.TempDir(), "nested", "bench.json")
	saved, err := report.Save(path)
	require.NoError(t, err)
	assert.Equal(t, path, saved)

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 49, got.REST.APICalls)
	assert.Nil(t, got.Optimized)
}

func TestReport_SaveDefaultName(t *testing.T) {
	t.Chdir(t.TempDir())
	report := &Report{Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}

	saved, err := report.Save("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultDir, "comparison_20250102_030405.json"), saved)
}
