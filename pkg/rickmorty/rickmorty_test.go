package rickmorty

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/rickmorty-client/internal/testutil"
	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(mock *testutil.MockAPI) client.Config {
	cfg := client.DefaultConfig()
	cfg.RESTBaseURL = mock.RESTBaseURL()
	cfg.GraphQLURL = mock.GraphQLURL()
	cfg.Retry.InitialBackoff = time.Millisecond
	return cfg
}

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"rest", TransportREST, false},
		{" GraphQL ", TransportGraphQL, false},
		{"soap", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTransport(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := client.DefaultConfig()
	cfg.Timeout = 0
	_, err := New(TransportREST, cfg)
	assert.ErrorContains(t, err, "invalid config")

	_, err = New("soap", client.DefaultConfig())
	assert.Error(t, err)
}

// Both transports must produce the same dataset from the same upstream.
func TestTransportsAgree(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ctx := context.Background()

	var datasets []model.Dataset
	for _, transport := range []Transport{TransportREST, TransportGraphQL} {
		c, err := New(transport, testConfig(mock))
		require.NoError(t, err)

		result, err := LoadDataset(ctx, c, false)
		require.NoError(t, err, transport)
		assert.Equal(t, 5, result.APICalls, transport)
		assert.False(t, result.Optimized)
		datasets = append(datasets, result.Dataset)
		require.NoError(t, c.Close())
	}
	assert.Equal(t, datasets[0], datasets[1])
}

func TestLoadDataset_Optimized(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ctx := context.Background()

	gql, err := New(TransportGraphQL, testConfig(mock))
	require.NoError(t, err)
	defer gql.Close()

	result, err := LoadDataset(ctx, gql, true)
	require.NoError(t, err)
	assert.True(t, result.Optimized)
	assert.Equal(t, 3, result.APICalls)
	assert.InDelta(t, 40.0, result.ReductionPercent, 0.001)
	assert.Len(t, result.Dataset.Characters, 45)

	// REST has no optimized strategy and silently paginates.
	r, err := New(TransportREST, testConfig(mock))
	require.NoError(t, err)
	defer r.Close()

	result, err = LoadDataset(ctx, r, true)
	require.NoError(t, err)
	assert.False(t, result.Optimized)
	assert.Equal(t, 5, result.APICalls)
}

func TestLoadDataset_FailureNamesResource(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.InjectFault("/api/location?page=2", testutil.Fault{StatusCode: 400, Times: -1})

	c, err := New(TransportREST, testConfig(mock))
	require.NoError(t, err)
	defer c.Close()

	result, err := LoadDataset(context.Background(), c, false)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "fetch locations")
	assert.Contains(t, err.Error(), "locations page 2")
}

func TestWithProgress(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	for _, transport := range []Transport{TransportREST, TransportGraphQL} {
		pages := 0
		c, err := New(transport, testConfig(mock), WithProgress(func(model.Resource, int, int, int) { pages++ }))
		require.NoError(t, err)

		_, err = c.FetchAllCharacters(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, pages, transport)
		c.Close()
	}
}
