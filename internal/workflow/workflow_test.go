package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/rickmorty-client/internal/testutil"
	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/export"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T, mock *testutil.MockAPI, transport rickmorty.Transport) (*Runner, *bytes.Buffer) {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.RESTBaseURL = mock.RESTBaseURL()
	cfg.GraphQLURL = mock.GraphQLURL()
	cfg.Retry.InitialBackoff = time.Millisecond

	c, err := rickmorty.New(transport, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	var out bytes.Buffer
	return New(c, NewPrinter(&out, true)), &out
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(fmt.Errorf("wrapped: %w", ErrUsage)))
	assert.Equal(t, ExitError, ExitCode(errors.New("upstream down")))
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"full export", Options{Mode: ModeFullExport, OutputDir: "out"}, ""},
		{"stats without dir", Options{Mode: ModeStatisticsOnly}, ""},
		{"single character", Options{Mode: ModeSingleCharacter, CharacterID: 1}, ""},
		{"zero character id", Options{Mode: ModeSingleCharacter}, "character id must be a positive integer"},
		{"negative character id", Options{Mode: ModeSingleCharacter, CharacterID: -3}, "character id must be a positive integer"},
		{"unknown mode", Options{Mode: "everything"}, "unknown mode"},
		{"quiet and verbose", Options{Mode: ModeStatisticsOnly, Quiet: true, Verbose: true}, "mutually exclusive"},
		{"export without dir", Options{Mode: ModeCharactersOnly}, "output directory cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUsage)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_FullExport(t *testing.T) {
	for _, transport := range []rickmorty.Transport{rickmorty.TransportREST, rickmorty.TransportGraphQL} {
		t.Run(string(transport), func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			runner, out := newRunner(t, mock, transport)
			dir := t.TempDir()

			err := runner.Run(context.Background(), Options{Mode: ModeFullExport, OutputDir: dir, Optimized: true})
			require.NoError(t, err)

			for _, name := range []string{export.CharactersFile, export.LocationsFile, export.StatisticsFile} {
				assert.FileExists(t, filepath.Join(dir, name))
			}
			assert.Contains(t, out.String(), "Total Characters: 45")
			assert.Contains(t, out.String(), "Total Locations: 25")
			assert.Contains(t, out.String(), "Characters (45 rows) exported to")

			if transport == rickmorty.TransportGraphQL {
				assert.Contains(t, out.String(), "Optimization Results")
				assert.Contains(t, out.String(), "API Call Reduction: 40.0%")
			} else {
				assert.NotContains(t, out.String(), "Optimization Results")
			}
		})
	}
}

func TestRun_CharactersOnly(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	runner, _ := newRunner(t, mock, rickmorty.TransportREST)
	dir := t.TempDir()

	require.NoError(t, runner.Run(context.Background(), Options{Mode: ModeCharactersOnly, OutputDir: dir, Quiet: true}))

	assert.FileExists(t, filepath.Join(dir, export.CharactersFile))
	assert.NoFileExists(t, filepath.Join(dir, export.LocationsFile))
	assert.Zero(t, mock.Count("/api/location"), "locations must not be fetched")
}

func TestRun_LocationsOnly(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	runner, out := newRunner(t, mock, rickmorty.TransportREST)
	dir := t.TempDir()

	require.NoError(t, runner.Run(context.Background(), Options{Mode: ModeLocationsOnly, OutputDir: dir, Quiet: true}))

	assert.FileExists(t, filepath.Join(dir, export.LocationsFile))
	assert.NoFileExists(t, filepath.Join(dir, export.CharactersFile))
	assert.Zero(t, mock.Count("/api/character"))
	assert.Empty(t, out.String(), "quiet prints nothing")
}

func TestRun_StatisticsOnly(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	runner, out := newRunner(t, mock, rickmorty.TransportREST)

	require.NoError(t, runner.Run(context.Background(), Options{Mode: ModeStatisticsOnly, Verbose: true}))

	assert.Contains(t, out.String(), "Character Status Distribution")
	assert.Contains(t, out.String(), "Data Quality Assessment")
	assert.Contains(t, out.String(), "Method: standard pagination")
}

func TestRun_SingleCharacter(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	runner, out := newRunner(t, mock, rickmorty.TransportREST)

	require.NoError(t, runner.Run(context.Background(), Options{Mode: ModeSingleCharacter, CharacterID: 1}))
	assert.Contains(t, out.String(), "Character Character 1")
	assert.Contains(t, out.String(), "Location Details")

	out.Reset()
	require.NoError(t, runner.Run(context.Background(), Options{Mode: ModeSingleCharacter, CharacterID: 5}))
	assert.Contains(t, out.String(), "Location details unavailable")

	err := runner.Run(context.Background(), Options{Mode: ModeSingleCharacter, CharacterID: 999})
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestRun_DryRun(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	runner, out := newRunner(t, mock, rickmorty.TransportGraphQL)
	dir := filepath.Join(t.TempDir(), "never")

	for _, mode := range []Mode{ModeFullExport, ModeCharactersOnly, ModeLocationsOnly, ModeStatisticsOnly} {
		require.NoError(t, runner.Run(context.Background(), Options{Mode: mode, OutputDir: dir, DryRun: true}))
	}
	require.NoError(t, runner.Run(context.Background(), Options{Mode: ModeSingleCharacter, CharacterID: 7, DryRun: true}))

	assert.Zero(t, mock.RequestCount(), "dry run must not reach the upstream")
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "dry run must not create the output directory")
	assert.Contains(t, out.String(), "[DRY RUN] GRAPHQL implementation")
	assert.Contains(t, out.String(), "Would fetch character 7")
	assert.Contains(t, out.String(), "unknown until the first fetch")
}

func TestRun_UsageError(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	runner, _ := newRunner(t, mock, rickmorty.TransportREST)

	err := runner.Run(context.Background(), Options{Mode: ModeSingleCharacter})
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.Zero(t, mock.RequestCount())
}

func TestRun_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.InjectFault("/api/character?page=2", testutil.Fault{StatusCode: 500, Times: -1})
	runner, _ := newRunner(t, mock, rickmorty.TransportREST)
	dir := t.TempDir()

	err := runner.Run(context.Background(), Options{Mode: ModeFullExport, OutputDir: dir})
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
	assert.ErrorIs(t, err, client.ErrRetryExhausted)
	assert.NoFileExists(t, filepath.Join(dir, export.CharactersFile), "no partial export")
}
