package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func resetGlobal(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Output == nil {
		t.Error("Expected default output to be set")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"disabled", LevelDisabled, false},
		{"verbose", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLevel(%q) expected error", tt.input)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestZerologLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{LevelDisabled, zerolog.Disabled},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	resetGlobal(t)
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("paginator")
	logger.Debug().Msg("debug message")
	logger.Info().Int("page", 2).Msg("Page fetched")
	logger.Warn().Str("error_class", "server").Msg("Retrying request after backoff")
	logger.Error().Msg("Retry attempts exhausted")

	output := buf.String()
	for _, hidden := range []string{"debug message", "Page fetched"} {
		if strings.Contains(output, hidden) {
			t.Errorf("%q should be filtered out at warn level", hidden)
		}
	}
	for _, shown := range []string{"Retrying request after backoff", "Retry attempts exhausted", `"component":"paginator"`} {
		if !strings.Contains(output, shown) {
			t.Errorf("expected %q in output, got %q", shown, output)
		}
	}
}

func TestSetup_Pretty(t *testing.T) {
	resetGlobal(t)
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, NoColor: true, Output: buf})

	NewLogger("rest").Info().Str("resource", "characters").Msg("Fetched all records")

	output := buf.String()
	if strings.HasPrefix(output, "{") {
		t.Errorf("pretty output should not be JSON: %q", output)
	}
	if !strings.Contains(output, "Fetched all records") || !strings.Contains(output, "resource=characters") {
		t.Errorf("unexpected pretty output %q", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("NoColor output contains escape codes: %q", output)
	}
}

func TestSetup_Disabled(t *testing.T) {
	resetGlobal(t)
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelDisabled, Output: buf})

	NewLogger("test").Error().Msg("should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
