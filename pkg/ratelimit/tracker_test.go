package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// setupLocalRedis skips when no Redis listens on localhost.
func setupLocalRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 14})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	// None of these cases reach Redis.
	tracker := NewTracker(nil, testLogger())

	tests := []struct {
		name         string
		remainHeader string
		resetHeader  string
		shouldError  bool
	}{
		{"missing remain header", "", "60", false},
		{"invalid remain header", "invalid", "60", true},
		{"invalid reset header", "100", "invalid", true},
		{"both headers missing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remainHeader != "" {
				headers.Set("X-RateLimit-Remaining", tt.remainHeader)
			}
			if tt.resetHeader != "" {
				headers.Set("X-RateLimit-Reset", tt.resetHeader)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)
			if tt.shouldError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestRecordCooldown_NonPositiveIsNoop(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	if err := tracker.RecordCooldown(context.Background(), 0); err != nil {
		t.Errorf("RecordCooldown(0) error = %v", err)
	}
}

func TestTracker_DefaultState(t *testing.T) {
	tracker := NewTracker(setupLocalRedis(t), testLogger())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != UnknownRemaining || !state.IsHealthy || state.InCooldown() {
		t.Errorf("default state = %+v, want healthy unknown budget", state)
	}
}

func TestTracker_WaitThroughCooldown(t *testing.T) {
	tracker := NewTracker(setupLocalRedis(t), testLogger())
	var slept []time.Duration
	tracker.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	ctx := context.Background()

	if err := tracker.RecordCooldown(ctx, 3*time.Second); err != nil {
		t.Fatalf("RecordCooldown() error = %v", err)
	}
	// A shorter cooldown must not shorten the active one.
	if err := tracker.RecordCooldown(ctx, time.Second); err != nil {
		t.Fatalf("RecordCooldown() error = %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("ShouldAllowRequest() = true during cooldown")
	}

	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 1 || slept[0] < 2*time.Second || slept[0] > 3*time.Second {
		t.Errorf("slept = %v, want one wait of about 3s", slept)
	}
}

func TestTracker_WaitThrottleAndCritical(t *testing.T) {
	tracker := NewTracker(setupLocalRedis(t), testLogger())
	var slept []time.Duration
	tracker.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "10")
	headers.Set("X-RateLimit-Reset", "30")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	headers.Set("X-RateLimit-Remaining", "1")
	headers.Set("X-RateLimit-Reset", "120")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if len(slept) != 2 {
		t.Fatalf("slept = %v, want two waits", slept)
	}
	if slept[0] != DefaultThrottleDelay {
		t.Errorf("throttle wait = %v, want %v", slept[0], DefaultThrottleDelay)
	}
	if slept[1] != DefaultMaxWait {
		t.Errorf("critical wait = %v, want capped at %v", slept[1], DefaultMaxWait)
	}
}
