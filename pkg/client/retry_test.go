package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRetrier(config RetryConfig) (*Retrier, *[]time.Duration) {
	r := NewRetrier(config, zerolog.Nop())
	slept := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return r, slept
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
	if !config.RespectRetryAfter {
		t.Error("RespectRetryAfter = false, want true")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config RetryConfig
	}{
		{"negative retries", RetryConfig{MaxRetries: -1, BackoffMultiplier: 2}},
		{"negative backoff", RetryConfig{InitialBackoff: -time.Second, BackoffMultiplier: 2}},
		{"multiplier below one", RetryConfig{BackoffMultiplier: 0.5}},
		{"jitter too large", RetryConfig{BackoffMultiplier: 2, Jitter: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestRetrier_Backoff(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Second,
	})

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, expected := range want {
		if got := r.Backoff(attempt); got != expected {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestRetrier_BackoffJitterBounds(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2,
		Jitter:            0.25,
	})

	for i := 0; i < 50; i++ {
		got := r.Backoff(1)
		if got < 1500*time.Millisecond || got > 2500*time.Millisecond {
			t.Fatalf("Backoff(1) with jitter = %v, want within [1.5s, 2.5s]", got)
		}
	}
}

func TestRetrier_DelayPrefersRetryAfter(t *testing.T) {
	r, _ := newTestRetrier(DefaultRetryConfig())

	rateLimited := &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: 7 * time.Second}
	if got := r.Delay(0, rateLimited); got != 7*time.Second {
		t.Errorf("Delay() = %v, want 7s", got)
	}

	withoutHeader := &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}
	if got := r.Delay(2, withoutHeader); got != 4*time.Second {
		t.Errorf("Delay() without Retry-After = %v, want 4s", got)
	}

	cfg := DefaultRetryConfig()
	cfg.RespectRetryAfter = false
	ignoring, _ := newTestRetrier(cfg)
	if got := ignoring.Delay(0, rateLimited); got != time.Second {
		t.Errorf("Delay() ignoring Retry-After = %v, want 1s", got)
	}
}

func TestRetrier_Do(t *testing.T) {
	tests := []struct {
		name          string
		errs          []error
		wantCalls     int
		wantSleeps    int
		wantErr       bool
		wantExhausted bool
	}{
		{
			name:      "success first try",
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name: "network error then success",
			errs: []error{
				&APIError{ErrorClass: ErrorClassNetwork},
				nil,
			},
			wantCalls:  2,
			wantSleeps: 1,
		},
		{
			name:      "not found is not retried",
			errs:      []error{&APIError{StatusCode: 404, ErrorClass: ErrorClassNotFound}},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "malformed is not retried",
			errs:      []error{&APIError{StatusCode: 200, ErrorClass: ErrorClassMalformed}},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "plain error is not retried",
			errs:      []error{errors.New("boom")},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name: "server errors exhaust retries",
			errs: []error{
				&APIError{StatusCode: 503, ErrorClass: ErrorClassServer},
				&APIError{StatusCode: 503, ErrorClass: ErrorClassServer},
				&APIError{StatusCode: 503, ErrorClass: ErrorClassServer},
				&APIError{StatusCode: 503, ErrorClass: ErrorClassServer},
			},
			wantCalls:     4,
			wantSleeps:    3,
			wantErr:       true,
			wantExhausted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, slept := newTestRetrier(DefaultRetryConfig())
			calls := 0

			err := r.Do(context.Background(), func(context.Context) error {
				err := tt.errs[calls]
				calls++
				return err
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(*slept) != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", len(*slept), tt.wantSleeps)
			}
			if errors.Is(err, ErrRetryExhausted) != tt.wantExhausted {
				t.Errorf("errors.Is(ErrRetryExhausted) = %v, want %v", errors.Is(err, ErrRetryExhausted), tt.wantExhausted)
			}
		})
	}
}

func TestRetrier_ExhaustedCarriesLastError(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{MaxRetries: 1, BackoffMultiplier: 2})
	last := &APIError{StatusCode: 502, ErrorClass: ErrorClassServer, Message: "bad gateway"}

	err := r.Do(context.Background(), func(context.Context) error { return last })

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.ErrorClass != ErrorClassFatal || apiErr.StatusCode != 502 {
		t.Errorf("got class %q status %d, want fatal 502", apiErr.ErrorClass, apiErr.StatusCode)
	}
	if !errors.Is(err, last) {
		t.Error("exhausted error should wrap the last error")
	}
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, BackoffMultiplier: 2}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(context.Context) error {
			calls++
			return &APIError{ErrorClass: ErrorClassNetwork}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("Do() error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("sleepContext(0) error = %v", err)
	}
	start := time.Now()
	if err := sleepContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("sleepContext() returned early")
	}
}
