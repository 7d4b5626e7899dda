package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rickmorty_rate_limit_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	rateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rickmorty_rate_limit_cooldowns_total",
		Help: "Total number of cooldowns recorded from 429 responses",
	})

	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rickmorty_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting on the rate limit gate",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"reason"}) // "cooldown", "critical", "throttle"
)

const (
	// DefaultThrottleDelay spaces requests while the budget is in warning.
	DefaultThrottleDelay = 1 * time.Second

	// DefaultMaxWait caps a single gate wait.
	DefaultMaxWait = 60 * time.Second

	// cooldownRetention keeps the last cooldown visible after it ended.
	cooldownRetention = 5 * time.Minute
)

// Tracker stores rate limit state in Redis and gates requests on it.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	throttleDelay time.Duration
	maxWait       time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
		maxWait:       DefaultMaxWait,
		sleep:         sleepContext,
	}
}

// GetState reads the shared state. Missing keys yield a healthy default.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state := &RateLimitState{
		Remaining:  UnknownRemaining,
		LastUpdate: time.Now(),
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	switch {
	case err == nil:
		state.Remaining = remaining
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	switch {
	case err == nil:
		state.ResetAt = time.Unix(resetTimestamp, 0)
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	cooldownMillis, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	switch {
	case err == nil:
		state.CooldownUntil = time.UnixMilli(cooldownMillis)
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get cooldown: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders records X-RateLimit-Remaining and X-RateLimit-Reset
// (seconds until reset). Responses without the budget header are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetSeconds := 60
	if resetStr := headers.Get("X-RateLimit-Reset"); resetStr != "" {
		resetSeconds, err = strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
		}
	}

	now := time.Now()
	resetAt := now.Add(time.Duration(resetSeconds) * time.Second)

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, remain, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, resetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	rateLimitRemaining.Set(float64(remain))

	switch {
	case remain < ThresholdCritical:
		t.logger.Error().Int("remaining", remain).Time("reset_at", resetAt).
			Msg("Rate limit budget critical - requests will wait for reset")
	case remain < ThresholdWarning:
		t.logger.Warn().Int("remaining", remain).Time("reset_at", resetAt).
			Msg("Rate limit budget low - requests will be throttled")
	default:
		t.logger.Debug().Int("remaining", remain).Time("reset_at", resetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

// RecordCooldown stores a cooldown announced by a 429 response. An active
// cooldown that ends later is kept.
func (t *Tracker) RecordCooldown(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	until := time.Now().Add(d)

	current, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get cooldown: %w", err)
	}
	if err == nil && time.UnixMilli(current).After(until) {
		return nil
	}

	if err := t.redis.Set(ctx, RedisKeyCooldownUntil, until.UnixMilli(), d+cooldownRetention).Err(); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}

	rateLimitCooldownsTotal.Inc()
	t.logger.Warn().Dur("cooldown", d).Time("until", until).Msg("Upstream rate limited - cooldown recorded")
	return nil
}

// ShouldAllowRequest reports whether a request may go out right now,
// i.e. no cooldown is active and the budget is not critical.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}
	return !state.InCooldown() && !state.NeedsCriticalBlock(), nil
}

// Wait blocks until the shared state allows a request: through an active
// cooldown, until the window reset when the budget is critical, or for the
// throttle delay when it is low. Waits are capped at the max wait.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	var (
		delay  time.Duration
		reason string
	)
	switch {
	case state.InCooldown():
		delay, reason = state.CooldownRemaining(), "cooldown"
	case state.NeedsCriticalBlock():
		delay, reason = state.TimeUntilReset(), "critical"
	case state.NeedsThrottling():
		delay, reason = t.throttleDelay, "throttle"
	default:
		return nil
	}
	if t.maxWait > 0 && delay > t.maxWait {
		delay = t.maxWait
	}

	t.logger.Debug().
		Str("reason", reason).
		Int("remaining", state.Remaining).
		Dur("delay", delay).
		Msg("Waiting on rate limit gate")

	rateLimitWaitSeconds.WithLabelValues(reason).Observe(delay.Seconds())
	return t.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
