// Package ratelimit shares upstream rate limit state between client
// instances through Redis. It records the cooldown announced by 429
// responses and the X-RateLimit-Remaining / X-RateLimit-Reset headers, and
// gates outgoing requests until the upstream is ready for them again.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "rickmorty:rate_limit:remaining"
	RedisKeyResetTimestamp = "rickmorty:rate_limit:reset_timestamp"
	RedisKeyCooldownUntil  = "rickmorty:rate_limit:cooldown_until"
	RedisKeyLastUpdate     = "rickmorty:rate_limit:last_update"
)

// Thresholds on the remaining request budget.
const (
	// ThresholdCritical holds requests until the window resets.
	ThresholdCritical = 5

	// ThresholdWarning spaces requests out by the throttle delay.
	ThresholdWarning = 20

	// ThresholdHealthy and above means no restriction.
	ThresholdHealthy = 50
)

// UnknownRemaining is reported until the upstream sends a budget header.
const UnknownRemaining = 100

// RateLimitState is the shared view of the upstream budget.
type RateLimitState struct {
	// Remaining is the request budget left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the budget window resets.
	ResetAt time.Time `json:"reset_at"`

	// CooldownUntil is set by a 429 response; zero when none is active.
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`

	LastUpdate time.Time `json:"last_update"`
	IsHealthy  bool      `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// InCooldown reports whether a 429 cooldown is still running.
func (s *RateLimitState) InCooldown() bool {
	return time.Now().Before(s.CooldownUntil)
}

// CooldownRemaining returns the time left on the cooldown, or 0.
func (s *RateLimitState) CooldownRemaining() time.Duration {
	d := time.Until(s.CooldownUntil)
	if d < 0 {
		return 0
	}
	return d
}

// NeedsCriticalBlock reports whether requests must wait for the window reset.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling reports whether requests should be spaced out.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy && !s.InCooldown()
}
