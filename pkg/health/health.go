package health

import (
	"context"
	"time"
)

// CheckType names the kind of check, it is logged with state changes
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypePing CheckType = "ping"
)

// Result is the outcome of one check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is implemented by every check
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// timed runs fn and stamps the result with its start and duration
func timed(fn func() (bool, string)) Result {
	start := time.Now()
	ok, msg := fn()
	return Result{Healthy: ok, Message: msg, CheckedAt: start, Duration: time.Since(start)}
}

// Config tunes the Monitor
type Config struct {
	Interval time.Duration
	Timeout  time.Duration

	// Retries is the number of consecutive failures before a dependency
	// is reported unhealthy
	Retries int
}

// DefaultConfig checks every 30s with a 5s timeout and flips a dependency
// after 3 failed rounds
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retries <= 0 {
		c.Retries = def.Retries
	}
	return c
}

// Status is the check history of one dependency. It starts healthy so a
// single slow check at boot does not fail readiness.
type Status struct {
	Healthy              bool
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
}

// NewStatus creates a healthy Status
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update folds a result into the status. One success recovers; Retries
// failures in a row are needed to go unhealthy.
func (s *Status) Update(result Result, config Config) {
	s.LastCheck, s.LastResult = result.CheckedAt, result

	if result.Healthy {
		s.Healthy = true
		s.ConsecutiveFailures = 0
		s.ConsecutiveSuccesses++
		return
	}
	s.ConsecutiveSuccesses = 0
	s.ConsecutiveFailures++
	s.Healthy = s.ConsecutiveFailures < max(config.Retries, 1)
}
