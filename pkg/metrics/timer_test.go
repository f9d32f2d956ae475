package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// TestTimerLaps tests that stage laps add up to the total duration
func TestTimerLaps(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)}
	timer := newTimer(clock.now)

	stages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_stage_seconds",
		Help: "Test stage histogram",
	}, []string{"stage"})

	clock.advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, timer.Lap(stages, "generate"))

	clock.advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, timer.Lap(stages, "upload"))

	clock.advance(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, timer.Lap(stages, "deliver"))

	assert.Equal(t, 5*time.Second, timer.Duration())
	assert.Equal(t, 3, testutil.CollectAndCount(stages))

	total := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_total_seconds",
		Help: "Test total histogram",
	})
	timer.ObserveDuration(total)
	assert.Equal(t, 1, testutil.CollectAndCount(total))
}

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 10*time.Millisecond)
}
