package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures a run as a whole and as a sequence of stages
type Timer struct {
	start time.Time
	lap   time.Time
	now   func() time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	t := now()
	return &Timer{start: t, lap: t, now: now}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return t.now().Sub(t.start)
}

// ObserveDuration records the total elapsed seconds on h
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// Lap records the seconds since the previous lap (or the start) on the
// stage series of h and returns them
func (t *Timer) Lap(h *prometheus.HistogramVec, stage string) time.Duration {
	now := t.now()
	d := now.Sub(t.lap)
	t.lap = now
	h.WithLabelValues(stage).Observe(d.Seconds())
	return d
}
