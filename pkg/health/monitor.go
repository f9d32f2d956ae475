package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/rs/zerolog"
)

type check struct {
	name    string
	checker Checker
	status  *Status
}

// Monitor runs a set of named checks on an interval and publishes their
// state to the metrics component registry served by /health and /ready
type Monitor struct {
	cfg    Config
	mu     sync.RWMutex
	checks []*check
	logger zerolog.Logger
}

// NewMonitor creates a monitor. Zero fields of cfg take DefaultConfig values.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("health"),
	}
}

// Add registers a check under name. The component starts healthy.
func (m *Monitor) Add(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, &check{name: name, checker: checker, status: NewStatus()})
	metrics.RegisterComponent(name, true, "not checked yet")
}

// RunOnce runs every check once, concurrently, and returns the updated
// status by name
func (m *Monitor) RunOnce(ctx context.Context) map[string]Status {
	m.mu.RLock()
	checks := append([]*check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, p := range checks {
		wg.Add(1)
		go func(i int, p *check) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()
			results[i] = p.checker.Check(pctx)
		}(i, p)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(checks))
	for i, p := range checks {
		wasHealthy := p.status.Healthy
		p.status.Update(results[i], m.cfg)

		if p.status.Healthy {
			metrics.UpdateComponent(p.name, nil)
		} else {
			metrics.UpdateComponent(p.name, errors.New(results[i].Message))
		}
		if wasHealthy != p.status.Healthy {
			ev := m.logger.Info()
			if !p.status.Healthy {
				ev = m.logger.Warn()
			}
			ev.Str("component", p.name).
				Str("type", string(p.checker.Type())).
				Bool("healthy", p.status.Healthy).
				Str("message", results[i].Message).
				Msg("Component health changed")
		}
		out[p.name] = *p.status
	}
	return out
}

// Names returns the registered check names, sorted
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checks))
	for _, p := range m.checks {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}

// Run checks immediately and then every Interval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	m.RunOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}
