package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregate states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// Report is the body of the /health and /ready endpoints
type Report struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// componentState is the last known state of one pipeline dependency
type componentState struct {
	ok      bool
	detail  string
	changed time.Time
}

// registry holds dependency states. The store and the object store gate
// readiness unless SetCriticalComponents says otherwise.
type registry struct {
	mu       sync.RWMutex
	states   map[string]componentState
	critical []string
	started  time.Time
	version  string
}

func newRegistry(critical ...string) *registry {
	return &registry{
		states:   make(map[string]componentState),
		critical: critical,
		started:  time.Now(),
	}
}

var components = newRegistry("store", "objectstore")

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	components.mu.Lock()
	components.version = version
	components.mu.Unlock()
}

// SetCriticalComponents replaces the set of components that gate readiness
func SetCriticalComponents(names ...string) {
	components.mu.Lock()
	components.critical = append([]string(nil), names...)
	components.mu.Unlock()
}

// RegisterComponent sets the state of a component
func RegisterComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	components.states[name] = componentState{ok: healthy, detail: message, changed: time.Now()}
	components.mu.Unlock()
}

// UpdateComponent records the outcome of an operation against a component
func UpdateComponent(name string, err error) {
	if err != nil {
		RegisterComponent(name, false, err.Error())
		return
	}
	RegisterComponent(name, true, "")
}

// Uptime returns the time since process start
func Uptime() time.Duration {
	components.mu.RLock()
	defer components.mu.RUnlock()
	return time.Since(components.started)
}

func (r *registry) report(status string) Report {
	return Report{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(r.states)),
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}

func (r *registry) isCritical(name string) bool {
	for _, c := range r.critical {
		if c == name {
			return true
		}
	}
	return false
}

// GetHealth aggregates every registered component. A failing critical
// component makes the process unhealthy; any other failure degrades it.
func GetHealth() Report {
	components.mu.RLock()
	defer components.mu.RUnlock()

	rep := components.report(StatusHealthy)
	for name, st := range components.states {
		if st.ok {
			rep.Components[name] = StatusHealthy
			continue
		}
		rep.Components[name] = StatusUnhealthy + ": " + st.detail
		switch {
		case components.isCritical(name):
			rep.Status = StatusUnhealthy
		case rep.Status == StatusHealthy:
			rep.Status = StatusDegraded
		}
	}
	return rep
}

// GetReadiness reports whether every critical component is registered and
// healthy. Message names the first blocking component in name order.
func GetReadiness() Report {
	components.mu.RLock()
	defer components.mu.RUnlock()

	rep := components.report(StatusReady)
	critical := append([]string(nil), components.critical...)
	sort.Strings(critical)

	for _, name := range critical {
		st, ok := components.states[name]
		var blocked string
		switch {
		case !ok:
			rep.Components[name] = "not registered"
			blocked = "waiting for " + name + " initialization"
		case !st.ok:
			rep.Components[name] = "not ready: " + st.detail
			blocked = "waiting for " + name
		default:
			rep.Components[name] = StatusReady
		}
		if blocked != "" && rep.Status == StatusReady {
			rep.Status = StatusNotReady
			rep.Message = blocked
		}
	}
	return rep
}
