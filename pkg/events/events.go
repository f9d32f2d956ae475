package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a step of the export lifecycle
type EventType string

const (
	EventExportStarted     EventType = "export.started"
	EventExportCompleted   EventType = "export.completed"
	EventExportFailed      EventType = "export.failed"
	EventExportRejected    EventType = "export.rejected"
	EventDeliveryCompleted EventType = "delivery.completed"
	EventScheduleSkipped   EventType = "schedule.skipped"
	EventRetentionSwept    EventType = "retention.swept"
)

// Event is a lifecycle notification of the export pipeline
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	TenantID   string            `json:"tenant_id,omitempty"`
	ReportDate string            `json:"report_date,omitempty"`
	ExportID   string            `json:"export_id,omitempty"`
	Message    string            `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	TenantID string
	Types    []EventType
}

// Match reports whether ev passes the filter
func (f Filter) Match(ev *Event) bool {
	if f.TenantID != "" && ev.TenantID != f.TenantID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

const (
	queueSize      = 100
	subscriberSize = 50
	historySize    = 100
)

// Broker fans events out to filtered subscribers from one goroutine and
// keeps a ring of recent events for replay
type Broker struct {
	mu      sync.RWMutex
	subs    map[Subscriber]Filter
	history []*Event
	keep    int
	dropped uint64

	queue    chan *Event
	done     chan struct{}
	stopOnce sync.Once
}

// NewBroker creates a broker. Call Start before publishing.
func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[Subscriber]Filter),
		keep:  historySize,
		queue: make(chan *Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the distribution loop
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case ev := <-b.queue:
				b.deliver(ev)
			case <-b.done:
				return
			}
		}
	}()
}

// Stop ends the distribution loop. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe registers a channel receiving every event
func (b *Broker) Subscribe() Subscriber {
	return b.SubscribeFiltered(Filter{})
}

// SubscribeFiltered registers a channel receiving the events that match f
func (b *Broker) SubscribeFiltered(f Filter) Subscriber {
	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs[sub] = f
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish stamps and queues an event. It never blocks: when the queue is
// full or the broker is stopped the event is dropped. A nil broker is a
// no-op so one-shot commands can run without one.
func (b *Broker) Publish(ev *Event) {
	if b == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case <-b.done:
	case b.queue <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

func (b *Broker) deliver(ev *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) == b.keep {
		copy(b.history, b.history[1:])
		b.history = b.history[:b.keep-1]
	}
	b.history = append(b.history, ev)

	for sub, f := range b.subs {
		if !f.Match(ev) {
			continue
		}
		select {
		case sub <- ev:
		default:
			b.dropped++
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were lost to a full queue or a full
// subscriber buffer
func (b *Broker) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Recent returns up to n of the latest delivered events, oldest first.
// n <= 0 returns the whole history.
func (b *Broker) Recent(n int) []*Event {
	return b.RecentFiltered(n, Filter{})
}

// RecentFiltered is Recent restricted to events matching f
func (b *Broker) RecentFiltered(n int, f Filter) []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Event
	for i := len(b.history) - 1; i >= 0; i-- {
		if n > 0 && len(out) == n {
			break
		}
		if f.Match(b.history[i]) {
			out = append(out, b.history[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
