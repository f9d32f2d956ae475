package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// TestBrokerPublishSubscribe tests fan-out to every subscriber
func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventExportCompleted, TenantID: "tenant-a", ExportID: "exp-1"})

	for _, sub := range []Subscriber{s1, s2} {
		ev := receive(t, sub)
		assert.Equal(t, EventExportCompleted, ev.Type)
		assert.Equal(t, "exp-1", ev.ExportID)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)

	// second unsubscribe is a no-op
	b.Unsubscribe(sub)
}

func TestBrokerRecent(t *testing.T) {
	b := NewBroker()
	b.keep = 3
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	for _, id := range []string{"a", "b", "c", "d"} {
		b.Publish(&Event{Type: EventExportStarted, ExportID: id})
		receive(t, sub)
	}

	recent := b.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "b", recent[0].ExportID)
	assert.Equal(t, "d", recent[2].ExportID)

	last := b.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "d", last[0].ExportID)
}

func TestPublishDoesNotBlock(t *testing.T) {
	var nilBroker *Broker
	nilBroker.Publish(&Event{Type: EventExportFailed})

	b := NewBroker()
	// not started: the queue fills and further events are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventExportStarted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}

	assert.NotZero(t, b.Dropped())

	b.Stop()
	b.Stop()
}

// TestFilteredSubscription tests tenant and type filters on live and replayed events
func TestFilteredSubscription(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	all := b.Subscribe()
	acme := b.SubscribeFiltered(Filter{TenantID: "acme"})
	failures := b.SubscribeFiltered(Filter{Types: []EventType{EventExportFailed, EventExportRejected}})

	published := []*Event{
		{Type: EventExportStarted, TenantID: "acme", ExportID: "1"},
		{Type: EventExportFailed, TenantID: "globex", ExportID: "2"},
		{Type: EventExportCompleted, TenantID: "acme", ExportID: "3"},
	}
	for _, ev := range published {
		b.Publish(ev)
		receive(t, all)
	}

	assert.Equal(t, "1", receive(t, acme).ExportID)
	assert.Equal(t, "3", receive(t, acme).ExportID)
	assert.Equal(t, "2", receive(t, failures).ExportID)
	assert.Empty(t, acme)
	assert.Empty(t, failures)

	replay := b.RecentFiltered(0, Filter{TenantID: "acme"})
	require.Len(t, replay, 2)
	assert.Equal(t, "1", replay[0].ExportID)
	assert.Equal(t, "3", replay[1].ExportID)

	last := b.RecentFiltered(1, Filter{TenantID: "acme"})
	require.Len(t, last, 1)
	assert.Equal(t, "3", last[0].ExportID)
}

func TestFilterMatch(t *testing.T) {
	ev := &Event{Type: EventRetentionSwept, TenantID: "acme"}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter", Filter{}, true},
		{"same tenant", Filter{TenantID: "acme"}, true},
		{"other tenant", Filter{TenantID: "globex"}, false},
		{"listed type", Filter{Types: []EventType{EventExportFailed, EventRetentionSwept}}, true},
		{"unlisted type", Filter{Types: []EventType{EventExportFailed}}, false},
		{"tenant and type", Filter{TenantID: "acme", Types: []EventType{EventRetentionSwept}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(ev))
		})
	}
}
