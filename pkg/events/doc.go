/*
Package events distributes export lifecycle notifications inside the
process.

Events are observations, not commands: nothing in the pipeline waits for
a subscriber, and a run behaves the same whether anyone listens or not.
Their main consumer is the API's server-sent event stream, which lets an
operator watch the daily run without polling.

# Architecture

	┌──────────── publishers ─────────────┐
	│ export.Orchestrator   scheduler     │
	└──────────────────┬──────────────────┘
	                   │ Publish (never blocks)
	┌──────────────────▼──────────────────┐
	│ queue (100)                         │
	│      ↓                              │
	│ distribution goroutine ──▶ history  │
	│      ↓                    (last 100)│
	│ filter per subscriber               │
	└──────┬──────────────┬───────────────┘
	       ▼              ▼
	  subscriber     subscriber          (buffer 50 each)
	  /v1/events     /v1/events?tenant=

# Event Types

The orchestrator and scheduler publish events as runs progress:

	export.started       PENDING record created
	export.completed     artifacts stored, record COMPLETED
	export.failed        record FAILED, stage in metadata
	export.rejected      single-flight rejection
	delivery.completed   delivery outcome recorded
	schedule.skipped     daily job skipped a tenant, reason in message
	retention.swept      weekly cleanup finished

Every event has an id and a timestamp, stamped by Publish when missing,
and carries the tenant id, report date and export id where they apply.

# Delivery Semantics

Broker fans events out to subscriber channels from a single goroutine, so
every subscriber sees events in publish order. Publish never blocks: a
full queue or a full subscriber buffer drops the event for that consumer
and counts it in Dropped. A slow SSE client therefore loses events rather
than stalling an export.

Subscriptions may be narrowed to one tenant or a set of event types with
SubscribeFiltered; a zero Filter matches everything. Unsubscribe closes
the channel, so a range loop over a subscription ends cleanly.

The last 100 events are kept for Recent and RecentFiltered, which the API
replays ahead of the live server-sent event stream.

A nil *Broker accepts Publish as a no-op. One-shot CLI commands run the
orchestrator without starting a broker.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.SubscribeFiltered(events.Filter{
		TenantID: "tenant-a",
		Types:    []events.EventType{events.EventExportFailed},
	})
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		fmt.Printf("%s %s: %s\n", ev.Type, ev.ExportID, ev.Message)
	}

Following the stream over HTTP:

	curl -N 'http://localhost:8080/v1/events?tenant=tenant-a&replay=20'
*/
package events
