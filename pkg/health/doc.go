/*
Package health checks the external dependencies of the export pipeline and
feeds the results into the component registry behind /health and /ready.

# Architecture

	┌─────────────────────────────────────────────────────────┐
	│                        Monitor                          │
	│           every Interval, checks run in parallel        │
	└────┬──────────────────┬──────────────────┬──────────────┘
	     ▼                  ▼                  ▼
	┌──────────┐      ┌──────────┐       ┌──────────┐
	│   Ping   │      │   TCP    │       │   HTTP   │
	│ store    │      │ SMTP     │       │ any URL  │
	│ redis    │      │ relay    │       │          │
	│ objects  │      │          │       │          │
	└──────────┘      └──────────┘       └──────────┘
	     │                  │                  │
	     └──────────────────┴──────────────────┘
	                        ▼
	         metrics.UpdateComponent(name, err)

# Checkers

	PingChecker   wraps a client's own Ping (store, Redis lock, object store)
	TCPChecker    connects, and with ExpectBanner reads the first line
	HTTPChecker   GET, 200-399 accepted by default, optional headers

NewSMTPChecker is a TCPChecker expecting the "220" greeting of a mail
relay. Relays on port 465 speak TLS before any greeting, so the service
checks them with a connect-only TCPChecker.

# State Machine

Each check is bounded by Config.Timeout. A dependency starts healthy, is
reported unhealthy after Config.Retries consecutive failures and healthy
again on the first success, so a single dropped packet does not flip
readiness:

	healthy ── fail ──▶ healthy (1) ── fail ──▶ healthy (2) ── fail ──▶ unhealthy
	   ▲                                                                  │
	   └─────────────────────────── success ──────────────────────────────┘

DefaultConfig checks every 30s with a 5s timeout and 3 retries. Transitions
are logged once, at warn when a component goes down and at info when it
recovers.

# Readiness

Which components gate readiness is decided by the caller through
metrics.SetCriticalComponents; everything else only degrades /health.
The service treats the store and the object store as critical, and adds
the lock when locks live in Redis. SMTP is never critical: a mail outage
fails one delivery channel, not the export.

# Usage

	mon := health.NewMonitor(health.DefaultConfig())
	mon.Add("store", health.NewPingChecker(store.Ping))
	mon.Add("smtp", health.NewSMTPChecker("smtp.example.com:587"))
	mon.Add("status-page", health.NewHTTPChecker("https://status.example.com/healthz",
		health.WithStatusRange(200, 299)))
	go mon.Run(ctx)

RunOnce checks everything a single time and returns the statuses, which
is what tests and one-shot diagnostics use.
*/
package health
