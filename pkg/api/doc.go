/*
Package api implements the HTTP control surface of the export pipeline.

The server is a gin engine in front of the orchestrator, the export store,
the audit service, the scheduler jobs and the event broker. It holds no
state of its own; every handler is a thin translation between HTTP and
one of those services.

# Architecture

	┌──────────────────── CLIENT (CLI, ops tooling) ──────────────┐
	└─────────────────────────────┬───────────────────────────────┘
	                              │ HTTP
	┌─────────────────────────────▼───────────────────────────────┐
	│ middleware: request id → access log + metrics → recovery →  │
	│             actor / client info into context                │
	├─────────────────────────────────────────────────────────────┤
	│ /health /ready /metrics                                     │
	│ /v1/tenants/:tenantID/exports      trigger, list            │
	│ /v1/tenants/:tenantID/exports/:reportDate/status            │
	│ /v1/exports/:id                    record, re-issue links   │
	│ /v1/audit, /v1/audit/verify        query, chain check       │
	│ /v1/scheduler/daily|retention      run a job now            │
	│ /v1/events                         server-sent events       │
	│ /downloads/:token                  local backend downloads  │
	└──────┬──────────────┬─────────────┬────────────┬────────────┘
	       ▼              ▼             ▼            ▼
	   Exporter     ExportStore   audit.Service     Jobs

Exporter and Jobs are interfaces so tests can serve the routes without a
renderer or an object store.

# Routes

	POST /v1/tenants/:tenantID/exports                   run an export now
	GET  /v1/tenants/:tenantID/exports?limit=            list records, newest first
	GET  /v1/tenants/:tenantID/exports/:reportDate/status  lock state and record
	GET  /v1/exports/:id                                 one record
	POST /v1/exports/:id/links                           fresh download links
	GET  /v1/audit?action=&resource_type=&resource_id=&actor_id=&from=&to=&limit=
	GET  /v1/audit/verify?limit=                         hash chain report
	POST /v1/scheduler/daily?date=                       daily job summary
	POST /v1/scheduler/retention                         retention summary
	GET  /v1/events?tenant=&type=&replay=                SSE stream
	GET  /health  /ready  /metrics                       checks and Prometheus

The trigger body names the report date and may override the output flags
and the delivery channels:

	{
	  "report_date": "2026-03-01",
	  "include_pdf": false,
	  "delivery_channels": ["email", "webhook"],
	  "skip_delivery": false
	}

A trigger runs synchronously and answers with the export result once the
record is COMPLETED and delivery has finished. The status route does not
wait: it reports whether a run holds the key right now and the stored
record, if any.

List limits default to 50 and are capped at 500; the audit log defaults
to 100 events.

# Errors

Handlers map pipeline errors to status codes in one place:

	*export.ValidationError       400
	export.ErrExportInProgress    409
	storage.ErrNotFound           404
	objectstore.ErrNotFound       404
	anything else                 500

Malformed bodies and query parameters are answered with 400 before a
service is called. Error bodies are {"error": "..."}; export failures add
"stage" and, once a record exists, "export_id". Only 5xx responses are
logged at error level.

# Middleware

	requestID      reuses X-Request-Id or mints a UUID, echoes it back
	accessLog      zerolog line per request, Prometheus counters and latency
	recovery       panics become 500 and are logged with the path
	auditContext   actor and client info into the request context

Requests are logged at debug level and 5xx responses at warn. Latency is
labelled by route template, never by raw path, so tenant ids do not
become metric labels.

# Auditing

The X-Actor-Id header, the client IP and the User-Agent are attached to
the request context, so audit events written while serving a request name
who triggered it. Requests without the header are recorded as system
actions.

# Events

/v1/events streams broker events as server-sent events, each named by its
event type. The tenant and type query parameters filter the stream;
replay sends up to that many recent matching events before live ones. The
route answers 503 when the broker is disabled.

# Downloads

With the local object store, presigned links point at /downloads/:token.
The token is a short-lived HS256 JWT naming the object key; the handler
verifies it and streams the decrypted object as an attachment. An invalid
or expired token is a 403. With S3 the links go to the bucket directly and
the route is not registered.

# Health

/health answers 503 only when a critical component is unhealthy. /ready
answers 503 until every critical component is up. Both read the component
registry in pkg/metrics, which the health monitor keeps current.

# Usage

	srv := api.NewServer(api.Deps{
		Exports:  store,
		Exporter: orchestrator,
		Audit:    auditService,
		Jobs:     sched,
		Events:   broker,
	})
	go func() {
		if err := srv.Start(":8080"); err != nil {
			log.Fatal(err)
		}
	}()
	defer srv.Shutdown(ctx)

Triggering an export with curl:

	curl -X POST -H 'X-Actor-Id: ops-1' \
	  -d '{"report_date":"2026-03-01"}' \
	  http://localhost:8080/v1/tenants/tenant-a/exports
*/
package api
