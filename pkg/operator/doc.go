// Package operator serves the pagewire operator HTTP API.
//
// The API is read-only and meant for a private listener:
//
//	GET /healthz          channel state and queue depth
//	GET /metrics          Prometheus exposition
//	GET /pages            registered page catalogue
//	GET /pages/{id}       one page
//	GET /sessions         session store stats and listing
//	GET /sessions/{id}    one session
//
// /healthz answers 503 while the relay channel is not open, so the
// endpoint can back a readiness probe.
package operator
