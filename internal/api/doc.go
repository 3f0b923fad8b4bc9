// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/refresh to refresh explicit keyword ids or run a scheduled job now.
//   - GET and DELETE /v1/retry-queue to inspect or drain pending retries.
//   - GET /v1/providers and /v1/keywords/{id} for read-only lookups.
package api
