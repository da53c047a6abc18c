// Package api hosts the HTTP server, middleware, and REST handlers of the
// rank tracker. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/collect and GET /v1/snapshots for on-demand collection and
//     snapshot reads.
//   - /v1/trackings for subscription management, resolved against the
//     caller identity the gateway injects via X-Owner-ID.
//   - /v1/tasks/{task} for triggering and inspecting the scheduled jobs.
package api
