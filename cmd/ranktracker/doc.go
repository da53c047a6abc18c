// Package main hosts the ranktracker service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, one-off collection,
//     snapshot reads, tracking-subscription management and task triggers. Caller
//     identity arrives via the gateway-injected X-Owner-ID header.
//   - Collection: internal/collect queries the Naver blog search API at most once
//     per keyword per calendar day (Asia/Seoul by default) and persists the
//     snapshot, its rank entries and the blog upserts as one transaction. The raw
//     provider payload is archived to GCS and a compact Pub/Sub event is
//     published when those backends are configured.
//   - Content enrichment: internal/fetch resolves each result to its mobile
//     viewer URL and extracts a bounded plain-text excerpt via Colly, promoting
//     to a headless Chromedp render when the body looks like a client-rendered
//     shell. Enrichment is best effort; rank data survives content loss.
//   - Tracking: internal/tracking owns keyword subscriptions, billing-backed
//     quota checks and the gap-filled seven-day rank history, cached in Redis
//     keyed by tracking ID with per-keyword invalidation.
//   - Scheduler: internal/sched drives the daily collection sweep and the
//     billing renewal/payment-retry batches on robfig/cron schedules, each run
//     wrapped in a persistent audit record with per-item fault isolation.
//   - Configuration & plumbing: Viper populates config from file and RANKTRACKER_*
//     env vars; zap provides structured logging; Prometheus metrics are exported
//     on /metrics; pgx/v5 backs the Postgres stores, with in-memory stores
//     substituting when no DSN is configured.
//
// Operational notes:
//   - Provider budget: the scheduler paces sweep calls (collector.throttle_ms)
//     and each keyword is collected once regardless of how many subscriptions
//     share it. Snapshot uniqueness is enforced by the store, so concurrent
//     collectors cannot double-write a (keyword, date).
//   - Shutdown: SIGTERM drains the HTTP server, stops the cron loop and waits
//     for in-flight entries before closing the pool and the render browser.
package main
