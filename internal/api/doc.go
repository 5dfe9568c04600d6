// Package api hosts the serve-mode HTTP server. Routes:
//   - GET /healthz and /readyz for liveness and store readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /stats for totals, per-category counts and recent articles.
//   - GET /runs/last for the most recent sync report.
//   - POST /runs to start a sync run (409 while one is active).
package api
