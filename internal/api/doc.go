// Package api serves the optional status endpoint for a running probe or
// download pass:
//   - GET /healthz and /readyz for liveness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress and /v1/progress/{run} for live run snapshots.
package api
