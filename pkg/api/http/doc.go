// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Run submission (JSON envelope or raw YAML workflow) and cancellation
//   - Run reports as JSON and as markdown summaries
//   - Step logs
//   - Health checks
//   - Prometheus metrics
package http
