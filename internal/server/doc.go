// Package server provides the HTTP status server of kubeconfig-sync.
//
// The MetricsServer exposes:
//
//   - /metrics: Prometheus exposition of the instrumentation provider
//   - /healthz: liveness, always ok while the process serves requests
//   - /readyz: readiness, ok while the sync engine is running
//   - /healthz/detailed: uptime, watched paths and instrumentation state
//   - /entities: the entity catalog as JSON, filterable by ?context= and ?file=
//   - /entities/{uid}: a single entity, 404 when unknown
//
// Only GET and HEAD are accepted. Every response carries restrictive
// security headers and, when instrumentation is enabled, is counted in
// http_requests_total.
package server
