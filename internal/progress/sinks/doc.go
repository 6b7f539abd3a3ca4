// Package sinks implements the progress consumers: structured logs,
// Prometheus collectors, a colored console line, found-file notifications,
// and the in-memory status board served over HTTP.
package sinks
