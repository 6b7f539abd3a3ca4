// Package progress carries run and per-item events from the coordinator to
// presentation and telemetry sinks. Emit never blocks the coordinator; a
// background goroutine batches events and fans them out to each Sink.
package progress
