// Package probe defines the work items, outcomes, and executor contract shared
// by the queue, the dispatcher, and the concrete fetchers.
package probe
