/*
Package metrics provides Prometheus instrumentation for the blob cache
engine: cache hit/miss counters, request-coalescing counts, operation
queue depth and flush timing, vacuum duration, and per-type live entry
counts. Metrics are package-level vars registered at init time against the
default Prometheus registry, matching the teacher's "MustRegister at
package init, expose via promhttp.Handler" convention.

	┌─────────────────────────────────────────────────────┐
	│                  Prometheus Registry                 │
	│            (MustRegister at package init)             │
	└───────────────────────┬───────────────────────────────┘
	                        │
	  ┌─────────────────────┼───────────────────────────────┐
	  │                     │                                │
	  ▼                     ▼                                ▼
	Cache hit/miss    Queue flush time/batch size     Store op/vacuum
	+ coalesced         (pkg/queue)                     duration
	(no call site)                                    (pkg/queue,
	                                                   pkg/blobcache)

Collector periodically samples gauge-shaped state (queue depth, live entry
counts) that nothing increments on its own; histograms are observed directly
at their call sites in pkg/queue and pkg/blobcache instead. CacheHitsTotal,
CacheMissesTotal and RequestsCoalescedTotal are registered, but no package in
this module increments them.

HealthChecker (health.go) tracks component readiness independently of the
Prometheus metrics above: storage and queue are the two components a
caller needs ready before traffic should be routed to an embedding
application's health endpoint.
*/
package metrics
