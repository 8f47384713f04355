package blobcache

import (
	"context"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/metrics"
)

// healthProbeTypeTag scopes Ping's round-trip query to a reserved type tag
// so it never collides with a caller's own entries.
const healthProbeTypeTag = "__blobcache_health_probe__"

// Ping exercises the backend with a cheap, error-propagating read (the raw
// getAllKeys contract, not the safe variant — a swallowed failure would
// defeat the point of a health check) and registers the outcome with
// pkg/metrics' process-wide HealthChecker under "storage" and, for
// queue-fronted stores, "queue" as well — the same two names
// GetReadiness treats as critical.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		metrics.RegisterComponent("storage", false, "store disposed")
		metrics.RegisterComponent("queue", false, "store disposed")
		return cacheerr.Disposed()
	}

	outcome, err := s.backend.getAllKeys(healthProbeTypeTag).Wait(ctx)
	if err == nil {
		err = outcome.Err
	}
	healthy, message := err == nil, ""
	if err != nil {
		message = err.Error()
	}
	metrics.RegisterComponent("storage", healthy, message)

	if _, queued := s.backend.(*queueBackend); queued {
		metrics.RegisterComponent("queue", healthy, message)
	} else {
		metrics.RegisterComponent("queue", true, "no operation queue (direct backend)")
	}
	return err
}
