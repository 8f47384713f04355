package blobcache

import (
	"context"
	"testing"
	"time"

	"github.com/lacunalabs/blobcache/pkg/metrics"
)

func TestPingSucceedsOnOpenInMemoryStore(t *testing.T) {
	b := NewBuilder(Options{ApplicationName: "test"})
	t.Cleanup(func() { _ = b.Close() })
	s := b.InMemory()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	health := metrics.GetHealth()
	if comp, ok := health.Components["storage"]; !ok || comp != "healthy" {
		t.Fatalf("Components[storage] = %q, want healthy", comp)
	}
	if comp, ok := health.Components["queue"]; !ok || comp != "healthy" {
		t.Fatalf("Components[queue] = %q, want healthy", comp)
	}
}

func TestPingMarksQueueComponentHealthyForDirectBackend(t *testing.T) {
	b := NewBuilder(Options{ApplicationName: "test"})
	t.Cleanup(func() { _ = b.Close() })
	s := b.InMemory()

	if _, ok := s.backend.(*directBackend); !ok {
		t.Fatalf("backend = %T, want *directBackend", s.backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	comp, ok := metrics.GetHealth().Components["queue"]
	if !ok || comp != "healthy" {
		t.Fatalf("Components[queue] = %q, want healthy", comp)
	}
}

func TestPingFailsAfterClose(t *testing.T) {
	b := NewBuilder(Options{ApplicationName: "test"})
	s := b.InMemory()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err == nil {
		t.Fatal("Ping() on a closed store succeeded, want error")
	}

	health := metrics.GetHealth()
	if comp := health.Components["storage"]; comp == "healthy" {
		t.Fatalf("Components[storage] = %q, want unhealthy after close", comp)
	}
}
