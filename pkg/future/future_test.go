package future

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestResultReplaysToLateSubscribers(t *testing.T) {
	src, res := New[int]()
	src.Complete(42, nil)

	got, err := res.Wait(context.Background())
	if err != nil || got != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", got, err)
	}

	// Late subscriber replays the same completed value.
	got2, err2 := res.Wait(context.Background())
	if err2 != nil || got2 != 42 {
		t.Fatalf("replay got (%d, %v), want (42, nil)", got2, err2)
	}
}

func TestResultBroadcastsToConcurrentSubscribers(t *testing.T) {
	src, res := New[string]()

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := res.Wait(context.Background())
			if err != nil {
				t.Errorf("subscriber %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	src.Complete("done", nil)
	wg.Wait()

	for i, v := range results {
		if v != "done" {
			t.Fatalf("subscriber %d got %q, want %q", i, v, "done")
		}
	}
}

func TestResultCancellationDoesNotAffectOtherSubscribers(t *testing.T) {
	src, res := New[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := res.Wait(ctx); err == nil {
		t.Fatal("expected cancelled context to error")
	}

	src.Complete(7, nil)
	got, err := res.Wait(context.Background())
	if err != nil || got != 7 {
		t.Fatalf("got (%d, %v), want (7, nil)", got, err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	src, res := New[int]()
	src.Complete(1, nil)
	src.Complete(2, nil)

	got, _ := res.Wait(context.Background())
	if got != 1 {
		t.Fatalf("second Complete should be a no-op, got %d", got)
	}
}

func TestPeekWithoutBlocking(t *testing.T) {
	src, res := New[int]()
	if _, _, ok := res.Peek(); ok {
		t.Fatal("Peek should report not-fired before Complete")
	}
	src.Complete(9, nil)
	v, err, ok := res.Peek()
	if !ok || err != nil || v != 9 {
		t.Fatalf("Peek got (%d, %v, %v), want (9, nil, true)", v, err, ok)
	}
}
