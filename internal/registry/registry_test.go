package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anvh/mentora/internal/checkpoint"
)

func TestConcurrentFirstAccessInitializesOnce(t *testing.T) {
	var inits atomic.Int64
	reg := New(func(_ context.Context, userID string) (*Resources, error) {
		inits.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		store := checkpoint.NewInMemoryStore()
		return &Resources{Checkpoints: store, Digger: checkpoint.NewDigger(store, nil)}, nil
	})

	const callers = 16
	results := make([]*Resources, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := reg.Get(context.Background(), "u1")
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if got := inits.Load(); got != 1 {
		t.Fatalf("init ran %d times, want 1", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different resource set", i)
		}
	}
}

func TestUsersGetSeparateResources(t *testing.T) {
	reg := New(func(_ context.Context, userID string) (*Resources, error) {
		store := checkpoint.NewInMemoryStore()
		return &Resources{Checkpoints: store}, nil
	})

	a, err := reg.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get(u1) error = %v", err)
	}
	b, err := reg.Get(context.Background(), "u2")
	if err != nil {
		t.Fatalf("Get(u2) error = %v", err)
	}
	if a == b {
		t.Fatalf("different users share resources")
	}
}

func TestFailedInitIsRetried(t *testing.T) {
	var attempts atomic.Int64
	reg := New(func(_ context.Context, userID string) (*Resources, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("store unreachable")
		}
		return &Resources{Checkpoints: checkpoint.NewInMemoryStore()}, nil
	})

	if _, err := reg.Get(context.Background(), "u1"); err == nil {
		t.Fatalf("first Get() error = nil, want failure")
	}
	res, err := reg.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second Get() error = %v, want retry to succeed", err)
	}
	if res == nil {
		t.Fatalf("second Get() returned nil resources")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("init attempts = %d, want 2", got)
	}
}
