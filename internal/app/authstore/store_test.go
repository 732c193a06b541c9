package authstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/app/authstore"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestGetExpiresLazily(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := authstore.New[string](time.Minute, authstore.WithClock(clk.Now))

	rec := s.Set("tok", "admin")
	if want := clk.Now().Add(time.Minute); !rec.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", rec.ExpiresAt, want)
	}
	if v, ok := s.Get("tok"); !ok || v != "admin" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	clk.Advance(time.Minute)
	if _, ok := s.Get("tok"); ok {
		t.Fatal("expired record returned")
	}
	if s.Len() != 0 {
		t.Fatalf("expired record not evicted on access, len = %d", s.Len())
	}
}

func TestSetOverwritesAndRefreshes(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := authstore.New[int](time.Minute, authstore.WithClock(clk.Now))
	s.Set("tok", 1)
	clk.Advance(50 * time.Second)
	s.Set("tok", 2)
	clk.Advance(50 * time.Second)

	if v, ok := s.Get("tok"); !ok || v != 2 {
		t.Fatalf("Get = %d, %v; want 2, true", v, ok)
	}
}

func TestDestroy(t *testing.T) {
	s := authstore.New[string](time.Hour)
	s.Set("tok", "x")
	s.Destroy("tok")
	s.Destroy("missing")
	if _, ok := s.Get("tok"); ok {
		t.Fatal("destroyed record returned")
	}
}

func TestSweep(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := authstore.New[string](time.Minute, authstore.WithClock(clk.Now))
	s.Set("old-1", "a")
	s.Set("old-2", "b")
	clk.Advance(30 * time.Second)
	s.Set("new", "c")
	clk.Advance(45 * time.Second)

	if n := s.Sweep(); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if _, ok := s.Get("new"); !ok {
		t.Fatal("live record swept")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := authstore.New[string](time.Millisecond)
	s.Set("tok", "x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Len() != 0 {
		t.Fatal("sweep loop never evicted the expired record")
	}
}
