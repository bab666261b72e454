package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLimiterBurst(t *testing.T) {
	l := NewLocalLimiter(1, 2)
	ctx := context.Background()
	for i := range 2 {
		if ok, _ := l.Allow(ctx, ""); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	if ok, _ := l.Allow(ctx, ""); ok {
		t.Errorf("request beyond burst allowed")
	}

	l.Update(0, 0)
	for range 100 {
		if ok, _ := l.Allow(ctx, ""); !ok {
			t.Fatalf("disabled limiter rejected a request")
		}
	}
}

func TestSemaphoreLimiter(t *testing.T) {
	s := NewSemaphoreLimiter(1)
	release, err := s.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.TryAcquire(); !errors.Is(err, ErrConcurrencyLimit) {
		t.Errorf("second TryAcquire err = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire err = %v, want deadline", err)
	}

	release()
	again, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestSemaphoreUnlimited(t *testing.T) {
	s := NewSemaphoreLimiter(0)
	if s.Cap() != 0 {
		t.Errorf("Cap = %d", s.Cap())
	}
	for range 10 {
		if _, err := s.TryAcquire(); err != nil {
			t.Fatal(err)
		}
	}
}
