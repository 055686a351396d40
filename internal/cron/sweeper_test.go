package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSweeperRunsRegisteredTargets(t *testing.T) {
	var calls int32
	s := New(nil)
	err := s.Register(Target{
		Name:     "test",
		Interval: time.Second,
		Run: func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected at least one sweep call, got %d", atomic.LoadInt32(&calls))
}

func TestSweeperStopIdempotent(t *testing.T) {
	s := New(nil)
	s.Start()
	s.Stop()
	s.Stop()
}
