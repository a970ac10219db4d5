package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	fetcherrors "fetch-go/internal/errors"
)

type countingEvicter struct {
	calls atomic.Int64
	block chan struct{}
}

func (e *countingEvicter) EvictExpired(ctx context.Context) (int, error) {
	e.calls.Add(1)
	if e.block != nil {
		<-e.block
	}
	return 2, nil
}

func TestInvalidSchedule(t *testing.T) {
	_, err := New(&countingEvicter{}, "every tuesday", 0)
	if !fetcherrors.Is(err, fetcherrors.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRunOnce(t *testing.T) {
	e := &countingEvicter{}
	s, err := New(e, "0 */5 * * * *", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.RunOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if runs, evicted := s.Stats(); runs != 1 || evicted != 2 {
		t.Errorf("Stats = %d, %d", runs, evicted)
	}
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	e := &countingEvicter{block: make(chan struct{})}
	s, err := New(e, "@every 1h", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()
	for e.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	if n, _ := s.RunOnce(context.Background()); n != 0 {
		t.Errorf("overlapping run evicted %d", n)
	}
	close(e.block)
	<-done

	if e.calls.Load() != 1 {
		t.Errorf("EvictExpired called %d times, want 1", e.calls.Load())
	}
}

func TestScheduledRun(t *testing.T) {
	e := &countingEvicter{}
	s, err := New(e, "* * * * * *", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for e.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled sweep never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
