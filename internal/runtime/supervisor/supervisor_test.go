package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRunsAndWaitReturns(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var ran atomic.Bool
	s.Go("worker", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ran.Load() {
		t.Fatal("goroutine never ran")
	}
	st := s.Stats()
	if st.Started != 1 || st.Active != 0 {
		t.Fatalf("Stats = %+v, want started=1 active=0", st)
	}
}

func TestFirstErrorWinsAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want wrapped boom", err)
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("context not cancelled after first error")
	}
}

func TestCanceledErrorIsNotRecorded(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("clean", func(ctx context.Context) error { return context.Canceled })
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait = %v, want nil for context.Canceled exits", err)
	}
}

func TestPanicIsRecoveredAsError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panicky", func(ctx context.Context) error { panic("kaboom") })
	err := s.Wait(context.Background())
	if err == nil {
		t.Fatal("Wait = nil, want panic error")
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	s.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
	close(release)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("second Wait = %v", err)
	}
}

func TestGoRestartRetriesUntilCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int64
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	if err := s.Wait(context.Background()); err == nil {
		t.Fatal("Err = nil, want recorded transient failures")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int64
	s.GoRestart("looping", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always fails")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("restart loop did not stop after cancel")
	}
}

func TestNilFuncIsIgnored(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("noop", nil)
	s.Go0("noop", nil)
	s.GoRestart("noop", nil)
	if st := s.Stats(); st.Started != 0 {
		t.Fatalf("Started = %d, want 0", st.Started)
	}
}
