package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reeljobs/internal/eventbus"
	"reeljobs/internal/sysload"
	logx "reeljobs/pkg/logx"
)

// stubLoad is a mutable load source for driving the admission gates.
type stubLoad struct {
	mu sync.Mutex
	m  sysload.Metrics
}

func (l *stubLoad) set(cpu float64) {
	l.mu.Lock()
	l.m.CPUPercent = cpu
	l.mu.Unlock()
}

func (l *stubLoad) Current() sysload.Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m
}

// stubExec is a configurable executor for tests.
type stubExec struct {
	run      func(ctx context.Context, payload any) (any, error)
	estimate time.Duration
	gate     func(cpu float64) bool

	starts atomic.Int64
}

func (e *stubExec) Execute(ctx context.Context, payload any) (any, error) {
	e.starts.Add(1)
	if e.run == nil {
		return nil, nil
	}
	return e.run(ctx, payload)
}

func (e *stubExec) EstimateDuration(any) time.Duration { return e.estimate }

func (e *stubExec) CanExecute(cpu float64) bool {
	if e.gate == nil {
		return true
	}
	return e.gate(cpu)
}

// orderExec records start order across jobs.
type orderExec struct {
	mu    sync.Mutex
	order []string
	run   func(ctx context.Context, payload any) (any, error)
}

func (e *orderExec) Execute(ctx context.Context, payload any) (any, error) {
	e.mu.Lock()
	e.order = append(e.order, payload.(string))
	e.mu.Unlock()
	if e.run != nil {
		return e.run(ctx, payload)
	}
	return nil, nil
}

func (e *orderExec) EstimateDuration(any) time.Duration { return 0 }
func (e *orderExec) CanExecute(float64) bool            { return true }

func (e *orderExec) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func newTestService(t *testing.T, cfg Config, load sysload.Source) *Service {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 2 * time.Millisecond
	}
	if cfg.ReapInterval == 0 {
		cfg.ReapInterval = time.Hour
	}
	if cfg.RetryDelayBase == 0 {
		cfg.RetryDelayBase = 5 * time.Millisecond
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 250 * time.Millisecond
	}
	s := New(cfg, load, logx.Nop(), eventbus.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = s.Shutdown(stopCtx)
		cancel()
	})
	return s
}

// waitStatus polls until the job reaches the wanted status or the deadline hits.
func waitStatus(t *testing.T, s *Service, id string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := s.JobStatus(id); ok && j.Status == want {
			return j
		}
		time.Sleep(2 * time.Millisecond)
	}
	j, ok := s.JobStatus(id)
	if !ok {
		t.Fatalf("job %s: not found while waiting for %s", id, want)
	}
	t.Fatalf("job %s: status = %s, want %s", id, j.Status, want)
	return nil
}

func TestScheduleRunsToCompletion(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("work", &stubExec{estimate: 100 * time.Millisecond})

	id, err := s.Schedule("work", "payload", Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	j := waitStatus(t, s, id, StatusCompleted)
	if j.RetryCount != 0 {
		t.Fatalf("RetryCount = %d, want 0", j.RetryCount)
	}
	if j.CompletedAt.IsZero() || j.StartedAt.IsZero() {
		t.Fatal("expected StartedAt and CompletedAt to be set")
	}
	if j.EstimatedDuration != 100*time.Millisecond {
		t.Fatalf("EstimatedDuration = %v, want 100ms", j.EstimatedDuration)
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("work", &stubExec{})

	tests := []struct {
		name    string
		jobType string
		opt     Options
	}{
		{name: "empty type", jobType: "", opt: Options{}},
		{name: "negative delay", jobType: "work", opt: Options{Delay: -time.Second}},
		{name: "negative timeout", jobType: "work", opt: Options{Timeout: -time.Second}},
		{name: "negative retries", jobType: "work", opt: Options{MaxRetries: -1}},
		{name: "invalid priority", jobType: "work", opt: Options{Priority: Priority(99)}},
		{name: "blank dependency", jobType: "work", opt: Options{Dependencies: []string{"  "}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Schedule(tt.jobType, nil, tt.opt)
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("err = %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestScheduleUnknownTypeFailsTerminally(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{}, sysload.Static{})

	id, err := s.Schedule("nobody-home", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	j, ok := s.JobStatus(id)
	if !ok {
		t.Fatal("expected job to be queryable")
	}
	if j.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", j.Status)
	}
	if j.Err == "" {
		t.Fatal("expected Err to describe the missing executor")
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{DefaultTimeout: 7 * time.Second, DefaultMaxRetries: 5}, sysload.Static{})
	s.RegisterExecutor("work", &stubExec{})

	id, err := s.Schedule("work", nil, Options{Delay: time.Hour})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	j, ok := s.JobStatus(id)
	if !ok {
		t.Fatal("pending job not queryable")
	}
	if j.Timeout != 7*time.Second {
		t.Fatalf("Timeout = %v, want 7s", j.Timeout)
	}
	if j.MaxRetries != 5 {
		t.Fatalf("MaxRetries = %d, want 5", j.MaxRetries)
	}
	if j.Priority != PriorityMedium {
		t.Fatalf("Priority = %s, want medium", j.Priority)
	}
}

func TestCriticalAdmittedBeforeLow(t *testing.T) {
	t.Parallel()
	ex := &orderExec{}
	// A roomy tick keeps the recorded start order aligned with admission order.
	s := newTestService(t, Config{MaxConcurrentJobs: 8, MaxJobsPerType: 8, TickInterval: 10 * time.Millisecond}, sysload.Static{})
	s.RegisterExecutor("work", ex)

	// Queue everything behind a short delay so all four are pending before the
	// first admission tick sees them.
	lowID, err := s.Schedule("work", "low", Options{Priority: PriorityLow, Delay: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	var critIDs []string
	for _, name := range []string{"crit-1", "crit-2", "crit-3"} {
		id, err := s.Schedule("work", name, Options{Priority: PriorityCritical, Delay: 30 * time.Millisecond})
		if err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
		critIDs = append(critIDs, id)
	}

	waitStatus(t, s, lowID, StatusCompleted)
	for _, id := range critIDs {
		waitStatus(t, s, id, StatusCompleted)
	}

	order := ex.snapshot()
	if len(order) != 4 {
		t.Fatalf("started %d jobs, want 4", len(order))
	}
	if order[3] != "low" {
		t.Fatalf("start order = %v, want low last", order)
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	t.Parallel()
	ex := &orderExec{}
	s := newTestService(t, Config{MaxConcurrentJobs: 1, MaxJobsPerType: 1}, sysload.Static{})
	s.RegisterExecutor("work", ex)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		id, err := s.Schedule("work", name, Options{Priority: PriorityHigh})
		if err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitStatus(t, s, id, StatusCompleted)
	}

	order := ex.snapshot()
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("start order = %v, want %v", order, want)
		}
	}
}

func TestRetryThenTerminalFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	ex := &stubExec{run: func(context.Context, any) (any, error) { return nil, boom }}
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("flaky", ex)

	id, err := s.Schedule("flaky", nil, Options{MaxRetries: 2})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	j := waitStatus(t, s, id, StatusFailed)
	if j.RetryCount != 2 {
		t.Fatalf("RetryCount = %d, want 2", j.RetryCount)
	}
	if got := ex.starts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
	if j.Err != boom.Error() {
		t.Fatalf("Err = %q, want %q", j.Err, boom.Error())
	}
}

func TestRetryBackoffDelaysRequeue(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var mu sync.Mutex
	var attempts []time.Time
	ex := &stubExec{run: func(context.Context, any) (any, error) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		n := len(attempts)
		mu.Unlock()
		if n == 1 {
			return nil, boom
		}
		return nil, nil
	}}
	s := newTestService(t, Config{RetryDelayBase: 60 * time.Millisecond}, sysload.Static{})
	s.RegisterExecutor("flaky", ex)

	id, err := s.Schedule("flaky", nil, Options{MaxRetries: 2})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	j := waitStatus(t, s, id, StatusCompleted)
	if j.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", j.RetryCount)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	// First retry waits base*1; allow generous scheduling slack below that.
	if gap := attempts[1].Sub(attempts[0]); gap < 50*time.Millisecond {
		t.Fatalf("retry gap = %v, want >= ~60ms backoff", gap)
	}
}

func TestDependencyGating(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	blocking := &stubExec{run: func(ctx context.Context, _ any) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	fast := &stubExec{}
	s := newTestService(t, Config{MaxConcurrentJobs: 4, MaxJobsPerType: 4}, sysload.Static{})
	s.RegisterExecutor("slow", blocking)
	s.RegisterExecutor("dependent", fast)

	depID, err := s.Schedule("slow", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	childID, err := s.Schedule("dependent", nil, Options{Dependencies: []string{depID}})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	waitStatus(t, s, depID, StatusRunning)
	// Parent still running: child must not have started.
	time.Sleep(30 * time.Millisecond)
	if got := fast.starts.Load(); got != 0 {
		t.Fatalf("dependent started %d times while dependency was running", got)
	}
	j, _ := s.JobStatus(childID)
	if j.Status != StatusPending {
		t.Fatalf("dependent status = %s, want pending", j.Status)
	}

	close(release)
	waitStatus(t, s, depID, StatusCompleted)
	waitStatus(t, s, childID, StatusCompleted)
}

func TestCancelledDependencyBlocksForever(t *testing.T) {
	t.Parallel()
	ex := &stubExec{}
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("work", ex)

	depID, err := s.Schedule("work", nil, Options{Delay: time.Hour})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	childID, err := s.Schedule("work", nil, Options{Dependencies: []string{depID}})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	if !s.Cancel(depID) {
		t.Fatal("Cancel(pending dependency) = false, want true")
	}
	waitStatus(t, s, depID, StatusCancelled)

	// A cancelled dependency never satisfies its dependents.
	time.Sleep(50 * time.Millisecond)
	j, ok := s.JobStatus(childID)
	if !ok {
		t.Fatal("dependent job not queryable")
	}
	if j.Status != StatusPending {
		t.Fatalf("dependent status = %s, want pending", j.Status)
	}
	if got := ex.starts.Load(); got != 0 {
		t.Fatalf("executor ran %d times, want 0", got)
	}
}

func TestEvictedCompletedDependencyStillSatisfies(t *testing.T) {
	t.Parallel()
	ex := &stubExec{}
	s := newTestService(t, Config{TerminalRetention: 1}, sysload.Static{})
	s.RegisterExecutor("work", ex)

	depID, err := s.Schedule("work", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	waitStatus(t, s, depID, StatusCompleted)

	// A second completion pushes the dependency's record out of the
	// terminal store (retention cap 1).
	fillerID, err := s.Schedule("work", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	waitStatus(t, s, fillerID, StatusCompleted)
	if _, ok := s.JobStatus(depID); ok {
		t.Fatal("dependency record should have been evicted by the retention cap")
	}

	// The dependency completed successfully; eviction must not un-satisfy it.
	childID, err := s.Schedule("work", nil, Options{Dependencies: []string{depID}})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	waitStatus(t, s, childID, StatusCompleted)
}

func TestCancelPending(t *testing.T) {
	t.Parallel()
	ex := &stubExec{}
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("work", ex)

	id, err := s.Schedule("work", nil, Options{Delay: time.Hour})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if !s.Cancel(id) {
		t.Fatal("Cancel(pending) = false, want true")
	}
	j := waitStatus(t, s, id, StatusCancelled)
	if j.CompletedAt.IsZero() {
		t.Fatal("expected CompletedAt to be set")
	}
	if got := ex.starts.Load(); got != 0 {
		t.Fatalf("executor ran %d times after cancel, want 0", got)
	}
	// Second cancel is a no-op.
	if s.Cancel(id) {
		t.Fatal("Cancel(terminal) = true, want false")
	}
}

func TestCancelRunningIsCooperative(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	var once sync.Once
	ex := &stubExec{run: func(ctx context.Context, _ any) (any, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("blocker", ex)

	id, err := s.Schedule("blocker", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	<-started

	if s.Cancel(id) {
		t.Fatal("Cancel(running) = true, want false")
	}
	j := waitStatus(t, s, id, StatusCancelled)
	// Cancelled attempts never enter the retry path.
	if j.RetryCount != 0 {
		t.Fatalf("RetryCount = %d, want 0", j.RetryCount)
	}
}

func TestCancelUnknownID(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{}, sysload.Static{})
	if s.Cancel("no-such-job") {
		t.Fatal("Cancel(unknown) = true, want false")
	}
}

func TestMaxConcurrentSerializes(t *testing.T) {
	t.Parallel()
	var active, peak atomic.Int64
	ex := &stubExec{run: func(context.Context, any) (any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	}}
	s := newTestService(t, Config{MaxConcurrentJobs: 1, MaxJobsPerType: 8}, sysload.Static{})
	s.RegisterExecutor("work", ex)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Schedule("work", nil, Options{})
		if err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitStatus(t, s, id, StatusCompleted)
	}
	if got := peak.Load(); got != 1 {
		t.Fatalf("peak concurrency = %d, want 1", got)
	}
}

func TestPerTypeCap(t *testing.T) {
	t.Parallel()
	releaseA := make(chan struct{})
	blockA := &stubExec{run: func(ctx context.Context, _ any) (any, error) {
		select {
		case <-releaseA:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	fastB := &stubExec{}
	s := newTestService(t, Config{MaxConcurrentJobs: 8, MaxJobsPerType: 1}, sysload.Static{})
	s.RegisterExecutor("alpha", blockA)
	s.RegisterExecutor("beta", fastB)

	a1, err := s.Schedule("alpha", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	a2, err := s.Schedule("alpha", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	b1, err := s.Schedule("beta", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	waitStatus(t, s, a1, StatusRunning)
	// Another type is not blocked by alpha's cap.
	waitStatus(t, s, b1, StatusCompleted)

	// Second alpha stays behind the cap while the first runs.
	j, _ := s.JobStatus(a2)
	if j.Status != StatusPending {
		t.Fatalf("second alpha status = %s, want pending", j.Status)
	}

	close(releaseA)
	waitStatus(t, s, a1, StatusCompleted)
	waitStatus(t, s, a2, StatusCompleted)
}

func TestLoadGateSuppressesAdmission(t *testing.T) {
	t.Parallel()
	load := &stubLoad{}
	load.set(95)
	ex := &stubExec{}
	s := newTestService(t, Config{LoadThreshold: 80}, load)
	s.RegisterExecutor("work", ex)

	id, err := s.Schedule("work", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := ex.starts.Load(); got != 0 {
		t.Fatalf("executor ran %d times above the load threshold", got)
	}

	load.set(10)
	waitStatus(t, s, id, StatusCompleted)
}

func TestIdleGate(t *testing.T) {
	t.Parallel()
	load := &stubLoad{}
	load.set(50) // below LoadThreshold, above IdleThreshold
	ex := &stubExec{}
	s := newTestService(t, Config{LoadThreshold: 80, IdleThreshold: 30}, load)
	s.RegisterExecutor("work", ex)

	idleID, err := s.Schedule("work", nil, Options{Priority: PriorityIdle})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	medID, err := s.Schedule("work", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	// Medium runs at 50% CPU; idle does not.
	waitStatus(t, s, medID, StatusCompleted)
	j, _ := s.JobStatus(idleID)
	if j.Status != StatusPending {
		t.Fatalf("idle job status = %s, want pending at 50%% cpu", j.Status)
	}

	load.set(10)
	waitStatus(t, s, idleID, StatusCompleted)
}

func TestExecutorGateSkipsJob(t *testing.T) {
	t.Parallel()
	load := &stubLoad{}
	load.set(60)
	picky := &stubExec{gate: func(cpu float64) bool { return cpu < 50 }}
	s := newTestService(t, Config{LoadThreshold: 80}, load)
	s.RegisterExecutor("picky", picky)

	id, err := s.Schedule("picky", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := picky.starts.Load(); got != 0 {
		t.Fatalf("executor ran %d times while refusing the load", got)
	}

	load.set(20)
	waitStatus(t, s, id, StatusCompleted)
}

func TestTimeoutFailsAttempt(t *testing.T) {
	t.Parallel()
	ex := &stubExec{run: func(ctx context.Context, _ any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	s := newTestService(t, Config{RetryDelayBase: 2 * time.Millisecond}, sysload.Static{})
	s.RegisterExecutor("sleepy", ex)

	id, err := s.Schedule("sleepy", nil, Options{Timeout: 20 * time.Millisecond, MaxRetries: 1})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	j := waitStatus(t, s, id, StatusFailed)
	if j.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", j.RetryCount)
	}
	if j.Err == "" {
		t.Fatal("expected a timeout error on the record")
	}
}

func TestPanicIsFailureNotCrash(t *testing.T) {
	t.Parallel()
	ex := &stubExec{run: func(context.Context, any) (any, error) { panic("kaboom") }}
	s := newTestService(t, Config{RetryDelayBase: 2 * time.Millisecond}, sysload.Static{})
	s.RegisterExecutor("angry", ex)

	id, err := s.Schedule("angry", nil, Options{MaxRetries: 1})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	j := waitStatus(t, s, id, StatusFailed)
	if j.Err == "" {
		t.Fatal("expected panic to surface on the job record")
	}
}

func TestShutdownForceCancelsRunning(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	var once sync.Once
	ex := &stubExec{run: func(ctx context.Context, _ any) (any, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := New(Config{
		TickInterval:  2 * time.Millisecond,
		ReapInterval:  time.Hour,
		ShutdownGrace: 30 * time.Millisecond,
	}, sysload.Static{}, logx.Nop(), eventbus.New(), nil)
	s.RegisterExecutor("blocker", ex)
	s.Start(context.Background())

	id, err := s.Schedule("blocker", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	j, ok := s.JobStatus(id)
	if !ok {
		t.Fatal("job missing after shutdown")
	}
	if j.Status != StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", j.Status)
	}

	if _, err := s.Schedule("blocker", nil, Options{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Schedule after shutdown err = %v, want ErrStopped", err)
	}
}

func TestTerminalRetentionEvictsOldest(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{TerminalRetention: 2}, sysload.Static{})
	s.RegisterExecutor("work", &stubExec{})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Schedule("work", nil, Options{})
		if err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
		waitStatus(t, s, id, StatusCompleted)
		ids = append(ids, id)
	}

	if _, ok := s.JobStatus(ids[0]); ok {
		t.Fatal("oldest terminal record should be evicted past retention")
	}
	for _, id := range ids[1:] {
		if _, ok := s.JobStatus(id); !ok {
			t.Fatalf("job %s evicted while within retention", id)
		}
	}
}

func TestReaperAgesOutTerminalRecords(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{
		ReapInterval: 10 * time.Millisecond,
		TerminalTTL:  20 * time.Millisecond,
	}, sysload.Static{})
	s.RegisterExecutor("work", &stubExec{})

	id, err := s.Schedule("work", nil, Options{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	waitStatus(t, s, id, StatusCompleted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.JobStatus(id); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("terminal record not aged out by reaper")
}

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{}, sysload.Static{CPUPercent: 12})
	s.RegisterExecutor("work", &stubExec{})

	if _, err := s.Schedule("work", nil, Options{Delay: time.Hour, Priority: PriorityLow}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	st := s.Stats()
	if st.PendingTotal != 1 {
		t.Fatalf("PendingTotal = %d, want 1", st.PendingTotal)
	}
	if st.Pending["low"] != 1 {
		t.Fatalf("Pending[low] = %d, want 1", st.Pending["low"])
	}
	if st.Load.CPUPercent != 12 {
		t.Fatalf("Load.CPUPercent = %v, want 12", st.Load.CPUPercent)
	}
}

func TestCountsFeedback(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{}, sysload.Static{})
	s.RegisterExecutor("work", &stubExec{})

	if _, err := s.Schedule("work", nil, Options{Delay: time.Hour}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	running, pending := s.Counts()
	if running != 0 || pending != 1 {
		t.Fatalf("Counts = (%d, %d), want (0, 1)", running, pending)
	}
}
