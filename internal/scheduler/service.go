package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"reeljobs/internal/eventbus"
	"reeljobs/internal/metrics"
	rtsup "reeljobs/internal/runtime/supervisor"
	"reeljobs/internal/sysload"
	logx "reeljobs/pkg/logx"
)

// Config controls the scheduler. Thresholds are CPU percentages (0..100).
type Config struct {
	TickInterval time.Duration
	ReapInterval time.Duration

	MaxConcurrentJobs int
	MaxJobsPerType    int

	// LoadThreshold suppresses all admission while CPU load exceeds it.
	// IdleThreshold must be at or below which idle-priority jobs may run.
	LoadThreshold float64
	IdleThreshold float64

	// RetryDelayBase scales the linear backoff: delay = base * retryCount.
	RetryDelayBase    time.Duration
	DefaultTimeout    time.Duration
	DefaultMaxRetries int

	// TerminalRetention caps the terminal store; oldest entries are evicted
	// past the cap. Unset falls back to 1024. TerminalTTL additionally ages
	// entries out via the reaper; 0 disables it.
	TerminalRetention int
	TerminalTTL       time.Duration

	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 4
	}
	if c.MaxJobsPerType <= 0 {
		c.MaxJobsPerType = 2
	}
	if c.LoadThreshold <= 0 {
		c.LoadThreshold = 80
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = 30
	}
	if c.RetryDelayBase <= 0 {
		c.RetryDelayBase = 5 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = time.Minute
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	if c.TerminalRetention <= 0 {
		c.TerminalRetention = 1024
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

type runningJob struct {
	job    *Job
	cancel context.CancelFunc

	// cancelRequested marks a best-effort cancel of an in-flight job. The
	// attempt is not killed; when it returns, the job lands in the terminal
	// store as cancelled instead of entering the retry path.
	cancelRequested bool
}

// Service owns all scheduling state. Admission decisions happen on a single
// tick loop; job bodies run as independent goroutines and report back through
// finish(), so the mutex is the only writer coordination needed.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus *eventbus.Bus

	load sysload.Source
	mets *metrics.Set
	reg  *registry

	queues        [numPriorities][]*Job
	running       map[string]*runningJob
	runningByType map[string]int
	terminal      map[string]*Job
	terminalOrder []string

	// completed records the IDs of every successfully completed job,
	// independent of terminal-store retention. Dependency checks read this
	// set, so a dependency stays satisfied after its record is evicted.
	completed map[string]struct{}

	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopping bool

	// Throttles the per-tick load-gate log line.
	gateWarn rate.Sometimes
}

func New(cfg Config, load sysload.Source, log logx.Logger, bus *eventbus.Bus, mets *metrics.Set) *Service {
	if load == nil {
		load = sysload.Static{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:           cfg.withDefaults(),
		log:           log,
		bus:           bus,
		load:          load,
		mets:          mets,
		reg:           newRegistry(),
		running:       make(map[string]*runningJob),
		runningByType: make(map[string]int),
		terminal:      make(map[string]*Job),
		completed:     make(map[string]struct{}),
		gateWarn:      rate.Sometimes{Interval: 30 * time.Second},
	}
}

// RegisterExecutor installs the execution strategy for a job type.
// Must be called before jobs of that type are scheduled; re-registration
// overwrites silently.
func (s *Service) RegisterExecutor(jobType string, ex Executor) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" || ex == nil {
		return
	}
	s.reg.register(jobType, ex)
	s.log.Debug("executor registered", logx.String("type", jobType))
}

// Start launches the tick loop and the reaper. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "scheduler"))),
		// A wedged loop should self-heal, not kill the app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	cfg := s.cfg
	s.mu.Unlock()

	sup.GoRestart("scheduler.loop", func(c context.Context) error {
		return s.runLoop(c, stopCh)
	})
	sup.GoRestart("scheduler.reaper", func(c context.Context) error {
		return s.runReaper(c, stopCh)
	})

	s.log.Info("scheduler started",
		logx.Duration("tick", cfg.TickInterval),
		logx.Int("max_concurrent", cfg.MaxConcurrentJobs),
		logx.Int("max_per_type", cfg.MaxJobsPerType),
		logx.Float64("load_threshold", cfg.LoadThreshold),
		logx.Float64("idle_threshold", cfg.IdleThreshold),
	)
}

// Apply swaps tunables at runtime (hot reload). Caps and thresholds take
// effect on the next tick; the tick interval on the next timer reset.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	s.mu.Unlock()
	if prev != cfg {
		s.log.Info("scheduler config applied",
			logx.Duration("tick", cfg.TickInterval),
			logx.Int("max_concurrent", cfg.MaxConcurrentJobs),
			logx.Float64("load_threshold", cfg.LoadThreshold),
		)
	}
}

// Schedule accepts one unit of deferred work and returns its job ID.
// It only fails on malformed requests (ErrBadRequest) or after shutdown
// (ErrStopped); downstream failures surface via JobStatus polling.
func (s *Service) Schedule(jobType string, payload any, opt Options) (string, error) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return "", fmt.Errorf("%w: empty job type", ErrBadRequest)
	}

	s.mu.Lock()
	cfg := s.cfg
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return "", ErrStopped
	}

	opt, err := opt.withDefaults(cfg)
	if err != nil {
		return "", err
	}

	now := time.Now()
	j := &Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		Priority:     opt.Priority,
		Payload:      payload,
		Status:       StatusPending,
		CreatedAt:    now,
		ReadyAt:      now.Add(opt.Delay),
		MaxRetries:   opt.MaxRetries,
		Timeout:      opt.Timeout,
		Dependencies: opt.Dependencies,
	}

	ex, ok := s.reg.lookup(jobType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return "", ErrStopped
	}

	if !ok {
		// Admission error: terminal immediately, no retry. The caller still
		// gets a job ID so the failure is observable by polling.
		j.Status = StatusFailed
		j.Err = errNoExecutor.Error()
		j.CompletedAt = now
		s.terminalInsertLocked(j)
		s.publish(eventbus.JobFailed, j, 0)
		s.mets.Failed(j.Type, 0)
		s.log.Warn("job rejected: no executor for type", logx.String("type", jobType), logx.String("id", j.ID))
		return j.ID, nil
	}

	j.EstimatedDuration = ex.EstimateDuration(payload)
	s.enqueueLocked(j)
	s.publish(eventbus.JobScheduled, j, 0)
	s.mets.Scheduled(j.Type, j.Priority.String())
	s.mets.SetPending(j.Priority.String(), len(s.queues[j.Priority.bucket()]))

	s.log.Debug("job scheduled",
		logx.String("id", j.ID),
		logx.String("type", j.Type),
		logx.String("priority", j.Priority.String()),
		logx.Time("ready_at", j.ReadyAt),
		logx.Duration("estimated", j.EstimatedDuration),
	)
	return j.ID, nil
}

// Cancel pulls a pending job from its queue and returns true. For a job that
// is already running it requests a cooperative cancel (the attempt's context
// is cancelled, in-flight work is not stopped) and returns false, as it does
// for terminal or unknown IDs.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, p, i := s.findQueuedLocked(id); j != nil {
		s.removeQueuedLocked(p, i)
		now := time.Now()
		j.Status = StatusCancelled
		j.CompletedAt = now
		s.terminalInsertLocked(j)
		s.publish(eventbus.JobCancelled, j, 0)
		s.mets.Cancelled(j.Type)
		s.mets.SetPending(p.String(), len(s.queues[p.bucket()]))
		s.log.Debug("job cancelled", logx.String("id", id), logx.String("type", j.Type))
		return true
	}

	if rj, ok := s.running[id]; ok {
		rj.cancelRequested = true
		rj.cancel()
		s.log.Debug("cancel requested for running job", logx.String("id", id), logx.String("type", rj.job.Type))
		return false
	}
	return false
}

// JobStatus returns a copy of the job record, or false if the ID is unknown
// (including IDs already evicted from the terminal store by retention).
func (s *Service) JobStatus(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rj, ok := s.running[id]; ok {
		return rj.job.clone(), true
	}
	if j, ok := s.terminal[id]; ok {
		return j.clone(), true
	}
	if j, _, i := s.findQueuedLocked(id); i >= 0 {
		return j.clone(), true
	}
	return nil, false
}

// Stats is a read-only snapshot for diagnostics; no side effects.
type Stats struct {
	Pending      map[string]int `json:"pending"`
	PendingTotal int            `json:"pending_total"`
	Running      int            `json:"running"`
	Terminal     int            `json:"terminal"`
	Load         sysload.Metrics
}

func (s *Service) Stats() Stats {
	load := s.load.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Pending:  make(map[string]int, numPriorities),
		Running:  len(s.running),
		Terminal: len(s.terminal),
		Load:     load,
	}
	for b := 0; b < numPriorities; b++ {
		st.Pending[bucketPriority(b).String()] = len(s.queues[b])
		st.PendingTotal += len(s.queues[b])
	}
	return st
}

// Counts reports (running, pending) for load-source feedback.
func (s *Service) Counts() (running, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running), s.pendingCountLocked()
}

// Shutdown stops the tick and reaper loops, waits up to the configured grace
// period (bounded additionally by ctx) for running jobs to drain, then
// force-marks any still-running jobs cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	if s.stopCh != nil {
		close(s.stopCh)
	}
	sup := s.sup
	grace := s.cfg.ShutdownGrace
	s.mu.Unlock()

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

drain:
	for {
		s.mu.Lock()
		n := len(s.running)
		s.mu.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break drain
		case <-deadline.C:
			break drain
		case <-poll.C:
		}
	}

	// Force-mark leftovers. Their goroutines unwind once the supervisor
	// context is cancelled below; finish() no-ops for jobs already removed.
	s.mu.Lock()
	now := time.Now()
	forced := 0
	for id, rj := range s.running {
		rj.cancel()
		j := rj.job
		j.Status = StatusCancelled
		j.CompletedAt = now
		if !j.StartedAt.IsZero() {
			j.ActualDuration = now.Sub(j.StartedAt)
		}
		j.Err = "cancelled at shutdown"
		s.terminalInsertLocked(j)
		s.publish(eventbus.JobCancelled, j, j.ActualDuration)
		s.mets.Cancelled(j.Type)
		delete(s.running, id)
		forced++
	}
	s.runningByType = make(map[string]int)
	s.mets.SetRunning(0)
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(ctx)
	}

	if forced > 0 {
		s.log.Warn("scheduler stopped with jobs force-cancelled", logx.Int("forced", forced))
	} else {
		s.log.Info("scheduler stopped")
	}
	return nil
}
