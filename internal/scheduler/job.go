package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Priority is one of five fixed scheduling tiers. Lower value = served first.
// The zero value is "unset" and resolves to medium at scheduling time, so a
// zero Options never lands work in the critical tier by accident.
type Priority int

const (
	priorityUnset Priority = iota

	PriorityCritical
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityIdle

	numPriorities = int(PriorityIdle)
)

func (p Priority) Valid() bool { return p >= PriorityCritical && p <= PriorityIdle }

// bucket is the queue index of a valid priority.
func (p Priority) bucket() int { return int(p) - 1 }

func bucketPriority(i int) Priority { return Priority(i + 1) }

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "medium", "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	case "idle":
		return PriorityIdle, nil
	default:
		return PriorityMedium, fmt.Errorf("unknown priority %q", s)
	}
}

// Status is the job lifecycle state.
//
// pending -> running -> {completed | failed | cancelled}
// running -> pending (retry path, bounded by MaxRetries)
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job describes one unit of deferred work and its lifecycle state.
//
// A job occupies exactly one of: a priority queue, the running set, or the
// terminal store. The scheduler owns every Job exclusively; callers get copies.
type Job struct {
	ID       string
	Type     string
	Priority Priority
	Payload  any
	Status   Status

	CreatedAt time.Time
	// ReadyAt is creation time plus any requested delay. It orders jobs within
	// a priority queue and carries the backoff delay on retry re-queues.
	ReadyAt     time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	RetryCount int
	MaxRetries int
	Timeout    time.Duration

	// Dependencies are job IDs that must reach completed before this job is
	// eligible. Evaluated against the terminal store only.
	Dependencies []string

	// EstimatedDuration is advisory, supplied by the executor at scheduling
	// time; never enforced.
	EstimatedDuration time.Duration
	ActualDuration    time.Duration
	Err               string
}

// clone returns a detached copy safe to hand to callers.
func (j *Job) clone() *Job {
	cp := *j
	if len(j.Dependencies) > 0 {
		cp.Dependencies = append([]string(nil), j.Dependencies...)
	}
	return &cp
}

// Options controls scheduling of a single job. Zero value is valid:
// medium priority, scheduler defaults for timeout and retry budget.
type Options struct {
	Priority     Priority
	Timeout      time.Duration
	MaxRetries   int
	Dependencies []string
	Delay        time.Duration
}

func (o Options) withDefaults(cfg Config) (Options, error) {
	if o.Priority == priorityUnset {
		o.Priority = PriorityMedium
	}
	if !o.Priority.Valid() {
		return o, fmt.Errorf("%w: invalid priority %d", ErrBadRequest, int(o.Priority))
	}
	if o.Delay < 0 {
		return o, fmt.Errorf("%w: negative delay", ErrBadRequest)
	}
	if o.Timeout < 0 {
		return o, fmt.Errorf("%w: negative timeout", ErrBadRequest)
	}
	if o.Timeout == 0 {
		o.Timeout = cfg.DefaultTimeout
	}
	if o.MaxRetries < 0 {
		return o, fmt.Errorf("%w: negative max retries", ErrBadRequest)
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = cfg.DefaultMaxRetries
	}
	if len(o.Dependencies) > 0 {
		deps := make([]string, 0, len(o.Dependencies))
		for _, d := range o.Dependencies {
			d = strings.TrimSpace(d)
			if d == "" {
				return o, fmt.Errorf("%w: empty dependency id", ErrBadRequest)
			}
			deps = append(deps, d)
		}
		o.Dependencies = deps
	}
	return o, nil
}
