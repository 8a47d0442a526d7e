package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"reeljobs/internal/eventbus"
	logx "reeljobs/pkg/logx"
)

// admitLocked moves a queue-removed job into the running set and dispatches
// its body onto an independent goroutine. Call with s.mu held.
func (s *Service) admitLocked(j *Job, ex Executor, now time.Time) {
	j.Status = StatusRunning
	if j.StartedAt.IsZero() {
		j.StartedAt = now
	}

	ctx, cancel := context.WithCancel(s.sup.Context())
	s.running[j.ID] = &runningJob{job: j, cancel: cancel}
	s.runningByType[j.Type]++
	s.mets.SetRunning(len(s.running))

	s.publish(eventbus.JobStarted, j, 0)
	s.log.Debug("job started",
		logx.String("id", j.ID),
		logx.String("type", j.Type),
		logx.String("priority", j.Priority.String()),
		logx.Int("attempt", j.RetryCount+1),
	)

	id, jobType, payload, timeout := j.ID, j.Type, j.Payload, j.Timeout
	s.sup.Go0("job."+jobType, func(context.Context) {
		s.runJob(ctx, cancel, id, payload, timeout, ex)
	})
}

// runJob races one execute attempt against its wall-clock budget. A timed-out
// attempt is abandoned, not killed: its context is cancelled so a cooperative
// executor can self-abort, and the scheduler's bookkeeping moves on.
func (s *Service) runJob(ctx context.Context, cancel context.CancelFunc, id string, payload any, timeout time.Duration, ex Executor) {
	defer cancel()
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", logx.String("id", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		_, err := ex.Execute(ctx, payload)
		done <- err
	}()

	var err error
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case err = <-done:
	case <-tmr.C:
		err = errTimeout
		cancel()
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.finish(id, time.Since(start), err)
}

// finish resolves one attempt: completion, a delayed retry re-queue, or a
// terminal failure. No-ops for jobs no longer in the running set (shutdown
// force-marked them already).
func (s *Service) finish(id string, attemptDur time.Duration, err error) {
	s.mu.Lock()

	rj, ok := s.running[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.running, id)
	j := rj.job
	if s.runningByType[j.Type] <= 1 {
		delete(s.runningByType, j.Type)
	} else {
		s.runningByType[j.Type]--
	}
	s.mets.SetRunning(len(s.running))

	now := time.Now()
	cfg := s.cfg

	switch {
	case rj.cancelRequested:
		j.Status = StatusCancelled
		j.CompletedAt = now
		j.ActualDuration = now.Sub(j.StartedAt)
		if j.Err == "" {
			j.Err = "cancelled while running"
		}
		s.terminalInsertLocked(j)
		s.publish(eventbus.JobCancelled, j, attemptDur)
		s.mets.Cancelled(j.Type)
		s.log.Debug("job cancelled while running", logx.String("id", id), logx.String("type", j.Type))

	case err == nil:
		j.Status = StatusCompleted
		j.CompletedAt = now
		j.ActualDuration = now.Sub(j.StartedAt)
		s.completed[id] = struct{}{}
		s.terminalInsertLocked(j)
		s.publish(eventbus.JobCompleted, j, attemptDur)
		s.mets.Completed(j.Type, attemptDur)
		s.log.Debug("job completed",
			logx.String("id", id),
			logx.String("type", j.Type),
			logx.Duration("dur", j.ActualDuration),
			logx.Int("attempts", j.RetryCount+1),
		)

	case j.RetryCount < j.MaxRetries:
		j.RetryCount++
		j.Status = StatusPending
		j.ReadyAt = now.Add(cfg.RetryDelayBase * time.Duration(j.RetryCount))
		j.Err = ""
		s.enqueueLocked(j)
		s.publish(eventbus.JobRetried, j, attemptDur)
		s.mets.Retried(j.Type)
		s.log.Warn("job attempt failed; retry scheduled",
			logx.String("id", id),
			logx.String("type", j.Type),
			logx.Int("retry", j.RetryCount),
			logx.Int("max_retries", j.MaxRetries),
			logx.Time("ready_at", j.ReadyAt),
			logx.Err(err),
		)

	default:
		j.Status = StatusFailed
		j.CompletedAt = now
		j.ActualDuration = now.Sub(j.StartedAt)
		j.Err = err.Error()
		s.terminalInsertLocked(j)
		s.publish(eventbus.JobFailed, j, attemptDur)
		s.mets.Failed(j.Type, attemptDur)
		s.log.Warn("job failed",
			logx.String("id", id),
			logx.String("type", j.Type),
			logx.Int("retries", j.RetryCount),
			logx.Err(err),
		)
	}
	s.mu.Unlock()

	failed := err != nil && !errors.Is(err, context.Canceled)
	s.observeOutcome(attemptDur, failed)
}

// outcomeObserver is implemented by load sources that want per-attempt
// feedback (avg response time, error rate).
type outcomeObserver interface {
	Observe(d time.Duration, failed bool)
}

func (s *Service) observeOutcome(d time.Duration, failed bool) {
	if ob, ok := s.load.(outcomeObserver); ok {
		ob.Observe(d, failed)
	}
}
