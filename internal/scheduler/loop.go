package scheduler

import (
	"context"
	"time"

	"reeljobs/internal/eventbus"
	logx "reeljobs/pkg/logx"
)

// runLoop drives admission on a fixed tick. The interval is re-read every
// iteration so hot-reloaded config takes effect without a restart.
func (s *Service) runLoop(ctx context.Context, stopCh <-chan struct{}) error {
	s.mu.Lock()
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	t := time.NewTimer(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return context.Canceled
		case <-t.C:
		}

		s.tick(time.Now())

		s.mu.Lock()
		interval = s.cfg.TickInterval
		s.mu.Unlock()
		t.Reset(interval)
	}
}

// tick makes at most one admission decision. One job per tick keeps queue
// mutation single-writer and re-evaluates system load before every dispatch,
// trading a little queue latency for safety against load spikes.
func (s *Service) tick(now time.Time) {
	load := s.load.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return
	}
	cfg := s.cfg

	if len(s.running) >= cfg.MaxConcurrentJobs {
		s.mets.AdmissionSkip("capacity")
		return
	}
	if load.CPUPercent > cfg.LoadThreshold {
		s.mets.AdmissionSkip("load")
		s.gateWarn.Do(func() {
			s.log.Debug("admission suppressed: load above threshold",
				logx.Float64("cpu", load.CPUPercent),
				logx.Float64("threshold", cfg.LoadThreshold),
				logx.Int("pending", s.pendingCountLocked()),
			)
		})
		return
	}

	for b := 0; b < numPriorities; b++ {
		prio := bucketPriority(b)
		if prio == PriorityIdle && load.CPUPercent > cfg.IdleThreshold {
			continue
		}
		for i, j := range s.queues[b] {
			// Queues are ordered by ReadyAt; nothing later in this bucket is
			// ready either.
			if j.ReadyAt.After(now) {
				break
			}
			if !s.depsMetLocked(j) {
				continue
			}
			if s.runningByType[j.Type] >= cfg.MaxJobsPerType {
				continue
			}
			ex, ok := s.reg.lookup(j.Type)
			if !ok {
				// Executor disappeared between scheduling and admission.
				s.removeQueuedLocked(prio, i)
				j.Status = StatusFailed
				j.Err = errNoExecutor.Error()
				j.CompletedAt = now
				s.terminalInsertLocked(j)
				s.publish(eventbus.JobFailed, j, 0)
				s.mets.Failed(j.Type, 0)
				return
			}
			if !ex.CanExecute(load.CPUPercent) {
				continue
			}

			s.removeQueuedLocked(prio, i)
			s.admitLocked(j, ex, now)
			s.mets.SetPending(prio.String(), len(s.queues[b]))
			return
		}
	}
}
