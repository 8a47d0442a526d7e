package scheduler

import (
	"context"
	"time"

	logx "reeljobs/pkg/logx"
)

// runReaper sweeps on a fixed interval. The pending-queue sweep is defensive:
// terminal jobs are moved out immediately on transition, so a hit here means
// bookkeeping went wrong somewhere. The TTL pass ages out the terminal store.
func (s *Service) runReaper(ctx context.Context, stopCh <-chan struct{}) error {
	s.mu.Lock()
	interval := s.cfg.ReapInterval
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

		swept, aged := s.reap(time.Now())
		if swept > 0 {
			s.log.Warn("reaper evicted terminal jobs from pending queues", logx.Int("count", swept))
		}
		if aged > 0 {
			s.log.Debug("reaper aged out terminal records", logx.Int("count", aged))
		}

		s.mu.Lock()
		interval = s.cfg.ReapInterval
		s.mu.Unlock()
		t.Reset(interval)
	}
}

func (s *Service) reap(now time.Time) (swept, aged int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for b := 0; b < numPriorities; b++ {
		q := s.queues[b]
		n := 0
		for _, j := range q {
			if j.Status.Terminal() {
				swept++
				s.terminalInsertLocked(j)
				continue
			}
			q[n] = j
			n++
		}
		for i := n; i < len(q); i++ {
			q[i] = nil
		}
		s.queues[b] = q[:n]
	}

	if ttl := s.cfg.TerminalTTL; ttl > 0 {
		cutoff := now.Add(-ttl)
		// terminalOrder is insertion-ordered, which tracks completion time.
		for len(s.terminalOrder) > 0 {
			id := s.terminalOrder[0]
			j, ok := s.terminal[id]
			if ok && j.CompletedAt.After(cutoff) {
				break
			}
			s.terminalOrder = s.terminalOrder[1:]
			if ok {
				delete(s.terminal, id)
				aged++
			}
		}
	}
	return swept, aged
}
