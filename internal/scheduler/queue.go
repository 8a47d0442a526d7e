package scheduler

import "sort"

// enqueueLocked inserts a pending job into its priority queue, keeping the
// queue ordered ascending by ReadyAt. Insertion is stable: among equal ready
// times, first-scheduled stays first. Call with s.mu held.
func (s *Service) enqueueLocked(j *Job) {
	b := j.Priority.bucket()
	q := s.queues[b]
	// First slot strictly after j.ReadyAt; equal timestamps keep FIFO order.
	i := sort.Search(len(q), func(i int) bool {
		return q[i].ReadyAt.After(j.ReadyAt)
	})
	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = j
	s.queues[b] = q
}

// removeQueuedLocked removes the queue entry at index i of priority p,
// preserving order. Call with s.mu held.
func (s *Service) removeQueuedLocked(p Priority, i int) {
	b := p.bucket()
	q := s.queues[b]
	copy(q[i:], q[i+1:])
	q[len(q)-1] = nil
	s.queues[b] = q[:len(q)-1]
}

// findQueuedLocked scans the pending queues for a job ID. Linear per queue;
// queue depths stay small under the concurrency caps and batch-like workloads.
// Call with s.mu held.
func (s *Service) findQueuedLocked(id string) (*Job, Priority, int) {
	for b := 0; b < numPriorities; b++ {
		for i, j := range s.queues[b] {
			if j.ID == id {
				return j, bucketPriority(b), i
			}
		}
	}
	return nil, priorityUnset, -1
}

// pendingCountLocked returns the total queued jobs across priorities.
// Call with s.mu held.
func (s *Service) pendingCountLocked() int {
	n := 0
	for b := 0; b < numPriorities; b++ {
		n += len(s.queues[b])
	}
	return n
}

// depsMetLocked reports whether every dependency has reached completed.
// The check reads the completed-ID set, not the terminal store: retention
// eviction must not un-satisfy a dependency. A dependency that failed or
// was cancelled never enters the set, so its dependents stay pending
// indefinitely. Call with s.mu held.
func (s *Service) depsMetLocked(j *Job) bool {
	for _, dep := range j.Dependencies {
		if _, ok := s.completed[dep]; !ok {
			return false
		}
	}
	return true
}

// terminalInsertLocked moves a job into the terminal store, enforcing the
// retention cap by evicting the oldest entries. Call with s.mu held.
func (s *Service) terminalInsertLocked(j *Job) {
	if _, ok := s.terminal[j.ID]; ok {
		return
	}
	s.terminal[j.ID] = j
	s.terminalOrder = append(s.terminalOrder, j.ID)

	keep := s.cfg.TerminalRetention
	if keep <= 0 {
		return
	}
	for len(s.terminalOrder) > keep {
		old := s.terminalOrder[0]
		s.terminalOrder = s.terminalOrder[1:]
		delete(s.terminal, old)
	}
}
