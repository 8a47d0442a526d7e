package scheduler

import (
	"time"

	"reeljobs/internal/eventbus"
)

// JobEvent is the bus payload for job lifecycle events.
type JobEvent struct {
	JobID     string        `json:"job_id"`
	Type      string        `json:"type"`
	Priority  string        `json:"priority"`
	Status    Status        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Attempt   int           `json:"attempt,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (s *Service) publish(eventType string, j *Job, d time.Duration) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventType,
		Time: time.Now(),
		Data: JobEvent{
			JobID:     j.ID,
			Type:      j.Type,
			Priority:  j.Priority.String(),
			Status:    j.Status,
			CreatedAt: j.CreatedAt,
			Attempt:   j.RetryCount,
			Duration:  d,
			Error:     j.Err,
		},
	})
}
