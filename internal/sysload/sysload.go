// Package sysload supplies current system-load metrics to the job scheduler.
//
// The scheduler consults a Source before every admission decision; executors
// consult the CPU figure through their own admission guards. Sampler is the
// production implementation (procfs + scheduler feedback); Static is a fixed
// source for tests and for platforms without /proc.
package sysload

import (
	"time"
)

// Metrics is a point-in-time view of system and scheduler load.
//
// CPUPercent and MemoryPercent are 0..100. ActiveJobs and QueueLength are
// scheduler feedback, filled from the bound snapshot func. AvgResponseTime and
// ErrorRatePercent are rolling figures over recently finished jobs.
type Metrics struct {
	CPUPercent       float64
	MemoryPercent    float64
	ActiveJobs       int
	QueueLength      int
	AvgResponseTime  time.Duration
	ErrorRatePercent float64
	Timestamp        time.Time
}

// Source supplies load metrics on demand, synchronously.
//
// The scheduler trusts whatever value is returned; freshness is the
// implementation's concern.
type Source interface {
	Current() Metrics
}

// Static is a fixed Source. Zero value reads as an unloaded system.
type Static struct {
	CPUPercent       float64
	MemoryPercent    float64
	AvgResponseTime  time.Duration
	ErrorRatePercent float64
}

func (s Static) Current() Metrics {
	return Metrics{
		CPUPercent:       s.CPUPercent,
		MemoryPercent:    s.MemoryPercent,
		AvgResponseTime:  s.AvgResponseTime,
		ErrorRatePercent: s.ErrorRatePercent,
		Timestamp:        time.Now(),
	}
}
