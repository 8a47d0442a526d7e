// Package storage persists terminal job records for audit and status lookup
// beyond the scheduler's in-memory retention window. It is append-only
// history, not a durable queue: nothing here is ever re-enqueued on restart.
package storage
