// Package scheduler is an in-process background job scheduler: a
// priority-ordered, concurrency-bounded, retry-capable task runner.
//
// Jobs are accepted through Schedule, held in five priority queues ordered by
// ready time, and admitted by a single tick loop that re-checks system load
// before every dispatch. Execution strategies are registered per job type
// (RegisterExecutor); the scheduler itself is type-agnostic beyond dispatch.
//
// All queue and lifecycle state is owned by one Service instance guarded by a
// single mutex; executors only ever see the opaque payload, never the Job
// record.
package scheduler
