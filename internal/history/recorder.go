// Package history records terminal job transitions into the configured store.
// It listens on the event bus so the scheduler stays free of persistence
// concerns; a slow or broken store can drop events but never block scheduling.
package history

import (
	"context"
	"time"

	"reeljobs/internal/eventbus"
	"reeljobs/internal/scheduler"
	"reeljobs/internal/storage"
	logx "reeljobs/pkg/logx"
)

const writeTimeout = 2 * time.Second

type Recorder struct {
	bus   *eventbus.Bus
	store storage.Store
	log   logx.Logger

	// retain prunes records older than this on a periodic pass.
	// 0 keeps everything.
	retain time.Duration
}

func New(bus *eventbus.Bus, store storage.Store, retain time.Duration, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	if retain < 0 {
		retain = 0
	}
	return &Recorder{bus: bus, store: store, retain: retain, log: log}
}

// Run consumes job events until ctx is done. Intended to run under the app
// supervisor. No-op when storage is disabled.
func (r *Recorder) Run(ctx context.Context) error {
	if r.store == nil || r.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ch, unsub := r.bus.Subscribe(64)
	defer unsub()

	var pruneCh <-chan time.Time
	if r.retain > 0 {
		iv := r.retain
		if iv > time.Hour {
			iv = time.Hour
		}
		t := time.NewTicker(iv)
		defer t.Stop()
		pruneCh = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pruneCh:
			r.prune(ctx)
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, e)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	n, err := r.store.PruneJobRecords(wctx, time.Now().Add(-r.retain))
	if err != nil {
		r.log.Warn("job history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		r.log.Debug("job history pruned", logx.Int("removed", n), logx.Duration("retain_for", r.retain))
	}
}

func (r *Recorder) handle(ctx context.Context, e eventbus.Event) {
	switch e.Type {
	case eventbus.JobCompleted, eventbus.JobFailed, eventbus.JobCancelled:
	default:
		return
	}
	je, ok := e.Data.(scheduler.JobEvent)
	if !ok {
		return
	}

	rec := storage.JobRecord{
		JobID:       je.JobID,
		Type:        je.Type,
		Priority:    je.Priority,
		Status:      string(je.Status),
		CreatedAt:   je.CreatedAt,
		CompletedAt: e.Time,
		Attempts:    je.Attempt + 1,
		DurationMS:  je.Duration.Milliseconds(),
		Error:       je.Error,
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.store.AppendJobRecord(wctx, rec); err != nil {
		r.log.Warn("job history write failed", logx.String("job_id", je.JobID), logx.Err(err))
	}
}
