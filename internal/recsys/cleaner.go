package recsys

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reeljobs/internal/storage"
	logx "reeljobs/pkg/logx"
)

// Cleaner removes stale derived data. Kinds:
//
//	"cache"    - warmed lists and taste profiles older than maxAge
//	"history"  - persisted job history records older than maxAge
//	"all"      - both of the above
type Cleaner struct {
	lib   *Library
	store storage.Store // may be nil (history kind becomes a no-op)
	log   logx.Logger
}

func NewCleaner(lib *Library, store storage.Store, log logx.Logger) *Cleaner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cleaner{lib: lib, store: store, log: log}
}

func (c *Cleaner) Cleanup(ctx context.Context, kind string, maxAge time.Duration) (int, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = "all"
	}

	removed := 0
	switch kind {
	case "cache":
		n, err := c.lib.EvictStale(ctx, maxAge)
		if err != nil {
			return removed, err
		}
		removed += n
	case "history":
		n, err := c.pruneHistory(ctx, maxAge)
		if err != nil {
			return removed, err
		}
		removed += n
	case "all":
		n, err := c.lib.EvictStale(ctx, maxAge)
		if err != nil {
			return removed, err
		}
		removed += n
		n, err = c.pruneHistory(ctx, maxAge)
		if err != nil {
			return removed, err
		}
		removed += n
	default:
		return 0, fmt.Errorf("unknown cleanup kind %q", kind)
	}

	c.log.Debug("cleanup done", logx.String("kind", kind), logx.Duration("max_age", maxAge), logx.Int("removed", removed))
	return removed, nil
}

func (c *Cleaner) pruneHistory(ctx context.Context, maxAge time.Duration) (int, error) {
	if c.store == nil || maxAge <= 0 {
		return 0, nil
	}
	return c.store.PruneJobRecords(ctx, time.Now().Add(-maxAge))
}
