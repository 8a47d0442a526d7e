package executor

import (
	"context"
	"fmt"
	"time"

	logx "reeljobs/pkg/logx"
)

// ---- cache warming ----

// CacheWarmPayload selects a cache scope ("trending", "top_rated", a genre
// slug, ...) and how many entries to populate.
type CacheWarmPayload struct {
	Scope string `json:"scope"`
	Limit int    `json:"limit"`
}

type cacheWarmExecutor struct {
	warmer CacheWarmer
	log    logx.Logger
}

func (e *cacheWarmExecutor) Execute(ctx context.Context, payload any) (any, error) {
	var p CacheWarmPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Scope == "" {
		return nil, fmt.Errorf("cache warm: scope is required")
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	n, err := e.warmer.WarmCache(ctx, p.Scope, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("warm %q: %w", p.Scope, err)
	}
	e.log.Debug("cache warmed", logx.String("scope", p.Scope), logx.Int("entries", n))
	return n, nil
}

func (e *cacheWarmExecutor) EstimateDuration(payload any) time.Duration {
	var p CacheWarmPayload
	_ = decodePayload(payload, &p)
	if p.Limit <= 0 {
		p.Limit = 100
	}
	// Rough figure: a few ms of upstream fetch per entry.
	return 200*time.Millisecond + time.Duration(p.Limit)*5*time.Millisecond
}

// Warming hits upstream metadata services; keep it off a busy box.
func (e *cacheWarmExecutor) CanExecute(cpuPercent float64) bool { return cpuPercent <= 75 }

// ---- batch precomputation ----

// PrecomputePayload names the user segment whose recommendation rows to
// rebuild ("active_7d", "new_signups", ...).
type PrecomputePayload struct {
	Segment string `json:"segment"`
}

type precomputeExecutor struct {
	pre Precomputer
	log logx.Logger
}

func (e *precomputeExecutor) Execute(ctx context.Context, payload any) (any, error) {
	var p PrecomputePayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Segment == "" {
		return nil, fmt.Errorf("precompute: segment is required")
	}
	rows, err := e.pre.Precompute(ctx, p.Segment)
	if err != nil {
		return nil, fmt.Errorf("precompute %q: %w", p.Segment, err)
	}
	e.log.Debug("segment precomputed", logx.String("segment", p.Segment), logx.Int("rows", rows))
	return rows, nil
}

func (e *precomputeExecutor) EstimateDuration(any) time.Duration { return 30 * time.Second }

// The similarity math is CPU-heavy; only admit on a mostly idle machine.
func (e *precomputeExecutor) CanExecute(cpuPercent float64) bool { return cpuPercent <= 50 }

// ---- cleanup ----

// CleanupPayload picks a record kind ("job_history", "stale_sessions", ...)
// and the age past which records are discarded.
type CleanupPayload struct {
	Kind   string `json:"kind"`
	MaxAge string `json:"max_age"` // duration string; empty means 720h
}

type cleanupExecutor struct {
	cleaner Cleaner
	log     logx.Logger
}

func (e *cleanupExecutor) Execute(ctx context.Context, payload any) (any, error) {
	var p CleanupPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Kind == "" {
		return nil, fmt.Errorf("cleanup: kind is required")
	}
	maxAge := 720 * time.Hour
	if p.MaxAge != "" {
		d, err := time.ParseDuration(p.MaxAge)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("cleanup: invalid max_age %q", p.MaxAge)
		}
		maxAge = d
	}
	n, err := e.cleaner.Cleanup(ctx, p.Kind, maxAge)
	if err != nil {
		return nil, fmt.Errorf("cleanup %q: %w", p.Kind, err)
	}
	e.log.Debug("cleanup done", logx.String("kind", p.Kind), logx.Int("removed", n))
	return n, nil
}

func (e *cleanupExecutor) EstimateDuration(any) time.Duration { return 2 * time.Second }

// Cleanup is mostly I/O and cheap; it may run under load short of saturation.
func (e *cleanupExecutor) CanExecute(cpuPercent float64) bool { return cpuPercent <= 90 }

// ---- per-user analysis ----

// UserAnalysisPayload identifies the user whose taste profile to refresh.
type UserAnalysisPayload struct {
	UserID string `json:"user_id"`
}

type analysisExecutor struct {
	analyzer Analyzer
	log      logx.Logger
}

func (e *analysisExecutor) Execute(ctx context.Context, payload any) (any, error) {
	var p UserAnalysisPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("user analysis: user_id is required")
	}
	if err := e.analyzer.AnalyzeUser(ctx, p.UserID); err != nil {
		return nil, fmt.Errorf("analyze user %s: %w", p.UserID, err)
	}
	return nil, nil
}

func (e *analysisExecutor) EstimateDuration(any) time.Duration { return 5 * time.Second }

func (e *analysisExecutor) CanExecute(cpuPercent float64) bool { return cpuPercent <= 60 }
