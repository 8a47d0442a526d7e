// Package executor provides the built-in execution strategies for the four
// standing job types of the recommendation service: cache warming, batch
// precomputation, cleanup, and per-user taste analysis.
//
// Each executor is a thin adapter around one collaborator interface; the
// actual cache, recommendation math, and persistence live behind those
// interfaces and are injected at wiring time. Swapping a collaborator never
// touches the scheduler.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reeljobs/internal/scheduler"
	logx "reeljobs/pkg/logx"
)

// Job type tags for the built-in executors.
const (
	TypeCacheWarm    = "cache_warm"
	TypePrecompute   = "precompute"
	TypeCleanup      = "cleanup"
	TypeUserAnalysis = "user_analysis"
)

// Collaborator contracts. Implementations are external to the scheduler core.

type CacheWarmer interface {
	// WarmCache populates the named cache scope and returns the entry count.
	WarmCache(ctx context.Context, scope string, limit int) (int, error)
}

type Precomputer interface {
	// Precompute recomputes recommendation rows for a user segment and
	// returns the row count.
	Precompute(ctx context.Context, segment string) (int, error)
}

type Cleaner interface {
	// Cleanup removes stale records of the given kind older than maxAge and
	// returns how many were removed.
	Cleanup(ctx context.Context, kind string, maxAge time.Duration) (int, error)
}

type Analyzer interface {
	// AnalyzeUser refreshes one user's taste profile.
	AnalyzeUser(ctx context.Context, userID string) error
}

// Deps bundles the collaborators for RegisterBuiltins.
type Deps struct {
	Warmer      CacheWarmer
	Precomputer Precomputer
	Cleaner     Cleaner
	Analyzer    Analyzer
}

// RegisterBuiltins installs every built-in executor whose collaborator is
// present. Missing collaborators simply leave their job type unregistered.
func RegisterBuiltins(s *scheduler.Service, deps Deps, log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Warmer != nil {
		s.RegisterExecutor(TypeCacheWarm, &cacheWarmExecutor{warmer: deps.Warmer, log: log.With(logx.String("exec", TypeCacheWarm))})
	}
	if deps.Precomputer != nil {
		s.RegisterExecutor(TypePrecompute, &precomputeExecutor{pre: deps.Precomputer, log: log.With(logx.String("exec", TypePrecompute))})
	}
	if deps.Cleaner != nil {
		s.RegisterExecutor(TypeCleanup, &cleanupExecutor{cleaner: deps.Cleaner, log: log.With(logx.String("exec", TypeCleanup))})
	}
	if deps.Analyzer != nil {
		s.RegisterExecutor(TypeUserAnalysis, &analysisExecutor{analyzer: deps.Analyzer, log: log.With(logx.String("exec", TypeUserAnalysis))})
	}
}

// decodePayload accepts either the executor's typed payload struct or a
// generic map (payloads declared in config files arrive as maps) and fills
// dst via a JSON round-trip.
func decodePayload(payload, dst any) error {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
