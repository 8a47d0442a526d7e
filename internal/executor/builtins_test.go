package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "reeljobs/pkg/logx"
)

type fakeWarmer struct {
	scope string
	limit int
	err   error
}

func (f *fakeWarmer) WarmCache(_ context.Context, scope string, limit int) (int, error) {
	f.scope, f.limit = scope, limit
	return limit, f.err
}

type fakePre struct {
	segment string
	err     error
}

func (f *fakePre) Precompute(_ context.Context, segment string) (int, error) {
	f.segment = segment
	return 7, f.err
}

type fakeCleaner struct {
	kind   string
	maxAge time.Duration
}

func (f *fakeCleaner) Cleanup(_ context.Context, kind string, maxAge time.Duration) (int, error) {
	f.kind, f.maxAge = kind, maxAge
	return 3, nil
}

type fakeAnalyzer struct {
	userID string
	err    error
}

func (f *fakeAnalyzer) AnalyzeUser(_ context.Context, userID string) error {
	f.userID = userID
	return f.err
}

func TestCacheWarmExecute(t *testing.T) {
	t.Parallel()
	w := &fakeWarmer{}
	ex := &cacheWarmExecutor{warmer: w, log: logx.Nop()}

	got, err := ex.Execute(context.Background(), CacheWarmPayload{Scope: "trending", Limit: 25})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got.(int) != 25 || w.scope != "trending" || w.limit != 25 {
		t.Fatalf("warm call = (%q, %d), want (trending, 25)", w.scope, w.limit)
	}
}

func TestCacheWarmPayloadFromMap(t *testing.T) {
	t.Parallel()
	w := &fakeWarmer{}
	ex := &cacheWarmExecutor{warmer: w, log: logx.Nop()}

	// Payloads declared in config arrive as generic maps.
	_, err := ex.Execute(context.Background(), map[string]any{"scope": "comedy", "limit": 10})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if w.scope != "comedy" || w.limit != 10 {
		t.Fatalf("warm call = (%q, %d), want (comedy, 10)", w.scope, w.limit)
	}
}

func TestCacheWarmDefaultsAndValidation(t *testing.T) {
	t.Parallel()
	w := &fakeWarmer{}
	ex := &cacheWarmExecutor{warmer: w, log: logx.Nop()}

	if _, err := ex.Execute(context.Background(), CacheWarmPayload{}); err == nil {
		t.Fatal("expected error for missing scope")
	}
	if _, err := ex.Execute(context.Background(), CacheWarmPayload{Scope: "popular"}); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if w.limit != 100 {
		t.Fatalf("limit defaulted to %d, want 100", w.limit)
	}
}

func TestCacheWarmEstimateScalesWithLimit(t *testing.T) {
	t.Parallel()
	ex := &cacheWarmExecutor{log: logx.Nop()}
	small := ex.EstimateDuration(CacheWarmPayload{Scope: "x", Limit: 10})
	large := ex.EstimateDuration(CacheWarmPayload{Scope: "x", Limit: 1000})
	if large <= small {
		t.Fatalf("estimate did not scale: small=%v large=%v", small, large)
	}
}

func TestPrecomputeExecute(t *testing.T) {
	t.Parallel()
	p := &fakePre{}
	ex := &precomputeExecutor{pre: p, log: logx.Nop()}

	got, err := ex.Execute(context.Background(), PrecomputePayload{Segment: "active_7d"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got.(int) != 7 || p.segment != "active_7d" {
		t.Fatalf("precompute call = %q, want active_7d", p.segment)
	}

	if _, err := ex.Execute(context.Background(), PrecomputePayload{}); err == nil {
		t.Fatal("expected error for missing segment")
	}

	p.err = errors.New("db down")
	if _, err := ex.Execute(context.Background(), PrecomputePayload{Segment: "all"}); err == nil {
		t.Fatal("expected wrapped collaborator error")
	}
}

func TestCleanupParsesMaxAge(t *testing.T) {
	t.Parallel()
	c := &fakeCleaner{}
	ex := &cleanupExecutor{cleaner: c, log: logx.Nop()}

	tests := []struct {
		name    string
		payload CleanupPayload
		want    time.Duration
		wantErr bool
	}{
		{name: "explicit", payload: CleanupPayload{Kind: "cache", MaxAge: "48h"}, want: 48 * time.Hour},
		{name: "default", payload: CleanupPayload{Kind: "cache"}, want: 720 * time.Hour},
		{name: "garbage", payload: CleanupPayload{Kind: "cache", MaxAge: "soon"}, wantErr: true},
		{name: "negative", payload: CleanupPayload{Kind: "cache", MaxAge: "-1h"}, wantErr: true},
		{name: "missing kind", payload: CleanupPayload{MaxAge: "1h"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Execute(context.Background(), tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute error: %v", err)
			}
			if c.maxAge != tt.want {
				t.Fatalf("maxAge = %v, want %v", c.maxAge, tt.want)
			}
		})
	}
}

func TestUserAnalysisExecute(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{}
	ex := &analysisExecutor{analyzer: a, log: logx.Nop()}

	if _, err := ex.Execute(context.Background(), UserAnalysisPayload{UserID: "u42"}); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if a.userID != "u42" {
		t.Fatalf("analyzed %q, want u42", a.userID)
	}
	if _, err := ex.Execute(context.Background(), UserAnalysisPayload{}); err == nil {
		t.Fatal("expected error for missing user_id")
	}
}

func TestAdmissionGates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		can  func(float64) bool
		cpu  float64
		want bool
	}{
		{"cache warm under", (&cacheWarmExecutor{}).CanExecute, 70, true},
		{"cache warm over", (&cacheWarmExecutor{}).CanExecute, 80, false},
		{"precompute under", (&precomputeExecutor{}).CanExecute, 45, true},
		{"precompute over", (&precomputeExecutor{}).CanExecute, 55, false},
		{"cleanup under", (&cleanupExecutor{}).CanExecute, 85, true},
		{"cleanup over", (&cleanupExecutor{}).CanExecute, 95, false},
		{"analysis under", (&analysisExecutor{}).CanExecute, 55, true},
		{"analysis over", (&analysisExecutor{}).CanExecute, 65, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.can(tt.cpu); got != tt.want {
				t.Fatalf("CanExecute(%v) = %v, want %v", tt.cpu, got, tt.want)
			}
		})
	}
}

func TestDecodePayloadRejectsMismatch(t *testing.T) {
	t.Parallel()
	var p CacheWarmPayload
	if err := decodePayload("just a string", &p); err == nil {
		t.Fatal("expected decode error for incompatible payload")
	}
	if err := decodePayload(nil, &p); err != nil {
		t.Fatalf("nil payload should be accepted: %v", err)
	}
}
