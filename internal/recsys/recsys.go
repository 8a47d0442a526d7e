// Package recsys holds the in-memory recommendation engine the background
// jobs operate on: a movie catalog, user rating data, a warmable
// recommendation cache, and per-user taste profiles.
package recsys

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	logx "reeljobs/pkg/logx"
)

type Movie struct {
	ID         string
	Title      string
	Genres     []string
	Popularity float64 // 0..100
}

type Rating struct {
	MovieID string
	Score   float64 // 0..5
	RatedAt time.Time
}

// cacheEntry is one warmed recommendation list, keyed by scope.
type cacheEntry struct {
	movieIDs []string
	warmedAt time.Time
}

// profile captures a user's genre affinities, normalized to sum to 1.
type profile struct {
	weights    map[string]float64
	computedAt time.Time
}

type Library struct {
	mu sync.RWMutex

	log     logx.Logger
	now     func() time.Time
	movies  []Movie
	ratings map[string][]Rating // by user ID

	cache    map[string]cacheEntry
	profiles map[string]profile
	recs     map[string][]string // precomputed lists by user ID
}

func NewLibrary(log logx.Logger) *Library {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Library{
		log:      log,
		now:      time.Now,
		ratings:  make(map[string][]Rating),
		cache:    make(map[string]cacheEntry),
		profiles: make(map[string]profile),
		recs:     make(map[string][]string),
	}
}

func (l *Library) AddMovie(m Movie) {
	l.mu.Lock()
	l.movies = append(l.movies, m)
	l.mu.Unlock()
}

func (l *Library) AddRating(userID string, r Rating) {
	l.mu.Lock()
	l.ratings[userID] = append(l.ratings[userID], r)
	l.mu.Unlock()
}

// WarmCache fills the recommendation cache for one scope: "popular" for the
// global top list, or a genre name for a per-genre list. Returns the number
// of entries written.
func (l *Library) WarmCache(ctx context.Context, scope string, limit int) (int, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		scope = "popular"
	}
	if limit <= 0 {
		limit = 50
	}

	l.mu.RLock()
	candidates := make([]Movie, 0, len(l.movies))
	for _, m := range l.movies {
		if scope == "popular" || hasGenre(m, scope) {
			candidates = append(candidates, m)
		}
	}
	l.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Popularity > candidates[j].Popularity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]string, len(candidates))
	for i, m := range candidates {
		ids[i] = m.ID
	}

	l.mu.Lock()
	l.cache[scope] = cacheEntry{movieIDs: ids, warmedAt: l.now()}
	l.mu.Unlock()

	l.log.Debug("cache warmed", logx.String("scope", scope), logx.Int("entries", len(ids)))
	return len(ids), nil
}

// Cached returns the warmed list for a scope, if present.
func (l *Library) Cached(scope string) ([]string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.cache[strings.ToLower(strings.TrimSpace(scope))]
	return e.movieIDs, ok
}

// AnalyzeUser recomputes one user's taste profile from their ratings.
// Only ratings of 3.0 and above count toward affinity.
func (l *Library) AnalyzeUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rs, ok := l.ratings[userID]
	if !ok {
		return fmt.Errorf("unknown user %q", userID)
	}

	byID := make(map[string]*Movie, len(l.movies))
	for i := range l.movies {
		byID[l.movies[i].ID] = &l.movies[i]
	}

	weights := make(map[string]float64)
	var total float64
	for _, r := range rs {
		if r.Score < 3.0 {
			continue
		}
		m, ok := byID[r.MovieID]
		if !ok {
			continue
		}
		for _, g := range m.Genres {
			weights[strings.ToLower(g)] += r.Score
			total += r.Score
		}
	}
	if total > 0 {
		for g := range weights {
			weights[g] /= total
		}
	}

	l.profiles[userID] = profile{weights: weights, computedAt: l.now()}
	return nil
}

// Precompute builds recommendation lists for every user in a segment.
// Segment "all" covers everyone with ratings; "active" covers users who
// rated something in the last 30 days. Returns the number of users updated.
func (l *Library) Precompute(ctx context.Context, segment string) (int, error) {
	segment = strings.ToLower(strings.TrimSpace(segment))
	if segment == "" {
		segment = "all"
	}

	l.mu.RLock()
	users := make([]string, 0, len(l.ratings))
	cutoff := l.now().Add(-30 * 24 * time.Hour)
	for uid, rs := range l.ratings {
		if segment == "active" && !ratedSince(rs, cutoff) {
			continue
		}
		users = append(users, uid)
	}
	l.mu.RUnlock()
	sort.Strings(users)

	updated := 0
	for _, uid := range users {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if err := l.AnalyzeUser(ctx, uid); err != nil {
			return updated, err
		}
		l.mu.Lock()
		l.recs[uid] = l.rankForLocked(uid, 20)
		l.mu.Unlock()
		updated++
	}
	l.log.Debug("recommendations precomputed", logx.String("segment", segment), logx.Int("users", updated))
	return updated, nil
}

// Recommendations returns the precomputed list for a user, if present.
func (l *Library) Recommendations(userID string) ([]string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids, ok := l.recs[userID]
	return ids, ok
}

// rankForLocked scores every unseen movie by genre affinity x popularity.
// Caller must hold at least a read lock.
func (l *Library) rankForLocked(userID string, limit int) []string {
	p := l.profiles[userID]
	seen := make(map[string]struct{})
	for _, r := range l.ratings[userID] {
		seen[r.MovieID] = struct{}{}
	}

	type scored struct {
		id    string
		score float64
	}
	out := make([]scored, 0, len(l.movies))
	for _, m := range l.movies {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		affinity := 0.0
		for _, g := range m.Genres {
			affinity += p.weights[strings.ToLower(g)]
		}
		// Popularity keeps cold-profile users from getting empty lists.
		score := affinity*m.Popularity + m.Popularity*0.05
		if score <= 0 {
			continue
		}
		out = append(out, scored{id: m.ID, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > limit {
		out = out[:limit]
	}
	ids := make([]string, len(out))
	for i, s := range out {
		ids[i] = s.id
	}
	return ids
}

// EvictStale drops cache entries and profiles older than maxAge.
// Returns the number of entries removed.
func (l *Library) EvictStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := l.now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for scope, e := range l.cache {
		if e.warmedAt.Before(cutoff) {
			delete(l.cache, scope)
			removed++
		}
	}
	for uid, p := range l.profiles {
		if p.computedAt.Before(cutoff) {
			delete(l.profiles, uid)
			delete(l.recs, uid)
			removed++
		}
	}
	return removed, nil
}

func hasGenre(m Movie, genre string) bool {
	for _, g := range m.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

func ratedSince(rs []Rating, cutoff time.Time) bool {
	for _, r := range rs {
		if r.RatedAt.After(cutoff) {
			return true
		}
	}
	return false
}

// SeedDemo fills the library with a deterministic synthetic dataset so a
// fresh deployment has something to warm and precompute against.
func SeedDemo(l *Library, movies, users int) {
	rng := rand.New(rand.NewSource(42))
	genres := []string{"drama", "comedy", "thriller", "sci-fi", "documentary", "horror", "romance"}

	for i := 0; i < movies; i++ {
		gs := []string{genres[rng.Intn(len(genres))]}
		if rng.Intn(3) == 0 {
			gs = append(gs, genres[rng.Intn(len(genres))])
		}
		l.AddMovie(Movie{
			ID:         fmt.Sprintf("m%04d", i),
			Title:      fmt.Sprintf("Feature #%d", i),
			Genres:     gs,
			Popularity: rng.Float64() * 100,
		})
	}
	now := time.Now()
	for u := 0; u < users; u++ {
		uid := fmt.Sprintf("u%04d", u)
		n := 3 + rng.Intn(12)
		for r := 0; r < n; r++ {
			l.AddRating(uid, Rating{
				MovieID: fmt.Sprintf("m%04d", rng.Intn(movies)),
				Score:   1 + rng.Float64()*4,
				RatedAt: now.Add(-time.Duration(rng.Intn(90*24)) * time.Hour),
			})
		}
	}
}
