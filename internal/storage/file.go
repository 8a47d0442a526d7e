package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "reeljobs/pkg/logx"
)

// fileStore is a dependency-free persistence backend: a single append-only
// JSON Lines file. Prune rewrites the file in place under the store mutex.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendJobRecord(ctx context.Context, r JobRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("job history file closed")
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) RecentJobRecords(ctx context.Context, limit int) ([]JobRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *fileStore) PruneJobRecords(ctx context.Context, olderThan time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	keep := all[:0]
	removed := 0
	for _, r := range all {
		if r.CompletedAt.Before(olderThan) {
			removed++
			continue
		}
		keep = append(keep, r)
	}
	if removed == 0 {
		return 0, nil
	}

	// Rewrite atomically: temp file in the same dir, then rename over.
	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(tf)
	for _, r := range keep {
		if err := enc.Encode(r); err != nil {
			_ = tf.Close()
			_ = os.Remove(tmp)
			return 0, err
		}
	}
	if err := tf.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return removed, err
	}
	s.f = f
	s.log.Debug("job history pruned", logx.Int("removed", removed), logx.Int("kept", len(keep)))
	return removed, nil
}

// readAllLocked loads every record; corrupt lines are skipped, not fatal.
// Call with s.mu held.
func (s *fileStore) readAllLocked() ([]JobRecord, error) {
	rf, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rf.Close()

	var out []JobRecord
	sc := bufio.NewScanner(rf)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r JobRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			s.log.Warn("skipping corrupt job history line", logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
