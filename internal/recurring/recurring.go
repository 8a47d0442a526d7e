// Package recurring registers standing schedules (cron or interval specs)
// that feed the job scheduler. It only computes triggers; execution policy,
// priorities, and retries all belong to the scheduler.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reeljobs/internal/scheduler"
	logx "reeljobs/pkg/logx"
)

// Def is one standing schedule: every trigger schedules a fresh job of the
// given type with a fixed payload and options.
type Def struct {
	Name    string
	Spec    string // cron spec ("0 3 * * *", "@hourly") or interval ("@every 15m")
	JobType string
	Payload any
	Options scheduler.Options
}

type entry struct {
	def     Def
	entryID cron.EntryID
}

// Info is a read-only view of one registered schedule.
type Info struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	sched *scheduler.Service

	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	defs   []entry
}

func New(sched *scheduler.Service, timezone string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		}
	}
	return &Service{
		log:    log,
		sched:  sched,
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers (or replaces, keyed by name) a standing schedule.
// Safe to call before Start; definitions are registered when Start runs.
func (s *Service) Add(def Def) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return errors.New("schedule name required")
	}
	if strings.TrimSpace(def.JobType) == "" {
		return errors.New("schedule job type required")
	}
	if _, err := s.parser.Parse(def.Spec); err != nil {
		return fmt.Errorf("schedule %q: invalid spec %q: %w", def.Name, def.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name to prevent duplicates across hot-reloads.
	_ = s.removeLocked(def.Name)
	s.defs = append(s.defs, entry{def: def})
	if s.c != nil {
		if err := s.registerLocked(&s.defs[len(s.defs)-1]); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", def.Name), logx.String("spec", def.Spec), logx.String("type", def.JobType))
	return nil
}

// Remove unregisters a schedule by name. Returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, e := range s.defs {
		if e.def.Name == name {
			if s.c != nil && e.entryID != 0 {
				s.c.Remove(e.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = e
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) registerLocked(e *entry) error {
	def := e.def
	id, err := s.c.AddFunc(def.Spec, func() {
		jobID, err := s.sched.Schedule(def.JobType, def.Payload, def.Options)
		if err != nil {
			s.log.Warn("recurring trigger rejected", logx.String("name", def.Name), logx.Err(err))
			return
		}
		s.log.Debug("recurring trigger fired", logx.String("name", def.Name), logx.String("job_id", jobID))
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", def.Name, err)
	}
	e.entryID = id
	return nil
}

// Start registers all definitions and begins triggering.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.registerLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].def.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("recurring schedules started", logx.Int("schedules", len(s.defs)), logx.String("tz", s.loc.String()))
}

// Stop halts triggering and waits for in-flight trigger callbacks, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopCtx := c.Stop()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

func (s *Service) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.defs))
	for _, e := range s.defs {
		info := Info{Name: e.def.Name, Spec: e.def.Spec}
		if s.c != nil && e.entryID != 0 {
			ce := s.c.Entry(e.entryID)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out = append(out, info)
	}
	return out
}
