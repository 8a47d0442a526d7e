package sysload

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	logx "reeljobs/pkg/logx"
)

// ewmaAlpha weights the newest sample; higher reacts faster, lower smooths more.
const ewmaAlpha = 0.3

// Sampler is the production Source. It samples CPU utilization from
// /proc/stat deltas and memory from /proc/meminfo on a fixed interval,
// smooths both with an EWMA, and folds in scheduler feedback:
//
//   - Bind() supplies a snapshot func for active/queued job counts.
//   - Observe() is called by the scheduler on every finished attempt and
//     maintains rolling avg-response-time and error-rate figures.
//
// Current() never blocks on sampling; it returns the latest smoothed view.
type Sampler struct {
	log      logx.Logger
	interval time.Duration

	fs     procfs.FS
	fsOK   bool
	warned bool

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
	havePrev  bool

	cpu float64
	mem float64

	queueFn func() (active, queued int)

	respEWMA time.Duration
	errEWMA  float64 // 0..100
	haveResp bool
}

func NewSampler(interval time.Duration, log logx.Logger) *Sampler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sampler{log: log, interval: interval}
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		// No /proc (non-Linux dev box, odd container). CPU/memory read as zero,
		// so only the scheduler-feedback figures carry signal.
		log.Warn("sysload: procfs unavailable, cpu/mem metrics disabled", logx.Err(err))
	} else {
		s.fs = fs
		s.fsOK = true
	}
	return s
}

// Bind installs the scheduler snapshot func used to fill ActiveJobs and
// QueueLength. Must be called before Run; typically wired at app bootstrap.
func (s *Sampler) Bind(fn func() (active, queued int)) {
	s.mu.Lock()
	s.queueFn = fn
	s.mu.Unlock()
}

// Observe records the outcome of one finished job attempt.
func (s *Sampler) Observe(d time.Duration, failed bool) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveResp {
		s.respEWMA = d
		s.haveResp = true
	} else {
		s.respEWMA = time.Duration(float64(s.respEWMA)*(1-ewmaAlpha) + float64(d)*ewmaAlpha)
	}
	sample := 0.0
	if failed {
		sample = 100.0
	}
	s.errEWMA = s.errEWMA*(1-ewmaAlpha) + sample*ewmaAlpha
}

// Run samples on the configured interval until ctx is done.
// Intended to run under the app supervisor.
func (s *Sampler) Run(ctx context.Context) error {
	s.sample()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.sample()
		}
	}
}

func (s *Sampler) Current() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		CPUPercent:       s.cpu,
		MemoryPercent:    s.mem,
		AvgResponseTime:  s.respEWMA,
		ErrorRatePercent: s.errEWMA,
		Timestamp:        time.Now(),
	}
	if s.queueFn != nil {
		m.ActiveJobs, m.QueueLength = s.queueFn()
	}
	return m
}

func (s *Sampler) sample() {
	if !s.fsOK {
		return
	}
	var cpuBusy, cpuTotal float64
	var haveCPU bool
	if stat, err := s.fs.Stat(); err == nil {
		c := stat.CPUTotal
		idle := c.Idle + c.Iowait
		busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
		cpuBusy, cpuTotal = busy, busy+idle
		haveCPU = true
	} else if !s.warned {
		s.log.Warn("sysload: reading /proc/stat failed", logx.Err(err))
		s.warned = true
	}

	var memPct float64
	var haveMem bool
	if mi, err := s.fs.Meminfo(); err == nil && mi.MemTotal != nil && *mi.MemTotal > 0 {
		total := float64(*mi.MemTotal)
		avail := 0.0
		if mi.MemAvailable != nil {
			avail = float64(*mi.MemAvailable)
		} else if mi.MemFree != nil {
			avail = float64(*mi.MemFree)
		}
		memPct = (total - avail) / total * 100
		haveMem = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if haveCPU {
		if s.havePrev && cpuTotal > s.prevTotal {
			raw := (cpuBusy - s.prevBusy) / (cpuTotal - s.prevTotal) * 100
			raw = clampPercent(raw)
			s.cpu = s.cpu*(1-ewmaAlpha) + raw*ewmaAlpha
		}
		s.prevBusy, s.prevTotal = cpuBusy, cpuTotal
		s.havePrev = true
	}
	if haveMem {
		s.mem = s.mem*(1-ewmaAlpha) + clampPercent(memPct)*ewmaAlpha
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
