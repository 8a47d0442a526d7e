// Package app wires the configuration, logging, load sampling, scheduling,
// and diagnostics pieces into one runnable service.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"reeljobs/internal/config"
	"reeljobs/internal/diag"
	"reeljobs/internal/eventbus"
	"reeljobs/internal/executor"
	"reeljobs/internal/history"
	"reeljobs/internal/metrics"
	"reeljobs/internal/recsys"
	"reeljobs/internal/recurring"
	"reeljobs/internal/runtime/supervisor"
	"reeljobs/internal/scheduler"
	"reeljobs/internal/storage"
	"reeljobs/internal/sysload"
	logx "reeljobs/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus  *eventbus.Bus
	reg  *prometheus.Registry
	mets *metrics.Set

	store   storage.Store
	lib     *recsys.Library
	sampler *sysload.Sampler
	sched   *scheduler.Service
	rec     *recurring.Service
	hist    *history.Recorder
	diag    *diag.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mets := metrics.New(reg)

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	samplerInterval, err := config.ParseDurationOrDefault("sampler.interval", cfg.Sampler.Interval, 2*time.Second)
	if err != nil {
		return nil, err
	}
	sampler := sysload.NewSampler(samplerInterval, log.With(logx.String("comp", "sysload")))

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, sampler, log.With(logx.String("comp", "scheduler")), bus, mets)
	sampler.Bind(sched.Counts)

	lib := recsys.NewLibrary(log.With(logx.String("comp", "recsys")))
	recsys.SeedDemo(lib, 500, 200)

	executor.RegisterBuiltins(sched, executor.Deps{
		Warmer:      lib,
		Precomputer: lib,
		Cleaner:     recsys.NewCleaner(lib, store, log.With(logx.String("comp", "cleaner"))),
		Analyzer:    lib,
	}, log)

	rec := recurring.New(sched, cfg.Scheduler.Timezone, log.With(logx.String("comp", "recurring")))
	defs, err := recurringDefs(cfg)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if err := rec.Add(d); err != nil {
			return nil, err
		}
	}

	var hist *history.Recorder
	if store != nil {
		retain, err := config.ParseDurationField("storage.retain_for", cfg.Storage.RetainFor)
		if err != nil {
			return nil, err
		}
		hist = history.New(bus, store, retain, log.With(logx.String("comp", "history")))
	}

	diagCfg, err := diagConfig(cfg)
	if err != nil {
		return nil, err
	}
	diagSvc := diag.New(diagCfg, reg, func() any { return sched.Stats() }, log.With(logx.String("comp", "diag")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		reg:     reg,
		mets:    mets,
		store:   store,
		lib:     lib,
		sampler: sampler,
		sched:   sched,
		rec:     rec,
		hist:    hist,
		diag:    diagSvc,
	}, nil
}

// Scheduler exposes the job scheduler for embedding callers.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		// reject bad hot-reloads before they hit the scheduler
		if _, err := schedulerConfig(cfg); err != nil {
			return err
		}
		_, err := diagConfig(cfg)
		return err
	})

	a.sup.Go("sysload.sample", a.sampler.Run)

	a.sched.Start(a.sup.Context())
	a.rec.Start()

	if a.hist != nil {
		a.sup.Go("history.record", a.hist.Run)
	}

	a.diag.Start(a.sup.Context())

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	// Track the last applied config to generate a safe diff summary for logging.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest revision in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

			a.applyReload(ctx, newCfg, sections)

			a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
		}
	}
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	changed := make(map[string]bool, len(sections))
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}

	if changed["scheduler"] {
		schedCfg, err := schedulerConfig(cfg)
		if err != nil {
			// validator should have caught this; keep the old tunables
			a.log.Warn("invalid scheduler config on reload; keeping previous", logx.Err(err))
		} else {
			a.sched.Apply(schedCfg)
		}
	}

	if changed["recurring"] {
		if defs, err := recurringDefs(cfg); err == nil {
			a.syncRecurring(defs)
		} else {
			a.log.Warn("invalid recurring config on reload; keeping previous", logx.Err(err))
		}
	}

	if changed["diag"] {
		// The diag server binds a listener, so apply means restart.
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		a.diag.Stop(stopCtx)
		cancel()
		diagCfg, err := diagConfig(cfg)
		if err != nil {
			a.log.Warn("invalid diag config on reload; server stays down", logx.Err(err))
			return
		}
		a.diag = diag.New(diagCfg, a.reg, func() any { return a.sched.Stats() }, a.log.With(logx.String("comp", "diag")))
		a.diag.Start(a.sup.Context())
	}
}

// syncRecurring replaces the standing schedule set with the given definitions.
func (a *App) syncRecurring(defs []recurring.Def) {
	keep := make(map[string]bool, len(defs))
	for _, d := range defs {
		keep[d.Name] = true
		if err := a.rec.Add(d); err != nil {
			a.log.Warn("schedule update failed", logx.String("name", d.Name), logx.Err(err))
		}
	}
	for _, info := range a.rec.Snapshot() {
		if !keep[info.Name] {
			a.rec.Remove(info.Name)
			a.log.Debug("schedule removed", logx.String("name", info.Name))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Triggers first so nothing new enters the queues while draining.
	step("recurring", 2*time.Second, func(c context.Context) error { a.rec.Stop(c); return nil })
	step("scheduler", 0, a.sched.Shutdown)
	step("diag", 2*time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })

	// Unwind supervised loops (sampler, watcher, history recorder).
	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)

	if a.store != nil {
		step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
