package app

import (
	"strings"
	"time"

	"reeljobs/internal/config"
	"reeljobs/internal/diag"
	"reeljobs/internal/recurring"
	"reeljobs/internal/scheduler"
	"reeljobs/internal/storage"
)

// schedulerConfig maps the declarative config block onto runtime tunables.
// Zero values pass through; the scheduler fills in its own defaults.
func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	var out scheduler.Config
	var err error

	sc := cfg.Scheduler
	if out.TickInterval, err = config.ParseDurationField("scheduler.tick_interval", sc.TickInterval); err != nil {
		return out, err
	}
	if out.ReapInterval, err = config.ParseDurationField("scheduler.reap_interval", sc.ReapInterval); err != nil {
		return out, err
	}
	if out.RetryDelayBase, err = config.ParseDurationField("scheduler.retry_delay_base", sc.RetryDelayBase); err != nil {
		return out, err
	}
	if out.DefaultTimeout, err = config.ParseDurationField("scheduler.default_timeout", sc.DefaultTimeout); err != nil {
		return out, err
	}
	if out.TerminalTTL, err = config.ParseDurationField("scheduler.terminal_ttl", sc.TerminalTTL); err != nil {
		return out, err
	}
	if out.ShutdownGrace, err = config.ParseDurationField("scheduler.shutdown_grace", sc.ShutdownGrace); err != nil {
		return out, err
	}

	out.MaxConcurrentJobs = sc.MaxConcurrentJobs
	out.MaxJobsPerType = sc.MaxJobsPerType
	out.LoadThreshold = sc.LoadThreshold
	out.IdleThreshold = sc.IdleThreshold
	out.DefaultMaxRetries = sc.DefaultMaxRetries
	out.TerminalRetention = sc.TerminalRetention
	return out, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	if s == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	return storage.Config{
		Driver:      strings.TrimSpace(s.Driver),
		Path:        strings.TrimSpace(s.Path),
		BusyTimeout: busy,
	}
}

func diagConfig(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diag
	out := diag.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("diag.read_timeout", d.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("diag.write_timeout", d.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("diag.idle_timeout", d.IdleTimeout, time.Minute); err != nil {
		return out, err
	}
	return out, nil
}

func recurringDefs(cfg *config.Config) ([]recurring.Def, error) {
	defs := make([]recurring.Def, 0, len(cfg.Recurring))
	for _, r := range cfg.Recurring {
		prio, err := scheduler.ParsePriority(r.Priority)
		if err != nil {
			return nil, err
		}
		timeout, err := config.ParseDurationField("recurring.timeout", r.Timeout)
		if err != nil {
			return nil, err
		}
		var payload any
		if r.Payload != nil {
			payload = r.Payload
		}
		defs = append(defs, recurring.Def{
			Name:    strings.TrimSpace(r.Name),
			Spec:    strings.TrimSpace(r.Spec),
			JobType: strings.TrimSpace(r.Type),
			Payload: payload,
			Options: scheduler.Options{
				Priority:     prio,
				Timeout:      timeout,
				MaxRetries:   r.MaxRetries,
				Dependencies: r.DependsOn,
			},
		})
	}
	return defs, nil
}
