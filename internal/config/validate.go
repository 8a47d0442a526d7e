package config

import (
	"fmt"
	"strings"

	"reeljobs/internal/scheduler"
)

// Validate checks everything a reload could get wrong before the new
// revision is committed. It never mutates the config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}

	for path, raw := range map[string]string{
		"diag.read_timeout":            c.Diag.ReadTimeout,
		"diag.write_timeout":           c.Diag.WriteTimeout,
		"diag.idle_timeout":            c.Diag.IdleTimeout,
		"scheduler.tick_interval":      c.Scheduler.TickInterval,
		"scheduler.reap_interval":      c.Scheduler.ReapInterval,
		"scheduler.retry_delay_base":   c.Scheduler.RetryDelayBase,
		"scheduler.default_timeout":    c.Scheduler.DefaultTimeout,
		"scheduler.terminal_ttl":       c.Scheduler.TerminalTTL,
		"scheduler.shutdown_grace":     c.Scheduler.ShutdownGrace,
		"sampler.interval":             c.Sampler.Interval,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	if c.Scheduler.MaxConcurrentJobs < 0 {
		return fmt.Errorf("scheduler.max_concurrent_jobs: must be >= 0")
	}
	if c.Scheduler.MaxJobsPerType < 0 {
		return fmt.Errorf("scheduler.max_jobs_per_type: must be >= 0")
	}
	if c.Scheduler.DefaultMaxRetries < 0 {
		return fmt.Errorf("scheduler.default_max_retries: must be >= 0")
	}
	if c.Scheduler.TerminalRetention < 0 {
		return fmt.Errorf("scheduler.terminal_retention: must be >= 0")
	}
	for path, v := range map[string]float64{
		"scheduler.load_threshold": c.Scheduler.LoadThreshold,
		"scheduler.idle_threshold": c.Scheduler.IdleThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s: must be within [0, 100]", path)
		}
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "file", "sqlite":
		case "":
			return fmt.Errorf("storage.driver: required when storage is configured")
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path: required when storage is configured")
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("storage.retain_for", s.RetainFor); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(c.Recurring))
	for i, r := range c.Recurring {
		at := fmt.Sprintf("recurring[%d]", i)
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("%s.name: required", at)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%s.name: duplicate schedule %q", at, name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(r.Spec) == "" {
			return fmt.Errorf("%s.spec: required", at)
		}
		if strings.TrimSpace(r.Type) == "" {
			return fmt.Errorf("%s.type: required", at)
		}
		if _, err := scheduler.ParsePriority(r.Priority); err != nil {
			return fmt.Errorf("%s.priority: %w", at, err)
		}
		if _, err := ParseDurationField(at+".timeout", r.Timeout); err != nil {
			return err
		}
		if r.MaxRetries < 0 {
			return fmt.Errorf("%s.max_retries: must be >= 0", at)
		}
		for j, dep := range r.DependsOn {
			if strings.TrimSpace(dep) == "" {
				return fmt.Errorf("%s.depends_on[%d]: empty job id", at, j)
			}
		}
	}

	return nil
}
