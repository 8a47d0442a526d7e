package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Diag      DiagConfig      `json:"diag,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Sampler   SamplerConfig   `json:"sampler,omitempty"`

	// Storage enables job history persistence. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Recurring declares standing schedules that feed the scheduler.
	Recurring []RecurringJob `json:"recurring,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DiagConfig controls the optional diagnostics HTTP server
// (/healthz, /metrics, /statz, /debug/pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9190").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9190"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /debug/pprof/profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// SchedulerConfig tunes the job scheduler. All durations are Go duration
// strings (e.g. "500ms", "10s", "1m"). Zero/omitted fields fall back to
// runtime defaults.
type SchedulerConfig struct {
	TickInterval string `json:"tick_interval,omitempty"`
	ReapInterval string `json:"reap_interval,omitempty"`

	MaxConcurrentJobs int `json:"max_concurrent_jobs,omitempty"`
	MaxJobsPerType    int `json:"max_jobs_per_type,omitempty"`

	// LoadThreshold suppresses all admissions above this CPU percentage.
	// IdleThreshold gates idle-priority jobs to quiet periods.
	LoadThreshold float64 `json:"load_threshold,omitempty"`
	IdleThreshold float64 `json:"idle_threshold,omitempty"`

	RetryDelayBase    string `json:"retry_delay_base,omitempty"`
	DefaultTimeout    string `json:"default_timeout,omitempty"`
	DefaultMaxRetries int    `json:"default_max_retries,omitempty"`

	// TerminalRetention caps how many finished jobs stay queryable
	// (default 1024). TerminalTTL additionally ages them out by wall
	// time ("0s" disables).
	TerminalRetention int    `json:"terminal_retention,omitempty"`
	TerminalTTL       string `json:"terminal_ttl,omitempty"`

	ShutdownGrace string `json:"shutdown_grace,omitempty"`

	// Timezone for recurring schedule triggers (IANA name, e.g. "Europe/Berlin").
	Timezone string `json:"timezone,omitempty"`
}

// SamplerConfig controls the system load sampler.
type SamplerConfig struct {
	// Interval is a Go duration string. Default "2s".
	Interval string `json:"interval,omitempty"`
}

// StorageConfig controls the job history persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./reeljobs_history" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// RetainFor prunes history records older than this duration ("0s" keeps all).
	RetainFor string `json:"retain_for,omitempty"`
}

// RecurringJob declares one standing schedule.
type RecurringJob struct {
	Name string `json:"name"`
	// Spec is a cron expression ("0 3 * * *", "@daily") or "@every <duration>".
	Spec string `json:"spec"`
	Type string `json:"type"`

	// Priority is one of critical/high/medium/low/idle; empty means medium.
	Priority string `json:"priority,omitempty"`

	Payload map[string]any `json:"payload,omitempty"`

	Timeout    string   `json:"timeout,omitempty"` // Go duration string
	MaxRetries int      `json:"max_retries,omitempty"`
	DependsOn  []string `json:"depends_on,omitempty"`
}
