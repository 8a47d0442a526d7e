package config

import (
	"reflect"
	"sort"
	"strings"

	logx "reeljobs/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Diag (never log token)
	if oldCfg.Diag.Enabled != newCfg.Diag.Enabled ||
		strings.TrimSpace(oldCfg.Diag.Addr) != strings.TrimSpace(newCfg.Diag.Addr) ||
		oldCfg.Diag.AllowInsecure != newCfg.Diag.AllowInsecure ||
		strings.TrimSpace(oldCfg.Diag.ReadTimeout) != strings.TrimSpace(newCfg.Diag.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Diag.WriteTimeout) != strings.TrimSpace(newCfg.Diag.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Diag.IdleTimeout) != strings.TrimSpace(newCfg.Diag.IdleTimeout) ||
		(strings.TrimSpace(oldCfg.Diag.Token) != "") != (strings.TrimSpace(newCfg.Diag.Token) != "") {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newCfg.Diag.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newCfg.Diag.Addr)),
			logx.Bool("diag.token_set", strings.TrimSpace(newCfg.Diag.Token) != ""),
			logx.Bool("diag.allow_insecure", newCfg.Diag.AllowInsecure),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.max_concurrent_jobs", newCfg.Scheduler.MaxConcurrentJobs),
			logx.Int("scheduler.max_jobs_per_type", newCfg.Scheduler.MaxJobsPerType),
			logx.Float64("scheduler.load_threshold", newCfg.Scheduler.LoadThreshold),
			logx.Float64("scheduler.idle_threshold", newCfg.Scheduler.IdleThreshold),
			logx.String("scheduler.tick_interval", strings.TrimSpace(newCfg.Scheduler.TickInterval)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sampler, newCfg.Sampler) {
		changed = append(changed, "sampler")
		attrs = append(attrs, logx.String("sampler.interval", strings.TrimSpace(newCfg.Sampler.Interval)))
	}

	// Storage. Nil means disabled.
	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	if !reflect.DeepEqual(oldCfg.Recurring, newCfg.Recurring) {
		changed = append(changed, "recurring")
		attrs = append(attrs, logx.Int("recurring.count", len(newCfg.Recurring)))
	}

	sort.Strings(changed)
	return changed, attrs
}
