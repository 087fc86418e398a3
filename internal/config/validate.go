package config

import (
	"fmt"
	"net/url"
	"strings"

	"menuscrape/internal/menu"
)

// Severity grades a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by its config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks cfg and returns every finding; nil means valid.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(cfg.Source.ListingURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add(SeverityError, "source.listing_url", "must be an absolute http(s) URL, got %q", cfg.Source.ListingURL)
	}
	if _, err := menu.ParseMode(cfg.Source.Mode); err != nil {
		add(SeverityError, "source.mode", "%v", err)
	}

	if cfg.Fetch.Attempts < 1 {
		add(SeverityError, "fetch.attempts", "must be at least 1, got %d", cfg.Fetch.Attempts)
	}
	if cfg.Fetch.BackoffUnit <= 0 {
		add(SeverityError, "fetch.backoff_unit", "must be positive, got %s", cfg.Fetch.BackoffUnit)
	}
	if cfg.Fetch.CooldownUnits < 0 {
		add(SeverityError, "fetch.cooldown_units", "must not be negative, got %d", cfg.Fetch.CooldownUnits)
	}
	if cfg.Fetch.Timeout <= 0 {
		add(SeverityError, "fetch.timeout", "must be positive, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.RequestsPerSecond < 0 {
		add(SeverityError, "fetch.requests_per_second", "must not be negative")
	}
	if cfg.Fetch.RequestsPerSecond > 0 && cfg.Fetch.Burst < 1 {
		add(SeverityError, "fetch.burst", "must be at least 1 when requests_per_second is set")
	}

	switch cfg.Render.Kind {
	case "static":
		if cfg.Source.Mode != string(menu.ModeFragments) {
			add(SeverityWarning, "render.kind", "static rendering cannot expand collapsed nutrition panels; secondary values may be missing")
		}
	case "chrome":
	default:
		add(SeverityError, "render.kind", "must be static or chrome, got %q", cfg.Render.Kind)
	}
	if cfg.Render.WaitTimeout <= 0 {
		add(SeverityError, "render.wait_timeout", "must be positive, got %s", cfg.Render.WaitTimeout)
	}

	if cfg.Runtime.Workers < 1 {
		add(SeverityError, "runtime.workers", "must be at least 1, got %d", cfg.Runtime.Workers)
	}
	if cfg.Render.Kind == "chrome" && cfg.Runtime.Workers > 4 {
		add(SeverityWarning, "runtime.workers", "%d browser tabs in parallel may trigger rate limiting", cfg.Runtime.Workers)
	}

	if strings.TrimSpace(cfg.Output.CorpusPath) == "" {
		add(SeverityError, "output.corpus_path", "is required")
	}
	if cfg.Output.AppendNew && cfg.Output.BaselinePath == "" {
		add(SeverityWarning, "output.append_new", "has no effect without output.baseline_path")
	}

	switch cfg.Storage.Kind {
	case "":
	case "sqlite", "postgres", "mssql":
		if cfg.Storage.DSN == "" {
			add(SeverityError, "storage.dsn", "is required for storage.kind=%s", cfg.Storage.Kind)
		}
	default:
		add(SeverityError, "storage.kind", "must be empty, sqlite, postgres or mssql, got %q", cfg.Storage.Kind)
	}

	switch cfg.Metrics.Backend {
	case "", "none":
	case "datadog":
		if cfg.Metrics.FlushEvery <= 0 {
			add(SeverityError, "metrics.flush_every", "must be positive for the datadog backend")
		}
	default:
		add(SeverityError, "metrics.backend", "must be none or datadog, got %q", cfg.Metrics.Backend)
	}

	switch cfg.API.Source {
	case "file":
		if cfg.API.CorpusPath == "" {
			add(SeverityError, "api.corpus_path", "is required for api.source=file")
		}
	case "storage":
		if cfg.Storage.Kind == "" {
			add(SeverityError, "api.source", "storage source needs storage.kind")
		}
	default:
		add(SeverityError, "api.source", "must be file or storage, got %q", cfg.API.Source)
	}

	return issues
}
