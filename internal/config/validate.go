package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minRequestTimeout = 1 * time.Second
	maxRequestTimeout = 5 * time.Minute
	minDebounce       = 50 * time.Millisecond
	maxDebounce       = 10 * time.Second
)

// validLogLevels are the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// validLogFormats are the accepted log_format values.
var validLogFormats = map[string]bool{
	"auto": true, "text": true, "json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateSync(&cfg.Sync)...)

	return errors.Join(errs...)
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if r.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base_url: must not be empty"))
	} else if u, err := url.Parse(r.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url: %q is not an absolute URL", r.BaseURL))
	}

	if r.HeartbeatURL != "" {
		u, err := url.Parse(r.HeartbeatURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("heartbeat_url: %q is not a ws:// or wss:// URL", r.HeartbeatURL))
		}
	}

	if r.RequestTimeout != "" {
		d, err := time.ParseDuration(r.RequestTimeout)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("request_timeout: %w", err))
		case d < minRequestTimeout || d > maxRequestTimeout:
			errs = append(errs, fmt.Errorf("request_timeout: %s outside %s..%s",
				d, minRequestTimeout, maxRequestTimeout))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: %q is not one of debug, info, warn, error", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: %q is not one of auto, text, json", l.LogFormat))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.PrefetchDebounce != "" {
		d, err := time.ParseDuration(s.PrefetchDebounce)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("prefetch_debounce: %w", err))
		case d < minDebounce || d > maxDebounce:
			errs = append(errs, fmt.Errorf("prefetch_debounce: %s outside %s..%s",
				d, minDebounce, maxDebounce))
		}
	}

	return errs
}

// RequestTimeout returns the parsed request timeout, falling back to the
// default when unset. Call after Validate.
func (c *Config) RequestTimeout() time.Duration {
	if c.Remote.RequestTimeout == "" {
		d, _ := time.ParseDuration(defaultRequestTimeout)
		return d
	}

	d, _ := time.ParseDuration(c.Remote.RequestTimeout)

	return d
}

// PrefetchDebounce returns the parsed prefetch debounce, falling back to
// the default when unset. Call after Validate.
func (c *Config) PrefetchDebounce() time.Duration {
	if c.Sync.PrefetchDebounce == "" {
		d, _ := time.ParseDuration(defaultPrefetchDebounce)
		return d
	}

	d, _ := time.ParseDuration(c.Sync.PrefetchDebounce)

	return d
}
