// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for fieldnote. It supports a
// three-layer override chain (defaults -> config file -> environment ->
// CLI flags) where later layers win field by field.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Remote  RemoteConfig  `toml:"remote"`
	Cache   CacheConfig   `toml:"cache"`
	Logging LoggingConfig `toml:"logging"`
	Sync    SyncConfig    `toml:"sync"`
}

// RemoteConfig controls how the remote data service is reached.
type RemoteConfig struct {
	BaseURL string `toml:"base_url"`
	// HeartbeatURL is the websocket endpoint the connectivity heartbeat
	// dials. Empty disables the heartbeat entirely.
	HeartbeatURL   string `toml:"heartbeat_url"`
	RequestTimeout string `toml:"request_timeout"`
}

// CacheConfig controls the local cache database.
type CacheConfig struct {
	// Path of the SQLite database file. Empty means <data dir>/cache.db.
	Path string `toml:"path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// SyncConfig controls upload and prefetch behavior.
type SyncConfig struct {
	// PrefetchDebounce is how long a prefetch request is held before the
	// remote call runs, coalescing rapid successive requests.
	PrefetchDebounce string `toml:"prefetch_debounce"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	CachePath  *string // --cache flag
	LogLevel   *string // --log-level flag
}
