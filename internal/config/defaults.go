package config

// Default values for configuration options, the bottom layer of the
// override chain.
const (
	defaultBaseURL          = "https://api.fieldnote.dev"
	defaultHeartbeatURL     = "wss://api.fieldnote.dev/socket"
	defaultRequestTimeout   = "30s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultPrefetchDebounce = "500ms"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (unset fields keep defaults)
// and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:        defaultBaseURL,
			HeartbeatURL:   defaultHeartbeatURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Sync: SyncConfig{
			PrefetchDebounce: defaultPrefetchDebounce,
		},
	}
}
