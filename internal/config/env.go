package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "FIELDNOTE_CONFIG"
	EnvBaseURL   = "FIELDNOTE_BASE_URL"
	EnvCachePath = "FIELDNOTE_CACHE_PATH"
	EnvLogLevel  = "FIELDNOTE_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FIELDNOTE_CONFIG: override config file path
	BaseURL    string // FIELDNOTE_BASE_URL: remote service base URL
	CachePath  string // FIELDNOTE_CACHE_PATH: cache database path
	LogLevel   string // FIELDNOTE_LOG_LEVEL: log level override
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		CachePath:  os.Getenv(EnvCachePath),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
