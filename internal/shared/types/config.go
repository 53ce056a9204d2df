package types

import "time"

// DownloadConf contains the settings for one aria2c invocation.
type DownloadConf struct {
	Aria2cPath            string `ini:"aria2c_path"`
	DownloadDir           string `ini:"download_dir"`
	Connections           int    `ini:"connections"`
	MaxAttempts           int    `ini:"max_attempts"`
	SizeCeilingBytes      int64  `ini:"size_ceiling_bytes"`
	AttemptTimeoutSeconds int    `ini:"attempt_timeout_seconds"`
}

// ProxyConf controls the outbound proxy pool.
type ProxyConf struct {
	Enabled        bool   `ini:"enabled"`
	AutoFetch      bool   `ini:"auto_fetch"`
	ManualList     string `ini:"manual_list"` // comma-separated proxy URLs
	FetchLimit     int    `ini:"fetch_limit"`
	ValidateOnInit bool   `ini:"validate_on_init"`
	PoolFile       string `ini:"pool_file"`
}

// SourceConf describes the link-hosting service the engine pulls from.
type SourceConf struct {
	APIBase      string `ini:"api_base"`
	AccountsFile string `ini:"accounts_file"`
}

// WebConf contains the progress-feed server configuration.
type WebConf struct {
	Enabled bool `ini:"enabled"`
	Port    int  `ini:"port"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config is the unified behavior configuration, mapped from pixelfetch.ini.
type Config struct {
	DownloadConf `ini:"download"`
	ProxyConf    `ini:"proxy"`
	SourceConf   `ini:"source"`
	WebConf      `ini:"web"`
	LogConf      `ini:"log"`
}

// Defaults for options the ini file may omit.
const (
	DefaultConnections      = 16
	DefaultMaxAttempts      = 3
	DefaultSizeCeilingBytes = int64(4509715660) // ~4.2 GiB, the destination upload limit
	DefaultAttemptTimeout   = 30 * time.Minute
	DefaultAria2cPath       = "aria2c"
)

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Aria2cPath == "" {
		c.Aria2cPath = DefaultAria2cPath
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	if c.Connections <= 0 {
		c.Connections = DefaultConnections
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.SizeCeilingBytes <= 0 {
		c.SizeCeilingBytes = DefaultSizeCeilingBytes
	}
	if c.AttemptTimeoutSeconds <= 0 {
		c.AttemptTimeoutSeconds = int(DefaultAttemptTimeout / time.Second)
	}
	if c.SourceConf.APIBase == "" {
		c.SourceConf.APIBase = "https://pixeldrain.com/api"
	}
}

// AttemptTimeout returns the per-attempt wall-clock budget as a Duration.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}
