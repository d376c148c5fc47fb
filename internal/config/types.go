package config

// Config is the bot's static configuration, loaded from JSON or YAML.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Providers   ProvidersConfig   `json:"providers"`
	Limits      LimitsConfig      `json:"limits"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

// StorageConfig controls the persistence layer for chat settings and
// the error log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./lingobot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type ProvidersConfig struct {
	Libre  LibreProviderConfig  `json:"libre"`
	Google GoogleProviderConfig `json:"google"`
}

// LibreProviderConfig configures the primary (HTTP) provider.
type LibreProviderConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	// Timeout bounds the whole HTTP call. Defaults to "10s".
	Timeout string `json:"timeout,omitempty"`
}

// GoogleProviderConfig configures the secondary (library) provider.
// Enabled is explicit because the client costs money per call.
type GoogleProviderConfig struct {
	Enabled         bool   `json:"enabled"`
	CredentialsFile string `json:"credentials_file,omitempty"`
}

// LimitsConfig holds the pipeline windows. Omitted fields fall back to
// the component defaults (cache 5m, dedup 5m, cooldown 15m, limit 5).
type LimitsConfig struct {
	CacheTTL          string `json:"cache_ttl,omitempty"`
	DedupWindow       string `json:"dedup_window,omitempty"`
	NotifyCooldown    string `json:"notify_cooldown,omitempty"`
	DefaultRateLimit  int    `json:"default_rate_limit,omitempty"`
	DefaultTargetLang string `json:"default_target_lang,omitempty"`
}

// MaintenanceConfig drives the periodic cleanup jobs (cache sweep,
// dedup sweep, cooldown prune). Schedule is a cron spec; the default is
// "@every 5m".
type MaintenanceConfig struct {
	Schedule string `json:"schedule,omitempty"`
}
