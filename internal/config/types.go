package config

// Config is the on-disk configuration (JSON or YAML).
//
// Example (YAML):
//
//	telegram:
//	  token: "123:abc"
//	  owner_user_ids: [1111]
//	storage: { driver: sqlite, path: ./data/remindbot.sqlite }
//	reminders:
//	  poll_schedule: "0 * * * * *"
//	  session_timeout: 90s
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Debug     DebugConfig     `json:"debug"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the "<chat_id>[:<thread_id>]" the chat log sink posts to.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the reminder store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/remindbot" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`  // Go duration string (sqlite)
	CompactEvery int    `json:"compact_every,omitempty"` // file driver
}

// RemindersConfig controls the wizard and the scheduler.
//
// Defaults (when fields are omitted/zero):
//   - poll_schedule: "0 * * * * *" (every minute at second 0)
//   - rate_per_sec: 25, burst: 1
//   - tick_timeout: "50s"
//   - session_timeout: "90s"
//   - min_repeat: "1m"
//   - target_gone: "skip" ("purge_settings" also drops the chat's settings)
//   - default_timezone: "UTC"
//   - list_page_size: 10
type RemindersConfig struct {
	PollSchedule    string  `json:"poll_schedule,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
	Burst           int     `json:"burst,omitempty"`
	TickTimeout     string  `json:"tick_timeout,omitempty"`
	SessionTimeout  string  `json:"session_timeout,omitempty"`
	MinRepeat       string  `json:"min_repeat,omitempty"`
	TargetGone      string  `json:"target_gone,omitempty"`
	DefaultTimezone string  `json:"default_timezone,omitempty"`
	ListPageSize    int     `json:"list_page_size,omitempty"`
}

// DebugConfig enables the operator HTTP endpoint (/healthz, /status,
// /debug/pprof/). Changes need a restart.
//
// Example:
//
//	"debug": { "enabled": true, "addr": "127.0.0.1:6060" }
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
