package config

type Config struct {
	// Channel selects the push driver: "line" (default) or "telegram".
	Channel string `json:"channel,omitempty"`

	Line     LineConfig      `json:"line"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Directory DirectoryConfig `json:"directory"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Pprof     *PprofConfig    `json:"pprof,omitempty"`
}

// LineConfig holds the LINE Messaging API credentials. The channel token is
// consumed only by the line adapter; nothing else reads it.
type LineConfig struct {
	ChannelToken string `json:"channel_token"`
	// ChannelSecret enables webhook signature validation when set.
	ChannelSecret string `json:"channel_secret,omitempty"`
	// APIBase overrides the LINE endpoint (tests, proxies). Empty means the
	// public API.
	APIBase string `json:"api_base,omitempty"`
	// ReplyEnabled controls the webhook echo-reply path.
	ReplyEnabled bool `json:"reply_enabled"`
}

type TelegramConfig struct {
	Token string `json:"token"`
}

type HTTPConfig struct {
	Addr string `json:"addr"` // default ":3000"
	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Push    LoggingPush `json:"push"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingPush forwards warn+ log records to an operator recipient over the
// push channel.
type LoggingPush struct {
	Enabled    bool   `json:"enabled"`
	Recipient  string `json:"recipient"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type StoreConfig struct {
	Driver      string `json:"driver"` // "file" | "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type DirectoryConfig struct {
	Path string `json:"path"`
}

// DispatchConfig controls the due-check/dispatch loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Defaults (when fields are omitted/zero):
//   - tick: "60s"
//   - send_timeout: "10s"
//   - max_inflight: 4
//   - rate_per_sec: 10
type DispatchConfig struct {
	Tick        string `json:"tick,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	MaxInflight int    `json:"max_inflight,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
// Prefer binding to localhost.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
}
