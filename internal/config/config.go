package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/channel"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "pagewire.toml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PAGEWIRE_"

	// DefaultOperatorListen is the default operator API address.
	DefaultOperatorListen = "127.0.0.1:9090"

	// DefaultSnapshotTable is the default SQL table for session snapshots.
	DefaultSnapshotTable = "pagewire_sessions"
)

// Transports.
const (
	TransportGorilla = "gorilla"
	TransportNhooyr  = "nhooyr"
)

// Snapshot backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Duration is a time.Duration written as a Go duration string ("1s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete pagewire.toml configuration.
type Config struct {
	Relay    RelayConfig    `toml:"relay"`
	Session  SessionConfig  `toml:"session"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Operator OperatorConfig `toml:"operator"`
	Log      LogConfig      `toml:"log"`

	// path is where the config was loaded from.
	path string
}

// RelayConfig configures the relay connection.
type RelayConfig struct {
	// URL is the relay endpoint (ws:// or wss://).
	URL string `toml:"url"`

	// APIKey authenticates this runtime with the relay.
	APIKey string `toml:"api_key"`

	// InstanceID identifies this process. Generated when empty.
	InstanceID string `toml:"instance_id,omitempty"`

	// Transport selects the WebSocket library: gorilla or nhooyr.
	Transport string `toml:"transport"`

	PingInterval      Duration `toml:"ping_interval"`
	ResponseTimeout   Duration `toml:"response_timeout"`
	ReconnectAttempts int      `toml:"reconnect_attempts"`
	ReconnectWindow   Duration `toml:"reconnect_window"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`

	// MaxQueue bounds the outbound queue. Zero means unbounded.
	MaxQueue int `toml:"max_queue"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	MaxDisconnected int      `toml:"max_disconnected"`
	Retention       Duration `toml:"retention"`
}

// SnapshotConfig configures session snapshot persistence.
type SnapshotConfig struct {
	// Backend is none, memory, sqlite or s3.
	Backend string `toml:"backend"`

	// DSN is the SQLite data source for the sqlite backend.
	DSN string `toml:"dsn,omitempty"`

	// Table is the SQL table name.
	Table string `toml:"table"`

	// S3 settings for the s3 backend.
	Bucket   string `toml:"bucket,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
	Region   string `toml:"region,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`
}

// OperatorConfig configures the operator HTTP API.
type OperatorConfig struct {
	// Listen is the address to serve on. Empty disables the API.
	Listen string `toml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level"`

	// Format is text or json.
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ch := channel.DefaultConfig()
	return &Config{
		Relay: RelayConfig{
			Transport:         TransportGorilla,
			PingInterval:      Duration{ch.PingInterval},
			ResponseTimeout:   Duration{ch.ResponseTimeout},
			ReconnectAttempts: ch.ReconnectAttempts,
			ReconnectWindow:   Duration{ch.ReconnectWindow},
			ShutdownTimeout:   Duration{ch.ShutdownTimeout},
		},
		Session: SessionConfig{
			MaxDisconnected: 128,
			Retention:       Duration{2 * time.Minute},
		},
		Snapshot: SnapshotConfig{
			Backend: BackendNone,
			Table:   DefaultSnapshotTable,
		},
		Operator: OperatorConfig{
			Listen: DefaultOperatorListen,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.New(errors.CodeConfigNotFound).
				Wrap(err).
				WithSuggestion("Run 'pagewire config init' to create " + ConfigFileName)
		}
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New(errors.CodeConfigParse).
			Wrap(fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")))
	}

	// A DSN alone selects the sqlite backend, a bucket alone selects s3.
	if !meta.IsDefined("snapshot", "backend") {
		switch {
		case meta.IsDefined("snapshot", "dsn"):
			c.Snapshot.Backend = BackendSQLite
		case meta.IsDefined("snapshot", "bucket"):
			c.Snapshot.Backend = BackendS3
		}
	}

	c.path = path
	return nil
}

// ApplyEnv applies PAGEWIRE_* overrides using lookup. Unparseable numeric
// values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("RELAY_URL", &c.Relay.URL)
	str("API_KEY", &c.Relay.APIKey)
	str("INSTANCE_ID", &c.Relay.InstanceID)
	str("TRANSPORT", &c.Relay.Transport)
	str("SNAPSHOT_BACKEND", &c.Snapshot.Backend)
	str("SNAPSHOT_DSN", &c.Snapshot.DSN)
	str("S3_BUCKET", &c.Snapshot.Bucket)
	str("S3_PREFIX", &c.Snapshot.Prefix)
	str("S3_REGION", &c.Snapshot.Region)
	str("S3_ENDPOINT", &c.Snapshot.Endpoint)
	str("OPERATOR_LISTEN", &c.Operator.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "PING_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Relay.PingInterval.Duration = d
		}
	}
	if v, ok := lookup(EnvPrefix + "MAX_QUEUE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Relay.MaxQueue = n
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Relay.URL == "" {
		return errors.New(errors.CodeInvalidEndpoint).
			WithDetail("relay.url is required.").
			WithSuggestion("Set relay.url in " + ConfigFileName + " or PAGEWIRE_RELAY_URL")
	}
	if err := channel.ValidateEndpoint(c.Relay.URL); err != nil {
		return errors.New(errors.CodeInvalidEndpoint).Wrap(err)
	}
	if c.Relay.APIKey == "" {
		return errors.New(errors.CodeMissingAPIKey).
			WithSuggestion("Set relay.api_key or PAGEWIRE_API_KEY")
	}
	switch c.Relay.Transport {
	case TransportGorilla, TransportNhooyr:
	default:
		return invalid("relay.transport must be %q or %q, got %q",
			TransportGorilla, TransportNhooyr, c.Relay.Transport)
	}
	if c.Relay.MaxQueue < 0 {
		return invalid("relay.max_queue must not be negative")
	}
	if c.Session.MaxDisconnected <= 0 {
		return invalid("session.max_disconnected must be positive")
	}
	if c.Session.Retention.Duration <= 0 {
		return invalid("session.retention must be positive")
	}
	switch c.Snapshot.Backend {
	case BackendNone, BackendMemory:
	case BackendSQLite:
		if c.Snapshot.DSN == "" {
			return invalid("snapshot.dsn is required for the sqlite backend")
		}
	case BackendS3:
		if c.Snapshot.Bucket == "" {
			return invalid("snapshot.bucket is required for the s3 backend")
		}
	default:
		return invalid("unknown snapshot.backend %q", c.Snapshot.Backend)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("%v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New(errors.CodeUnknownFormat).
			Wrap(fmt.Errorf("log.format %q", c.Log.Format))
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.CodeInvalidConfig).Wrap(fmt.Errorf(format, args...))
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: want debug, info, warn or error", l.Level)
	}
	return level, nil
}

// ChannelConfig converts the relay section to a channel.Config.
func (c *Config) ChannelConfig() channel.Config {
	ch := channel.DefaultConfig()
	ch.URL = c.Relay.URL
	ch.APIKey = c.Relay.APIKey
	ch.InstanceID = c.Relay.InstanceID
	ch.PingInterval = c.Relay.PingInterval.Duration
	ch.ResponseTimeout = c.Relay.ResponseTimeout.Duration
	ch.ReconnectAttempts = c.Relay.ReconnectAttempts
	ch.ReconnectWindow = c.Relay.ReconnectWindow.Duration
	ch.ShutdownTimeout = c.Relay.ShutdownTimeout.Duration
	ch.MaxQueue = c.Relay.MaxQueue
	return ch
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// SaveTo writes the config as TOML to path.
func (c *Config) SaveTo(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(errors.CodeInvalidConfig).Wrap(err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}
	c.path = path
	return nil
}

// Exists reports whether a config file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
