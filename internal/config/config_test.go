package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/pagewire/internal/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Relay.PingInterval.Duration != time.Second {
		t.Errorf("PingInterval = %v", cfg.Relay.PingInterval)
	}
	if cfg.Relay.ReconnectAttempts != 26 || cfg.Relay.ReconnectWindow.Duration != time.Hour {
		t.Errorf("reconnect = %d / %v", cfg.Relay.ReconnectAttempts, cfg.Relay.ReconnectWindow)
	}
	if cfg.Session.MaxDisconnected != 128 || cfg.Session.Retention.Duration != 2*time.Minute {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Snapshot.Backend != BackendNone || cfg.Relay.Transport != TransportGorilla {
		t.Errorf("backend = %q transport = %q", cfg.Snapshot.Backend, cfg.Relay.Transport)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[relay]
url = "wss://relay.example.com/socket"
api_key = "secret"
ping_interval = "250ms"
transport = "nhooyr"

[session]
retention = "5m"

[snapshot]
dsn = "file:test.db"

[log]
level = "debug"
format = "json"
`)

	cfg := Default()
	if err := cfg.decodeFile(path); err != nil {
		t.Fatal(err)
	}

	if cfg.Relay.URL != "wss://relay.example.com/socket" || cfg.Relay.APIKey != "secret" {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if cfg.Relay.PingInterval.Duration != 250*time.Millisecond {
		t.Errorf("PingInterval = %v", cfg.Relay.PingInterval)
	}
	if cfg.Session.Retention.Duration != 5*time.Minute {
		t.Errorf("Retention = %v", cfg.Session.Retention)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Session.MaxDisconnected != 128 {
		t.Errorf("MaxDisconnected = %d", cfg.Session.MaxDisconnected)
	}
	if cfg.Snapshot.Backend != BackendSQLite {
		t.Errorf("a dsn alone should select sqlite, got %q", cfg.Snapshot.Backend)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q", cfg.Path())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if errors.CodeOf(err) != errors.CodeConfigNotFound {
		t.Errorf("missing file: %v", err)
	}

	_, err = Load(writeFile(t, "[relay\nurl ="))
	if errors.CodeOf(err) != errors.CodeConfigParse {
		t.Errorf("bad toml: %v", err)
	}

	_, err = Load(writeFile(t, "[relay]\nurll = \"ws://x\"\n"))
	if errors.CodeOf(err) != errors.CodeConfigParse || !strings.Contains(err.Error(), "relay.urll") {
		t.Errorf("unknown key: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Relay.URL = "ws://from-file"
	cfg.ApplyEnv(envMap(map[string]string{
		"PAGEWIRE_RELAY_URL":       "wss://from-env",
		"PAGEWIRE_API_KEY":         " key ",
		"PAGEWIRE_PING_INTERVAL":   "5s",
		"PAGEWIRE_MAX_QUEUE":       "not-a-number",
		"PAGEWIRE_OPERATOR_LISTEN": "",
	}))

	if cfg.Relay.URL != "wss://from-env" {
		t.Errorf("URL = %q", cfg.Relay.URL)
	}
	if cfg.Relay.APIKey != "key" {
		t.Errorf("APIKey = %q", cfg.Relay.APIKey)
	}
	if cfg.Relay.PingInterval.Duration != 5*time.Second {
		t.Errorf("PingInterval = %v", cfg.Relay.PingInterval)
	}
	if cfg.Relay.MaxQueue != 0 {
		t.Errorf("MaxQueue = %d, bad value should be ignored", cfg.Relay.MaxQueue)
	}
	if cfg.Operator.Listen != "" {
		t.Errorf("Listen = %q, empty env value should disable", cfg.Operator.Listen)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Relay.URL = "wss://relay"
		cfg.Relay.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"ok", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.Relay.URL = "" }, errors.CodeInvalidEndpoint},
		{"http url", func(c *Config) { c.Relay.URL = "https://relay" }, errors.CodeInvalidEndpoint},
		{"missing key", func(c *Config) { c.Relay.APIKey = "" }, errors.CodeMissingAPIKey},
		{"bad transport", func(c *Config) { c.Relay.Transport = "quic" }, errors.CodeInvalidConfig},
		{"zero retention", func(c *Config) { c.Session.Retention.Duration = 0 }, errors.CodeInvalidConfig},
		{"sqlite without dsn", func(c *Config) { c.Snapshot.Backend = BackendSQLite }, errors.CodeInvalidConfig},
		{"s3 without bucket", func(c *Config) { c.Snapshot.Backend = BackendS3 }, errors.CodeInvalidConfig},
		{"unknown backend", func(c *Config) { c.Snapshot.Backend = "redis" }, errors.CodeInvalidConfig},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, errors.CodeInvalidConfig},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, errors.CodeUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if got := errors.CodeOf(err); got != tt.code {
				t.Errorf("Validate() = %v, want code %q", err, tt.code)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "warn"}.SlogLevel()
	if err != nil || level != slog.LevelWarn {
		t.Errorf("SlogLevel = %v, %v", level, err)
	}
}

func TestChannelConfig(t *testing.T) {
	cfg := Default()
	cfg.Relay.URL = "ws://relay"
	cfg.Relay.APIKey = "k"
	cfg.Relay.InstanceID = "i-1"
	cfg.Relay.MaxQueue = 10

	ch := cfg.ChannelConfig()
	if ch.URL != "ws://relay" || ch.APIKey != "k" || ch.InstanceID != "i-1" || ch.MaxQueue != 10 {
		t.Errorf("channel config = %+v", ch)
	}
	if ch.PingInterval != time.Second || ch.DrainInterval != 10*time.Millisecond {
		t.Errorf("timings = %v / %v", ch.PingInterval, ch.DrainInterval)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Relay.URL = "wss://relay"
	cfg.Relay.APIKey = "k"
	cfg.Session.Retention = Duration{90 * time.Second}

	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Fatal("file not written")
	}

	loaded := Default()
	if err := loaded.decodeFile(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Relay.URL != "wss://relay" || loaded.Session.Retention.Duration != 90*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
	loaded.ApplyEnv(noEnv)
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestWatch(t *testing.T) {
	path := writeFile(t, "[log]\nlevel = \"info\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		cfg *Config
		err error
	}
	changes := make(chan result, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config, err error) { changes <- result{cfg, err} })
	}()

	// Rewrite until the watcher, which starts asynchronously, reports it.
	content := "[relay]\nurl = \"ws://relay\"\napi_key = \"k\"\n[log]\nlevel = \"debug\"\n"
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case r := <-changes:
			if r.err != nil {
				t.Fatalf("reload error: %v", r.err)
			}
			if r.cfg.Log.Level != "debug" {
				t.Errorf("level = %q", r.cfg.Log.Level)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch() = %v", err)
			}
			return
		case <-deadline:
			t.Fatal("no reload observed")
		case <-tick.C:
		}
	}
}
