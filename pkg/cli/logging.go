package cli

import (
	"io"
	"log/slog"

	"github.com/vango-dev/pagewire/internal/config"
)

// newLogger builds the process logger from the log section. The returned
// LevelVar lets the level change while running.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, *slog.LevelVar, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level)
	opts := &slog.HandlerOptions{Level: lv}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), lv, nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), lv, nil
}

// followLogLevel applies log.level from a reloaded config. Other settings
// need a restart.
func followLogLevel(logger *slog.Logger, lv *slog.LevelVar) func(*config.Config, error) {
	return func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "error", err)
			return
		}
		level, err := cfg.Log.SlogLevel()
		if err != nil || level == lv.Level() {
			return
		}
		lv.Set(level)
		logger.Info("log level changed", "level", level.String())
	}
}
