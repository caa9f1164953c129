package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/pagewire/pkg/router"
)

// Logging logs every page run at debug level, and failed runs at warn.
func Logging(logger *slog.Logger) router.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return router.MiddlewareFunc(func(ctx context.Context, info router.RunInfo, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)

		attrs := []any{
			"session_id", info.SessionID,
			"kind", info.Kind,
			"route", routeOf(info),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.WarnContext(ctx, "page run failed", append(attrs, "error", err)...)
		} else {
			logger.DebugContext(ctx, "page run", attrs...)
		}
		return err
	})
}
