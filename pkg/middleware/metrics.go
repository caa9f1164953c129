package middleware

import (
	"context"
	"time"

	"github.com/vango-dev/pagewire/pkg/metrics"
	"github.com/vango-dev/pagewire/pkg/router"
)

// Prometheus creates middleware that records every page run on m.
//
// Example:
//
//	m := metrics.New(metrics.WithRegistry(reg))
//	r.Use(middleware.Prometheus(m))
func Prometheus(m *metrics.Metrics) router.Middleware {
	return router.MiddlewareFunc(func(ctx context.Context, info router.RunInfo, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		m.PageRun(routeOf(info), string(info.Kind), time.Since(start), err)
		return err
	})
}

func routeOf(info router.RunInfo) string {
	if info.Page == nil || info.Page.Route == "" {
		return "/"
	}
	return info.Page.Route
}
