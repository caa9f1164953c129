package router

import "context"

// ComposeMiddleware builds a handler chain from middleware and a final handler.
// Middleware is executed in order (first to last), with the handler at the end.
func ComposeMiddleware(ctx context.Context, info RunInfo, mw []Middleware, handler func(context.Context) error) error {
	if len(mw) == 0 {
		return handler(ctx)
	}

	chain := handler
	for i := len(mw) - 1; i >= 0; i-- {
		m := mw[i]
		next := chain
		chain = func(ctx context.Context) error {
			return m.Handle(ctx, info, next)
		}
	}

	return chain(ctx)
}

// Chain creates a middleware that combines multiple middleware in order.
func Chain(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, info RunInfo, next func(context.Context) error) error {
		return ComposeMiddleware(ctx, info, middleware, next)
	})
}

// Only runs mw for runs where condition is true and skips it otherwise.
func Only(condition func(info RunInfo) bool, mw Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, info RunInfo, next func(context.Context) error) error {
		if !condition(info) {
			return next(ctx)
		}
		return mw.Handle(ctx, info, next)
	})
}
