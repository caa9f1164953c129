package router

import (
	"context"

	"github.com/vango-dev/pagewire/pkg/protocol"
	"github.com/vango-dev/pagewire/pkg/ui"
)

// Handler is a page function. It is re-executed in full on every
// interaction and must be structurally deterministic for a given state.
type Handler func(ctx context.Context, b *ui.Builder) error

// RunKind tells middleware why a page is running.
type RunKind string

const (
	RunInitialize RunKind = "initialize"
	RunRerun      RunKind = "rerun"
)

// RunInfo describes one page run to middleware.
type RunInfo struct {
	Kind      RunKind
	SessionID string
	Page      *Page
}

// Middleware wraps page runs. Call next to continue the chain; the context
// passed to next is the one the page handler sees.
type Middleware interface {
	Handle(ctx context.Context, info RunInfo, next func(context.Context) error) error
}

// MiddlewareFunc is a function that implements Middleware.
type MiddlewareFunc func(ctx context.Context, info RunInfo, next func(context.Context) error) error

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx context.Context, info RunInfo, next func(context.Context) error) error {
	return f(ctx, info, next)
}

// Page is a registered page. Access groups and middleware are resolved
// from the router chain when asked for, so call order between
// AccessGroups, Use and Group does not matter.
type Page struct {
	ID      string
	Name    string
	Route   string
	Path    []int
	Handler Handler

	groups []string
	router *Router
}

// PageOption configures a page at registration.
type PageOption func(*Page)

// WithAccessGroups adds groups to the page itself.
func WithAccessGroups(names ...string) PageOption {
	return func(p *Page) {
		p.groups = append(p.groups, names...)
	}
}

// AccessGroups returns the page's resolved access groups: its own groups,
// then its router's, then every ancestor router's, deduplicated by first
// occurrence. An empty result means the page is public.
func (p *Page) AccessGroups() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(p.groups))
	add := func(names []string) {
		for _, n := range names {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}

	add(p.groups)
	if p.router == nil {
		return out
	}
	p.router.registry.mu.RLock()
	defer p.router.registry.mu.RUnlock()
	for r := p.router; r != nil; r = r.parent {
		add(r.groups)
	}
	return out
}

// Middleware returns the page's middleware chain, outermost router first.
func (p *Page) Middleware() []Middleware {
	if p.router == nil {
		return nil
	}
	p.router.registry.mu.RLock()
	defer p.router.registry.mu.RUnlock()

	var chain []*Router
	for r := p.router; r != nil; r = r.parent {
		chain = append(chain, r)
	}
	var mw []Middleware
	for i := len(chain) - 1; i >= 0; i-- {
		mw = append(mw, chain[i].middleware...)
	}
	return mw
}

// Info returns the catalogue entry announced to the relay.
func (p *Page) Info() protocol.PageInfo {
	return protocol.PageInfo{
		ID:           p.ID,
		Name:         p.Name,
		Route:        p.Route,
		AccessGroups: p.AccessGroups(),
	}
}
