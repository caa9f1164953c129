package router

import (
	"strings"
	"sync"

	"github.com/vango-dev/pagewire/pkg/ident"
	"github.com/vango-dev/pagewire/pkg/protocol"
)

// JoinPath joins a router base path and a relative path.
//
// The relative part always gets exactly one leading slash. With an empty
// base it passes through; otherwise the base's trailing slashes are dropped
// before concatenation. A trailing slash on the result is stripped unless
// the result is the root "/".
func JoinPath(base, relative string) string {
	rel := "/" + strings.TrimLeft(relative, "/")

	joined := rel
	if base != "" {
		joined = strings.TrimRight(base, "/") + rel
	}
	if len(joined) > 1 {
		joined = strings.TrimRight(joined, "/")
	}
	return joined
}

// Registry holds every registered page. Lookups are safe for concurrent
// use; registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Page
	byRoute map[string]*Page
	order   []*Page
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Page),
		byRoute: make(map[string]*Page),
	}
}

// add registers p. A page already registered at the same route is replaced
// in place, keeping its position in registration order.
func (reg *Registry) add(p *Page) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if old, ok := reg.byRoute[p.Route]; ok {
		delete(reg.byID, old.ID)
		for i, q := range reg.order {
			if q == old {
				reg.order[i] = p
				break
			}
		}
	} else {
		reg.order = append(reg.order, p)
	}
	reg.byRoute[p.Route] = p
	reg.byID[p.ID] = p
}

// Lookup returns the page with the given id.
func (reg *Registry) Lookup(id string) (*Page, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	p, ok := reg.byID[id]
	return p, ok
}

// ByRoute returns the page registered at route.
func (reg *Registry) ByRoute(route string) (*Page, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	p, ok := reg.byRoute[route]
	return p, ok
}

// Pages returns every page in registration order.
func (reg *Registry) Pages() []*Page {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Page, len(reg.order))
	copy(out, reg.order)
	return out
}

// Len returns the number of registered pages.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.order)
}

// Catalogue returns the InitializeHost page list.
func (reg *Registry) Catalogue() []protocol.PageInfo {
	pages := reg.Pages()
	out := make([]protocol.PageInfo, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Info())
	}
	return out
}

// Router registers pages under a base path with inherited access groups
// and middleware. Routers created by Group share their parent's registry.
type Router struct {
	registry   *Registry
	parent     *Router
	base       string
	path       []int
	groups     []string
	middleware []Middleware
	children   int
}

// New returns a top-level router with a fresh registry.
func New() *Router {
	return &Router{registry: NewRegistry()}
}

// Registry returns the registry shared by this router tree.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Base returns the router's base path.
func (r *Router) Base() string {
	return r.base
}

// nextPath returns the position of the next child registered on r.
// Caller holds registry.mu.
func (r *Router) nextPath() []int {
	p := make([]int, len(r.path)+1)
	copy(p, r.path)
	p[len(r.path)] = r.children
	r.children++
	return p
}

// Page registers handler at JoinPath(base, path). On the top-level router
// a root route "/" is skipped; under a non-empty base it resolves to the
// base itself. Registering a route twice replaces the earlier page.
func (r *Router) Page(path, name string, handler Handler, opts ...PageOption) *Router {
	route := JoinPath(r.base, path)
	if r.parent == nil && r.base == "" && route == "/" {
		return r
	}

	r.registry.mu.Lock()
	pos := r.nextPath()
	r.registry.mu.Unlock()

	p := &Page{
		ID:      ident.PageID(route),
		Name:    name,
		Route:   route,
		Path:    pos,
		Handler: handler,
		router:  r,
	}
	for _, opt := range opts {
		opt(p)
	}
	r.registry.add(p)
	return r
}

// Group returns a child router at JoinPath(base, path) with no groups of
// its own.
func (r *Router) Group(path string) *Router {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()
	return &Router{
		registry: r.registry,
		parent:   r,
		base:     JoinPath(r.base, path),
		path:     r.nextPath(),
	}
}

// AccessGroups appends names to this router's groups. Duplicates along the
// router chain are removed when a page's groups are resolved.
func (r *Router) AccessGroups(names ...string) *Router {
	r.registry.mu.Lock()
	r.groups = append(r.groups, names...)
	r.registry.mu.Unlock()
	return r
}

// Use adds page middleware for this router and every group below it.
func (r *Router) Use(mw ...Middleware) *Router {
	r.registry.mu.Lock()
	r.middleware = append(r.middleware, mw...)
	r.registry.mu.Unlock()
	return r
}
