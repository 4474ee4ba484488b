package webapp

import (
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"sync"
)

// Filter intercepts requests before they reach a servlet.
type Filter interface {
	Wrap(next http.Handler) http.Handler
}

// FilterFunc adapts a middleware function to Filter.
type FilterFunc func(next http.Handler) http.Handler

// Wrap calls f(next).
func (f FilterFunc) Wrap(next http.Handler) http.Handler { return f(next) }

// Initializer is implemented by filters and servlets that read their init
// parameters when registered.
type Initializer interface {
	Init(params map[string]string) error
}

// Listener is notified once when the context is initialized.
type Listener interface {
	ContextInitialized(c *Context)
}

// FilterRegistration is a named filter bound to URL patterns.
type FilterRegistration struct {
	Name       string
	Patterns   []string
	InitParams map[string]string
	filter     Filter
}

// ServletRegistration is a named handler bound to URL patterns.
type ServletRegistration struct {
	Name       string
	Patterns   []string
	InitParams map[string]string
	handler    http.Handler
}

// Context holds the filters, servlets and listeners of the web applications.
type Context struct {
	logger  *slog.Logger
	plugins *PluginRegistry

	mu        sync.RWMutex
	listeners []Listener
	filters   []*FilterRegistration
	servlets  []*ServletRegistration
}

// NewContext creates an empty context.
func NewContext(logger *slog.Logger) *Context {
	return &Context{logger: logger, plugins: NewPluginRegistry()}
}

// Plugins returns the client plugin registry of the context.
func (c *Context) Plugins() *PluginRegistry { return c.plugins }

// AddListener registers l and notifies it immediately.
func (c *Context) AddListener(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
	l.ContextInitialized(c)
}

// FilterRegistration returns the filter registered under name, or nil.
func (c *Context) FilterRegistration(name string) *FilterRegistration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.filters {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ServletRegistration returns the servlet registered under name, or nil.
func (c *Context) ServletRegistration(name string) *ServletRegistration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.servlets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// RegisterFilter registers f under name for the given URL patterns. If a
// filter is already registered under name, its registration is returned
// unchanged and f is ignored.
func (c *Context) RegisterFilter(name string, f Filter, params map[string]string, patterns ...string) (*FilterRegistration, error) {
	if reg := c.FilterRegistration(name); reg != nil {
		return reg, nil
	}
	if init, ok := f.(Initializer); ok {
		if err := init.Init(params); err != nil {
			return nil, err
		}
	}

	reg := &FilterRegistration{Name: name, Patterns: patterns, InitParams: maps.Clone(params), filter: f}
	c.mu.Lock()
	c.filters = append(c.filters, reg)
	c.mu.Unlock()

	c.logger.Debug("filter registered", "filter", name, "patterns", patterns)
	return reg, nil
}

// RegisterServlet registers h under name for the given URL patterns. If a
// servlet is already registered under name, its registration is returned
// unchanged and h is ignored.
func (c *Context) RegisterServlet(name string, h http.Handler, params map[string]string, patterns ...string) (*ServletRegistration, error) {
	if reg := c.ServletRegistration(name); reg != nil {
		return reg, nil
	}
	if init, ok := h.(Initializer); ok {
		if err := init.Init(params); err != nil {
			return nil, err
		}
	}

	reg := &ServletRegistration{Name: name, Patterns: patterns, InitParams: maps.Clone(params), handler: h}
	c.mu.Lock()
	c.servlets = append(c.servlets, reg)
	c.mu.Unlock()

	c.logger.Debug("servlet registered", "servlet", name, "patterns", patterns)
	return reg, nil
}

// Handler serves requests through the matching filters, in registration
// order, into the best matching servlet. Requests no servlet matches go to
// fallback. Servlets bound by a prefix pattern see the path below the prefix.
func (c *Context) Handler(fallback http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.RLock()
		target := c.selectServlet(r, fallback)
		var chain []Filter
		for _, f := range c.filters {
			if matchesAny(f.Patterns, r.URL.Path) {
				chain = append(chain, f.filter)
			}
		}
		c.mu.RUnlock()

		h := target
		for i := len(chain) - 1; i >= 0; i-- {
			h = chain[i].Wrap(h)
		}
		h.ServeHTTP(w, r)
	})
}

func (c *Context) selectServlet(r *http.Request, fallback http.Handler) http.Handler {
	var (
		best      *ServletRegistration
		bestKind  int
		bestLen   = -1
		stripHead int
	)
	for _, s := range c.servlets {
		for _, p := range s.Patterns {
			kind, n := matchPattern(p, r.URL.Path)
			if kind > bestKind || kind == bestKind && kind != matchNone && n > bestLen {
				best, bestKind, bestLen = s, kind, n
				stripHead = 0
				if kind == matchPrefix {
					stripHead = n
				}
			}
		}
	}
	if best == nil {
		return fallback
	}
	if stripHead == 0 {
		return best.handler
	}
	return stripPrefix(r.URL.Path[:stripHead], best.handler)
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if kind, _ := matchPattern(p, path); kind != matchNone {
			return true
		}
	}
	return false
}

// stripPrefix is http.StripPrefix that keeps "/" for the bare prefix.
func stripPrefix(prefix string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := new(http.Request)
		*r2 = *r
		r2.URL = new(url.URL)
		*r2.URL = *r.URL
		r2.URL.Path = r.URL.Path[len(prefix):]
		if r2.URL.Path == "" {
			r2.URL.Path = "/"
		}
		r2.URL.RawPath = ""
		h.ServeHTTP(w, r2)
	})
}
