package webapp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
)

// pluginsPlaceholder is replaced in client scripts by the plugin list.
const pluginsPlaceholder = "/* plugins */"

// Plugin is a client extension of a web application.
type Plugin struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// PluginRegistry holds the client plugins registered per application.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string][]Plugin
}

// NewPluginRegistry creates an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: make(map[string][]Plugin)}
}

// Register adds p to app. A plugin id is registered at most once per app.
func (r *PluginRegistry) Register(app string, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.plugins[app] {
		if existing.ID == p.ID {
			return
		}
	}
	r.plugins[app] = append(r.plugins[app], p)
}

// Plugins returns the plugins of app in registration order.
func (r *PluginRegistry) Plugins(app string) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin{}, r.plugins[app]...)
}

// ClientPluginsFilter injects the plugins of one application into the
// scripts it is bound to.
type ClientPluginsFilter struct {
	app      string
	registry *PluginRegistry
}

// NewClientPluginsFilter creates the plugins filter of app.
func NewClientPluginsFilter(app string, registry *PluginRegistry) *ClientPluginsFilter {
	return &ClientPluginsFilter{app: app, registry: registry}
}

// Wrap implements Filter.
func (f *ClientPluginsFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bufferedResponse{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(buf, r)

		body := buf.body.Bytes()
		if buf.status == http.StatusOK {
			list, err := json.Marshal(f.registry.Plugins(f.app))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "encode plugins")
				return
			}
			body = bytes.ReplaceAll(body, []byte(pluginsPlaceholder), list)
		}

		for k, v := range buf.header {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(buf.status)
		_, _ = w.Write(body)
	})
}

// bufferedResponse captures a response so filters can rewrite it.
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

// CockpitBootstrap registers the built-in cockpit plugins.
type CockpitBootstrap struct{}

// ContextInitialized implements Listener.
func (CockpitBootstrap) ContextInitialized(c *Context) {
	c.Plugins().Register("cockpit", Plugin{ID: "process-definition-stats", URL: "/api/cockpit/{engine}/stats"})
	c.Plugins().Register("cockpit", Plugin{ID: "engine-events", URL: "/api/cockpit/{engine}/events"})
}

// AdminBootstrap registers the built-in admin plugins.
type AdminBootstrap struct{}

// ContextInitialized implements Listener.
func (AdminBootstrap) ContextInitialized(c *Context) {
	c.Plugins().Register("admin", Plugin{ID: "user-management", URL: "/api/admin/{engine}/user"})
}
