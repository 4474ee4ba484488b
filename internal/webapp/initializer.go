package webapp

import (
	"errors"
	"log/slog"
	"net/http"
)

// Registration names.
const (
	AuthenticationFilterName = "Authentication Filter"
	SecurityFilterName       = "Security Filter"
	CockpitPluginsFilterName = "Cockpit Client Plugins Filter"
	AdminPluginsFilterName   = "Admin Client Plugins Filter"
	EnginesFilterName        = "Engines Filter"
	CacheControlFilterName   = "CacheControlFilter"

	CockpitAPIName = "Cockpit Api"
	AdminAPIName   = "Admin Api"
	EngineAPIName  = "Engine Api"
	AppsName       = "Apps"
)

// Deps are the services the web applications run on.
type Deps struct {
	Engines *Engines
	Users   *Users
	Logger  *slog.Logger

	// SecurityConfigFile is the path of the security rules file. The
	// built-in rules apply when it is empty.
	SecurityConfigFile string
}

// Initialize registers the listeners, filters and servlets of the web
// applications on c. Calling it again on the same context registers nothing
// new.
func Initialize(c *Context, deps Deps) error {
	if deps.Engines == nil || deps.Users == nil {
		return errors.New("webapp: engines and users are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if c.FilterRegistration(AuthenticationFilterName) == nil {
		c.AddListener(CockpitBootstrap{})
		c.AddListener(AdminBootstrap{})
	}

	filters := []struct {
		name     string
		filter   Filter
		params   map[string]string
		patterns []string
	}{
		{AuthenticationFilterName, NewAuthenticationFilter(deps.Users, logger), nil, []string{"/*"}},
		{SecurityFilterName, &SecurityFilter{}, map[string]string{"configFile": deps.SecurityConfigFile}, []string{"/*"}},
		{CockpitPluginsFilterName, NewClientPluginsFilter("cockpit", c.Plugins()), nil,
			[]string{"/app/cockpit/cockpit-bootstrap.js", "/app/cockpit/cockpit.js"}},
		{AdminPluginsFilterName, NewClientPluginsFilter("admin", c.Plugins()), nil,
			[]string{"/app/admin/admin-bootstrap.js", "/app/admin/admin.js"}},
		{EnginesFilterName, &EnginesFilter{engines: deps.Engines}, nil, []string{"/app/*"}},
		{CacheControlFilterName, CacheControlFilter{}, nil, []string{"/api/*"}},
	}
	for _, f := range filters {
		if _, err := c.RegisterFilter(f.name, f.filter, f.params, f.patterns...); err != nil {
			return err
		}
	}

	engineAPI, err := NewEngineAPI(deps.Engines, logger)
	if err != nil {
		return err
	}
	servlets := []struct {
		name    string
		handler http.Handler
		params  map[string]string
		pattern string
	}{
		{CockpitAPIName, NewCockpitAPI(deps.Engines, logger), map[string]string{"mapping": "/api/cockpit"}, "/api/cockpit/*"},
		{AdminAPIName, NewAdminAPI(deps.Engines, deps.Users, logger), map[string]string{"mapping": "/api/admin"}, "/api/admin/*"},
		{EngineAPIName, engineAPI, map[string]string{"mapping": "/api/engine"}, "/api/engine/*"},
		{AppsName, newAppsServlet(), nil, "/app/*"},
	}
	for _, s := range servlets {
		if _, err := c.RegisterServlet(s.name, s.handler, s.params, s.pattern); err != nil {
			return err
		}
	}
	return nil
}
