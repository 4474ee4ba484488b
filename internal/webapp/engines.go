package webapp

import (
	"net/http"
	"strings"

	"github.com/seantiz/showcase/internal/engine"
)

// Engines is the set of process engines served by the web applications. The
// first engine is the default one.
type Engines struct {
	order  []string
	byName map[string]*engine.ProcessEngine
}

// NewEngines creates the set from engines.
func NewEngines(engines ...*engine.ProcessEngine) *Engines {
	s := &Engines{byName: make(map[string]*engine.ProcessEngine, len(engines))}
	for _, e := range engines {
		if _, ok := s.byName[e.Name()]; ok {
			continue
		}
		s.order = append(s.order, e.Name())
		s.byName[e.Name()] = e
	}
	return s
}

// Engine returns the engine with the given name.
func (s *Engines) Engine(name string) (*engine.ProcessEngine, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Names returns the engine names in registration order.
func (s *Engines) Names() []string {
	return append([]string(nil), s.order...)
}

// Default returns the default engine name, or "" when there is none.
func (s *Engines) Default() string {
	if len(s.order) == 0 {
		return ""
	}
	return s.order[0]
}

// EnginesFilter routes /app/{app}/{engine}/ requests. A request without an
// engine segment is redirected to the default engine and a request for an
// unknown engine gets 404. Asset requests pass through.
type EnginesFilter struct {
	engines *Engines
}

// Wrap implements Filter.
func (f *EnginesFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest, ok := strings.CutPrefix(r.URL.Path, "/app/")
		if !ok || rest == "" {
			next.ServeHTTP(w, r)
			return
		}

		app, sub, _ := strings.Cut(rest, "/")
		name, _, _ := strings.Cut(sub, "/")
		switch {
		case strings.Contains(app, "."), strings.Contains(name, "."):
			next.ServeHTTP(w, r)
		case name == "":
			def := f.engines.Default()
			if def == "" {
				writeError(w, http.StatusNotFound, "no process engine available")
				return
			}
			http.Redirect(w, r, "/app/"+app+"/"+def+"/", http.StatusFound)
		default:
			if _, ok := f.engines.Engine(name); !ok {
				writeError(w, http.StatusNotFound, "process engine "+name+" not found")
				return
			}
			next.ServeHTTP(w, r)
		}
	})
}
