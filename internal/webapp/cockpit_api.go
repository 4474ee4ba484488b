package webapp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// CockpitAPI serves the monitoring endpoints of the cockpit below
// /api/cockpit.
type CockpitAPI struct {
	logger *slog.Logger
	router chi.Router
}

// NewCockpitAPI creates the cockpit API.
func NewCockpitAPI(engines *Engines, logger *slog.Logger) *CockpitAPI {
	a := &CockpitAPI{logger: logger}
	r := chi.NewRouter()
	r.Route("/{engine}", func(r chi.Router) {
		r.Use(withEngine(engines))
		r.Get("/stats", a.handleStats)
		r.Get("/events", a.handleEvents)
	})
	a.router = r
	return a
}

func (a *CockpitAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *CockpitAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := engineFromContext(r.Context()).ManagementService().DefinitionStats(r.Context())
	if err != nil {
		writeServiceError(w, a.logger, "definition stats", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(stats))
}

// handleEvents streams the events of an engine as server-sent events until
// the client goes away or the engine shuts down. The type query parameter,
// repeated or comma separated, restricts the stream to those event types.
func (a *CockpitAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	e := engineFromContext(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		a.logger.Debug("set write deadline for SSE", "error", err)
	}

	// Subscribing to a closed topic returns a closed channel, so a stream
	// opened during shutdown ends right away.
	ch, unsub := e.Broker().Subscribe(e.Name(), eventTypes(r)...)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				a.logger.Error("encode event", "error", err)
				continue
			}
			if err := writeSSEData(w, string(data)); err != nil {
				return // Client gone.
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func eventTypes(r *http.Request) []string {
	var types []string
	for _, v := range r.URL.Query()["type"] {
		for t := range strings.SplitSeq(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	return types
}

// writeSSEData writes one SSE data event, splitting multi-line payloads.
func writeSSEData(w http.ResponseWriter, data string) error {
	for seg := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
