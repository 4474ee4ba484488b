package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/seantiz/showcase/internal/bpmn"
	"github.com/seantiz/showcase/internal/engine"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps an engine or store error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrProcessDefinitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidVariable),
		errors.Is(err, bpmn.ErrInvalidProcess),
		errors.Is(err, ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, ErrSetupCompleted):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrProcessInstanceEnded),
		errors.Is(err, engine.ErrTaskClaimed),
		errors.Is(err, ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Server errors are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON decodes a size-limited JSON body into v. An empty body leaves v
// unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// decodeBytes decodes a JSON document already read from a request. Numbers
// stay json.Number so typed variables keep their exact integer values.
func decodeBytes(data []byte, v any) error {
	if err := model.DecodeJSON(data, v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolQuery parses a boolean query parameter with a default value.
func parseBoolQuery(r *http.Request, key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return defaultVal
	}
	return v
}
