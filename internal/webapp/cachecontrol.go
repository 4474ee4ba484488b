package webapp

import "net/http"

// CacheControlFilter disables caching of GET responses.
type CacheControlFilter struct{}

// Wrap implements Filter.
func (CacheControlFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Cache-Control", "no-cache")
		}
		next.ServeHTTP(w, r)
	})
}
