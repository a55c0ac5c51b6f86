package handlers

import (
	"net/http"

	"cloaked/internal/cloak"
)

// Health answers liveness; ?deep=1 also pings the cloaking engine.
func Health(engine *cloak.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("deep") == "1" {
			if err := engine.Health(r.Context()); err != nil {
				respondError(w, http.StatusServiceUnavailable, "cloak engine unreachable")
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
