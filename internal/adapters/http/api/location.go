package api

import (
	"net/http"

	"github.com/okian/aqicast/pkg/logger"
)

// LocationHandler exposes the resolved service location.
type LocationHandler struct {
	deps   Locator
	logger logger.Logger
}

// HandleLocation handles GET /location requests. Lookup failures are
// reported as 503 rather than a blank location.
func (h *LocationHandler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.location"
	if !allowMethod(w, r, op, http.MethodGet) {
		return
	}
	loc, err := h.deps.Locate(r.Context())
	if err != nil {
		h.logger.Warn(r.Context(), "location lookup failed", logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "location_unavailable", NewKind(op, ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
