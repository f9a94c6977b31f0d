package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/okian/aqicast/internal/domain/aqi"
	"github.com/okian/aqicast/internal/domain/pollutant"
	"github.com/okian/aqicast/pkg/logger"
)

// AQIHandler serves AQI computation from caller supplied concentrations.
type AQIHandler struct {
	deps         AQIComputer
	validate     *validator.Validate
	logger       logger.Logger
	maxBodyBytes int64
}

type aqiRequest struct {
	Concentrations map[string]float64 `json:"concentrations" validate:"required,dive,gte=0"`
}

type aqiResponse struct {
	ComputedAQI   *float64           `json:"computed_AQI"`
	IndividualAQI map[string]float64 `json:"individual_AQI"`
	Category      string             `json:"category,omitempty"`
}

// HandleComputeAQI handles POST /aqi requests.
func (h *AQIHandler) HandleComputeAQI(w http.ResponseWriter, r *http.Request) {
	const op = "api.compute_aqi"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	var req aqiRequest
	if !decodeBody(w, r, op, h.maxBodyBytes, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrInvalidInput, describe(err)))
		return
	}

	conc := make(pollutant.Concentrations, len(req.Concentrations))
	for k, v := range req.Concentrations {
		conc[pollutant.Pollutant(k)] = v
	}

	res, cat, err := h.deps.ComputeAQI(r.Context(), conc)
	var cerr *aqi.ConfigurationError
	switch {
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, "unknown_pollutant", WrapKind(op, ErrInvalidInput, err))
		return
	case err != nil:
		h.logger.Error(r.Context(), "aqi computation failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
		return
	}
	writeJSON(w, http.StatusOK, aqiResponse{
		ComputedAQI:   res.Overall,
		IndividualAQI: byName(res.SubIndices),
		Category:      string(cat),
	})
}
