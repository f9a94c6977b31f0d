package api

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	service "github.com/okian/aqicast/internal/app"
	"github.com/okian/aqicast/internal/domain/estimator"
	"github.com/okian/aqicast/internal/domain/pollutant"
	"github.com/okian/aqicast/pkg/logger"
)

// PredictHandler serves single and batch predictions.
type PredictHandler struct {
	deps         Predictor
	validate     *validator.Validate
	logger       logger.Logger
	maxBodyBytes int64
}

// predictResponse keeps the field names clients of /predict already parse.
type predictResponse struct {
	EnsembleAbsolute map[string]float64 `json:"ensemble_absolute"`
	ComputedAQI      *float64           `json:"computed_AQI"`
	IndividualAQI    map[string]float64 `json:"individual_AQI"`
	Category         string             `json:"category,omitempty"`
}

type batchRequest struct {
	Readings []map[string]any `json:"readings" validate:"required,min=1,dive,required"`
}

type batchResult struct {
	Index int `json:"index"`
	*predictResponse
	Error *errorResponse `json:"error,omitempty"`
}

type batchResponse struct {
	Results   []batchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	var body map[string]any
	if !decodeBody(w, r, op, h.maxBodyBytes, &body) {
		return
	}

	p, err := h.deps.Predict(r.Context(), readingFrom(body))
	if err != nil {
		status, resp := h.failure(r, op, err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

// HandlePredictBatch handles POST /predict/batch requests.
func (h *PredictHandler) HandlePredictBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_batch"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	var req batchRequest
	if !decodeBody(w, r, op, h.maxBodyBytes, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, describe(err)))
		return
	}

	readings := make([]pollutant.Reading, len(req.Readings))
	for i, raw := range req.Readings {
		readings[i] = readingFrom(raw)
	}

	items, err := h.deps.PredictBatch(r.Context(), readings)
	switch {
	case errors.Is(err, service.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", WrapKind(op, ErrInvalidInput, err))
		return
	case err != nil:
		status, resp := h.failure(r, op, err)
		writeJSON(w, status, resp)
		return
	}

	out := batchResponse{Results: make([]batchResult, len(items))}
	for i, it := range items {
		res := batchResult{Index: i}
		if it.Err != nil {
			_, resp := h.failure(r, op, it.Err)
			res.Error = &resp
			out.Failed++
		} else {
			res.predictResponse = toResponse(it.Prediction)
			out.Succeeded++
		}
		out.Results[i] = res
	}
	writeJSON(w, http.StatusOK, out)
}

// failure maps a prediction error to a status and a client safe body.
func (h *PredictHandler) failure(r *http.Request, op string, err error) (int, errorResponse) {
	var verr *estimator.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorResponse{
			Code:    "validation_failed",
			Message: verr.Error(),
			Missing: verr.Missing,
			Invalid: verr.Invalid,
		}
	case errors.Is(err, service.ErrNoEstimator):
		return http.StatusServiceUnavailable, errorResponse{Code: "models_unavailable", Message: NewKind(op, ErrUnavailable).Error()}
	case errors.Is(err, service.ErrNotProcessed):
		return http.StatusServiceUnavailable, errorResponse{Code: "not_processed", Message: err.Error()}
	}
	h.logger.Error(r.Context(), "prediction failed", logger.String("op", op), logger.Error(err))
	return http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: NewKind(op, ErrInternal).Error()}
}

// readingFrom maps a request body onto a reading. The short aliases only
// apply when the full feature name is absent. Values that are not numbers
// become NaN so validation reports them as invalid.
func readingFrom(body map[string]any) pollutant.Reading {
	out := make(pollutant.Reading, len(body))
	for key, raw := range body {
		f := pollutant.ResolveFeature(key)
		if string(f) != key {
			if _, full := body[string(f)]; full {
				continue
			}
		}
		out[f] = number(raw)
	}
	return out
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func toResponse(p *service.Prediction) *predictResponse {
	return &predictResponse{
		EnsembleAbsolute: byName(p.Concentrations),
		ComputedAQI:      p.AQI.Overall,
		IndividualAQI:    byName(p.AQI.SubIndices),
		Category:         string(p.Category),
	}
}

func byName[M ~map[pollutant.Pollutant]float64](m M) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// describe flattens validator errors into one line per field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}
