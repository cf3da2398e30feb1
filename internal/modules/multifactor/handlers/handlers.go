// Package handlers exposes the multifactor engine registry over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/modules/multifactor"
	"github.com/petrakis/factorlab/internal/modules/multifactor/registry"
)

// Handler provides HTTP handlers for engine endpoints.
type Handler struct {
	service *registry.Service
	log     zerolog.Logger
}

// NewHandler creates a multifactor HTTP handler.
func NewHandler(service *registry.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("component", "multifactor_handlers").Logger(),
	}
}

// ListEngines returns all stored engine configurations.
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.List()
	if err != nil {
		h.fail(w, err)
		return
	}
	if configs == nil {
		configs = []registry.StoredConfig{}
	}
	respondJSON(w, http.StatusOK, configs)
}

// CreateEngine persists and instantiates a new engine configuration.
func (h *Handler) CreateEngine(w http.ResponseWriter, r *http.Request) {
	var cfg registry.StoredConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.service.Create(cfg); err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cfg)
}

// DeleteEngine removes an engine and its stored configuration.
func (h *Handler) DeleteEngine(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	deleted, err := h.service.Delete(name)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "unknown engine: "+name)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// GetFactor returns the combined factor series for one security.
func (h *Handler) GetFactor(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	series, err := engine.Factor(pathParam(r, "isin"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, seriesPayload(series))
}

// GetAllFactors returns every combined factor series in universe order.
func (h *Handler) GetAllFactors(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	series, err := engine.AllFactors()
	if err != nil {
		h.fail(w, err)
		return
	}

	securities := engine.Config().Securities
	out := make([]map[string]interface{}, len(series))
	for i, s := range series {
		payload := seriesPayload(s)
		payload["isin"] = securities[i]
		out[i] = payload
	}
	respondJSON(w, http.StatusOK, out)
}

// GetCross returns the descending-sorted cross-section for one date.
func (h *Handler) GetCross(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	cross, err := engine.Cross(pathParam(r, "date"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if cross == nil {
		cross = []multifactor.CrossItem{}
	}
	respondJSON(w, http.StatusOK, cross)
}

// GetAllCross returns every cross-section in calendar order.
func (h *Handler) GetAllCross(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	cross, err := engine.AllCross()
	if err != nil {
		h.fail(w, err)
		return
	}
	calendar, err := engine.Calendar()
	if err != nil {
		h.fail(w, err)
		return
	}

	out := make([]map[string]interface{}, len(cross))
	for i, section := range cross {
		if section == nil {
			section = []multifactor.CrossItem{}
		}
		out[i] = map[string]interface{}{
			"date":  calendar[i],
			"cross": section,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// GetIC returns the IC series. Query parameter ndays defaults to 0, the
// sentinel for the engine's configured horizon.
func (h *Handler) GetIC(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	ndays, ok := intQueryParam(w, r, "ndays", 0)
	if !ok {
		return
	}

	series, err := engine.IC(ndays)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, seriesPayload(series))
}

// GetICIR returns the rolling information ratio series. Query parameters:
// ir_n (required window), ic_n (horizon, 0 = engine default).
func (h *Handler) GetICIR(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	irN, ok := intQueryParam(w, r, "ir_n", 0)
	if !ok {
		return
	}
	icN, ok := intQueryParam(w, r, "ic_n", 0)
	if !ok {
		return
	}

	series, err := engine.ICIR(irN, icN)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, seriesPayload(series))
}

// Rebuild replaces the engine with an uncalculated clone and warms it.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if h.service.Get(name) == nil {
		respondError(w, http.StatusNotFound, "unknown engine: "+name)
		return
	}

	h.service.RebuildAll()
	if err := h.service.Warm(name); err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"rebuilt": name})
}

// engine resolves the engine named in the URL, writing a 404 when unknown.
func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (*multifactor.Engine, bool) {
	name := pathParam(r, "name")
	engine := h.service.Get(name)
	if engine == nil {
		respondError(w, http.StatusNotFound, "unknown engine: "+name)
		return nil, false
	}
	return engine, true
}

// fail maps engine errors onto HTTP statuses: structural errors are client
// errors, everything else is a 500.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, multifactor.ErrUnknownSecurity):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, multifactor.ErrUnknownDate):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, multifactor.ErrInvalidHorizon), errors.Is(err, multifactor.ErrInvalidWindow):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Engine request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// seriesPayload renders a series with NaN holes as JSON nulls, keeping the
// full calendar shape.
func seriesPayload(s multifactor.Series) map[string]interface{} {
	values := make([]*float64, len(s.Values))
	for i, v := range s.Values {
		if v == v { // not NaN
			value := v
			values[i] = &value
		}
	}
	return map[string]interface{}{
		"dates":  s.Dates,
		"values": values,
	}
}

func intQueryParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name+": "+raw)
		return 0, false
	}
	return v, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
