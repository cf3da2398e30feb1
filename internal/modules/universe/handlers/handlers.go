// Package handlers exposes the security universe over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/domain"
	"github.com/petrakis/factorlab/internal/modules/universe"
)

// Handler provides HTTP handlers for universe endpoints.
type Handler struct {
	repo *universe.SecurityRepository
	log  zerolog.Logger
}

// NewHandler creates a universe HTTP handler.
func NewHandler(repo *universe.SecurityRepository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("component", "universe_handlers").Logger(),
	}
}

// RegisterRoutes registers all universe routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/universe", func(r chi.Router) {
		r.Get("/securities", h.ListSecurities)
		r.Post("/securities", h.UpsertSecurity)
		r.Get("/securities/{isin}", h.GetSecurity)
		r.Delete("/securities/{isin}", h.DeleteSecurity)
	})
}

// ListSecurities returns all securities; ?active=true restricts to active ones.
func (h *Handler) ListSecurities(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	securities, err := h.repo.List(activeOnly)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list securities")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if securities == nil {
		securities = []domain.Security{}
	}
	respondJSON(w, http.StatusOK, securities)
}

// UpsertSecurity inserts or updates a security.
func (h *Handler) UpsertSecurity(w http.ResponseWriter, r *http.Request) {
	var s domain.Security
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if s.ISIN == "" || s.Symbol == "" {
		respondError(w, http.StatusBadRequest, "isin and symbol are required")
		return
	}

	if err := h.repo.Upsert(s); err != nil {
		h.log.Error().Err(err).Str("isin", s.ISIN).Msg("Failed to upsert security")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// GetSecurity returns one security by ISIN.
func (h *Handler) GetSecurity(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")
	s, err := h.repo.GetByISIN(isin)
	if err != nil {
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to get security")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s == nil {
		respondError(w, http.StatusNotFound, "unknown security: "+isin)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// DeleteSecurity removes a security.
func (h *Handler) DeleteSecurity(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")
	deleted, err := h.repo.Delete(isin)
	if err != nil {
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to delete security")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "unknown security: "+isin)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": isin})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
