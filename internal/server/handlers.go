package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mise-kitchen/mise/internal/store"
)

// errorBody is the JSON shape of all error responses.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// readJSON decodes the request body into v, rejecting unknown fields.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("store operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Ingredients ---

func (s *Server) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListIngredients(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateIngredient(w http.ResponseWriter, r *http.Request) {
	var ing store.Ingredient
	if err := readJSON(r, &ing); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := ing.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateIngredient(r.Context(), &ing); err != nil {
		writeStoreError(w, err)
		return
	}
	s.indexIngredient(r.Context(), &ing)
	writeJSON(w, http.StatusCreated, ing)
}

func (s *Server) handleGetIngredient(w http.ResponseWriter, r *http.Request) {
	ing, err := s.store.GetIngredient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ing)
}

func (s *Server) handleUpdateIngredient(w http.ResponseWriter, r *http.Request) {
	var ing store.Ingredient
	if err := readJSON(r, &ing); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	ing.ID = r.PathValue("id")
	if err := ing.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateIngredient(r.Context(), &ing); err != nil {
		writeStoreError(w, err)
		return
	}
	s.indexIngredient(r.Context(), &ing)
	writeJSON(w, http.StatusOK, ing)
}

func (s *Server) handleDeleteIngredient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteIngredient(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.semantic != nil {
		if err := s.semantic.Remove(r.Context(), id); err != nil {
			slog.Warn("embedding removal failed", "ingredient_id", id, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ingredientImageResponse is the body of a successful image generation.
type ingredientImageResponse struct {
	IngredientID string `json:"ingredient_id"`
	URL          string `json:"url"`
}

// handleIngredientImage generates a menu photo for an existing ingredient
// and returns its URL. The image itself is hosted by the AI provider.
func (s *Server) handleIngredientImage(w http.ResponseWriter, r *http.Request) {
	if s.imageGen == nil {
		writeError(w, http.StatusServiceUnavailable, "image generation is not configured")
		return
	}
	ing, err := s.store.GetIngredient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	url, err := s.imageGen.GenerateImage(r.Context(), ing.Name)
	if err != nil {
		slog.Error("image generation failed", "ingredient_id", ing.ID, "err", err)
		writeError(w, http.StatusBadGateway, "image generation failed")
		return
	}
	writeJSON(w, http.StatusOK, ingredientImageResponse{IngredientID: ing.ID, URL: url})
}

// indexIngredient updates the embedding index when one is configured.
// Failures are logged, not surfaced: the index is advisory.
func (s *Server) indexIngredient(ctx context.Context, ing *store.Ingredient) {
	if s.semantic == nil {
		return
	}
	if err := s.semantic.IndexIngredient(ctx, ing); err != nil {
		slog.Warn("embedding index update failed", "ingredient_id", ing.ID, "err", err)
	}
}

// --- Suggestions ---

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.SuggestionPending, store.SuggestionAccepted, store.SuggestionRejected, store.SuggestionAutoApplied:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}

	list, err := s.store.ListSuggestions(r.Context(), status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sug, err := s.store.GetSuggestion(ctx, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sug.Status != store.SuggestionPending {
		writeError(w, http.StatusConflict, "suggestion is not pending")
		return
	}

	ing := sug.Ingredient
	if err := s.store.CreateIngredient(ctx, &ing); err != nil {
		writeStoreError(w, err)
		return
	}
	s.indexIngredient(r.Context(), &ing)

	if err := s.store.UpdateSuggestionStatus(ctx, sug.ID, store.SuggestionAccepted); err != nil {
		writeStoreError(w, err)
		return
	}
	s.metrics.RecordSuggestion(ctx, "accepted")

	sug.Status = store.SuggestionAccepted
	sug.Ingredient = ing
	writeJSON(w, http.StatusOK, sug)
}

func (s *Server) handleRejectSuggestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sug, err := s.store.GetSuggestion(ctx, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sug.Status != store.SuggestionPending {
		writeError(w, http.StatusConflict, "suggestion is not pending")
		return
	}

	if err := s.store.UpdateSuggestionStatus(ctx, sug.ID, store.SuggestionRejected); err != nil {
		writeStoreError(w, err)
		return
	}
	s.metrics.RecordSuggestion(ctx, "rejected")

	sug.Status = store.SuggestionRejected
	writeJSON(w, http.StatusOK, sug)
}

// --- Preps ---

func (s *Server) handleListPreps(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPreps(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePrep(w http.ResponseWriter, r *http.Request) {
	var p store.Prep
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreatePrep(r.Context(), &p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePrep(w http.ResponseWriter, r *http.Request) {
	var p store.Prep
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p.ID = r.PathValue("id")
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdatePrep(r.Context(), &p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Reservations ---

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListReservations(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var res store.Reservation
	if err := readJSON(r, &res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := res.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateReservation(r.Context(), &res); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteReservation(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sales ---

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSalesEntries(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSales(w http.ResponseWriter, r *http.Request) {
	var e store.SalesEntry
	if err := readJSON(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := e.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateSalesEntry(r.Context(), &e); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// --- Press ---

func (s *Server) handleListPress(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPressArticles(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePress(w http.ResponseWriter, r *http.Request) {
	var a store.PressArticle
	if err := readJSON(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := a.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreatePressArticle(r.Context(), &a); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// --- Translations ---

func (s *Server) handleListTranslations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTranslations(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateTranslation(w http.ResponseWriter, r *http.Request) {
	var t store.TranslationEntry
	if err := readJSON(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateTranslation(r.Context(), &t); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
