package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-eventfeed/internal/facets"
)

// FacetStore is the tracker surface the HTTP layer needs.
type FacetStore interface {
	Snapshot() facets.State
	SetSelected(ctx context.Context, facet string, values []string) error
}

type FacetHandler struct {
	Tracker FacetStore
}

func NewFacetHandler(t FacetStore) *FacetHandler {
	return &FacetHandler{Tracker: t}
}

// GET /api/v1/facets
func (h *FacetHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Tracker.Snapshot())
}

// PUT /api/v1/facets/{facet}/selection
func (h *FacetHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	facet := chi.URLParam(r, "facet")

	var req struct {
		Values []string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Values == nil {
		req.Values = []string{}
	}

	if err := h.Tracker.SetSelected(r.Context(), facet, req.Values); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.Tracker.Snapshot())
}
