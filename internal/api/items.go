package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/storefront-telemetry/internal/inventory"
)

// handleGetItem returns the stock record of a catalog item.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			writeNotFound(w, "item not found")
			return
		}
		writeInternalError(w, "failed to get item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleListMovements pages through an item's stock ledger, newest first.
// Query parameters: limit (default 50, max 200), offset.
func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	filter := inventory.MovementFilter{ItemID: chi.URLParam(r, "id")}

	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	if _, err := s.items.GetItem(r.Context(), filter.ItemID); err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			writeNotFound(w, "item not found")
			return
		}
		writeInternalError(w, "failed to get item")
		return
	}

	list, err := s.items.ListMovements(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list movements")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
