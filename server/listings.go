package server

import (
	"net/http"
)

type listingIDRequest struct {
	ListingID string `json:"listing_id"`
}

// handleRecheckListing runs an immediate matching pass for one listing, used
// by the listing-edit flow when a caller wants confirmation outside the
// change feed.
func (s *Server) handleRecheckListing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req listingIDRequest
	if err := decodeBody(w, r, &req); err != nil || req.ListingID == "" {
		writeError(w, http.StatusBadRequest, "listing_id is required")
		return
	}

	if err := s.manager.RecheckListing(r.Context(), req.ListingID); err != nil {
		if s.isNotFound(err) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		s.logger.Error("Listing recheck failed", "listing_id", req.ListingID, "error", err)
		writeError(w, http.StatusInternalServerError, "listing recheck failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
