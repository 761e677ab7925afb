package server

import (
	"net/http"
	"time"

	"unihousing-notifier/pkg/housing"
)

type createAlertRequest struct {
	OwnerID       string `json:"owner_id"`
	City          string `json:"city"`
	ApartmentType string `json:"apartment_type"`
	DesiredFrom   string `json:"desired_from"`
	DesiredTo     string `json:"desired_to"`
}

type alertIDRequest struct {
	AlertID string `json:"alert_id"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Alert creation rate limited", "ip", ip)
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req createAlertRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	desiredFrom, desiredTo, ok := parseWindow(req.DesiredFrom, req.DesiredTo)
	if !ok {
		writeError(w, http.StatusBadRequest, "desired_from and desired_to must be dates")
		return
	}

	alert, err := s.manager.Create(r.Context(), req.OwnerID, req.City, req.ApartmentType, desiredFrom, desiredTo)
	if err != nil {
		if housing.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Alert creation failed", "owner_id", req.OwnerID, "error", err)
		writeError(w, http.StatusInternalServerError, "alert creation failed")
		return
	}

	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req alertIDRequest
	if err := decodeBody(w, r, &req); err != nil || req.AlertID == "" {
		writeError(w, http.StatusBadRequest, "alert_id is required")
		return
	}

	alert, err := s.manager.ToggleActive(r.Context(), req.AlertID)
	if err != nil {
		if s.isNotFound(err) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.logger.Error("Alert toggle failed", "alert_id", req.AlertID, "error", err)
		writeError(w, http.StatusInternalServerError, "alert toggle failed")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req alertIDRequest
	if err := decodeBody(w, r, &req); err != nil || req.AlertID == "" {
		writeError(w, http.StatusBadRequest, "alert_id is required")
		return
	}

	if err := s.manager.Delete(r.Context(), req.AlertID); err != nil {
		s.logger.Error("Alert delete failed", "alert_id", req.AlertID, "error", err)
		writeError(w, http.StatusInternalServerError, "alert delete failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// parseWindow accepts plain dates or RFC 3339 instants. Blank values pass
// through as zero times so validation reports the missing field.
func parseWindow(from, to string) (time.Time, time.Time, bool) {
	parse := func(raw string) (time.Time, bool) {
		if raw == "" {
			return time.Time{}, true
		}
		return housing.ToInstant(raw)
	}
	f, okFrom := parse(from)
	t, okTo := parse(to)
	if !okFrom || !okTo {
		return time.Time{}, time.Time{}, false
	}
	return f, t, true
}
