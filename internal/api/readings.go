package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/storefront-telemetry/internal/ingestion"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
)

// handleIngest accepts one submission and returns the stored reading.
//
//	201 reading | 400 invalid | 404 unknown device | 503 store failure | 504 timeout
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var sub ingestion.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rd, err := s.ingester.Ingest(r.Context(), sub)
	if err != nil {
		s.logger.Debug("submission rejected", "device_id", sub.DeviceID, "error", err)
		writeIngestionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rd)
}

// handleListReadings queries readings, newest first.
//
// Query parameters:
//   - device_id, catalog_item_id: exact match
//   - alert: true or false
//   - from, to: RFC 3339 timestamps (inclusive)
//   - limit: 1-1000, default 100
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	f, err := parseReadingFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	readings, err := s.readings.Query(r.Context(), f)
	if err != nil {
		writeInternalError(w, "failed to query readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

func parseReadingFilter(r *http.Request) (reading.Filter, error) {
	q := r.URL.Query()
	f := reading.Filter{
		DeviceID:      q.Get("device_id"),
		CatalogItemID: q.Get("catalog_item_id"),
	}

	if v := q.Get("alert"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("alert must be true or false")
		}
		f.AlertTriggered = &b
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return f, errors.New(p.key + " must be an RFC 3339 timestamp")
		}
		*p.dst = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

// handleGetReading returns one reading.
func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	rd, err := s.readings.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, reading.ErrReadingNotFound) {
			writeNotFound(w, "reading not found")
			return
		}
		writeInternalError(w, "failed to get reading")
		return
	}
	writeJSON(w, http.StatusOK, rd)
}
