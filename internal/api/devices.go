package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// handleListDevices returns all devices.
//
// Query parameters (at most one is applied, kind first):
//   - kind: sensor kind (temperature, rfid, ...)
//   - warehouse: location warehouse
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		devices []device.Device
		err     error
	)
	switch {
	case q.Get("kind") != "":
		kind := sensor.Kind(q.Get("kind"))
		if !kind.Valid() {
			writeBadRequest(w, "unknown kind")
			return
		}
		devices, err = s.registry.ListByKind(ctx, kind)
	case q.Get("warehouse") != "":
		devices, err = s.registry.ListByWarehouse(ctx, q.Get("warehouse"))
	default:
		devices, err = s.registry.ListDevices(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDeviceStatus applies a partial status update:
//
//	{"status": "maintenance", "is_online": false, "battery_level": 40}
//
// The updated device is published as a device.status_changed event.
func (s *Server) handleUpdateDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var update device.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.UpdateStatus(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case device.IsValidation(err):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to update device")
		}
		return
	}

	itemID := ""
	if dev.CatalogItemID != nil {
		itemID = *dev.CatalogItemID
	}
	s.hub.Publish(broadcast.NewEvent(broadcast.KindDeviceStatusChanged, dev.ID, itemID, dev))

	writeJSON(w, http.StatusOK, dev)
}
