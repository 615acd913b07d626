package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/sems-monitoring/internal/device"
)

type deviceList struct {
	Success bool            `json:"success"`
	Devices []device.Device `json:"devices"`
	Summary device.Summary  `json:"summary"`
}

// listDevices filters the device table. The summary always covers every
// device, not only the filtered ones.
func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := device.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.respondMsg(ctx, w, http.StatusBadRequest, "Unknown status filter.")
		return
	}
	all, err := s.devices.List(ctx)
	if err != nil {
		s.respondErr(ctx, w, http.StatusBadGateway, "Could not load devices.", err)
		return
	}
	writeJSON(w, http.StatusOK, deviceList{
		Success: true,
		Devices: device.Search(all, strings.TrimSpace(r.URL.Query().Get("q")), filter),
		Summary: device.Summarize(all),
	})
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "device": d})
}

func (s *Server) loadDevice(w http.ResponseWriter, r *http.Request) (device.Device, bool) {
	ctx := r.Context()
	d, err := s.devices.Get(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, device.ErrNotFound):
		s.respondMsg(ctx, w, http.StatusNotFound, "Device not found.")
		return device.Device{}, false
	case err != nil:
		s.respondErr(ctx, w, http.StatusBadGateway, "Could not load device.", err)
		return device.Device{}, false
	}
	return d, true
}

func (s *Server) createOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in device.OwnerInput
	if err := decode(w, r, &in); err != nil {
		s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
		return
	}
	id, err := s.devices.CreateOwner(ctx, in)
	if err != nil {
		s.ownerErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (s *Server) updateOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in device.OwnerInput
	if err := decode(w, r, &in); err != nil {
		s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
		return
	}
	if err := s.devices.UpdateOwner(ctx, chi.URLParam(r, "id"), in); err != nil {
		s.ownerErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) deleteOwner(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.DeleteOwner(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.ownerErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ownerErr(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, device.ErrInvalidOwner):
		s.respondMsg(ctx, w, http.StatusBadRequest, ownerMessage(err))
	case errors.Is(err, device.ErrNotFound):
		s.respondMsg(ctx, w, http.StatusNotFound, "Device not found.")
	default:
		s.respondErr(ctx, w, http.StatusBadGateway, "Could not save the owner.", err)
	}
}

// ownerMessage turns "invalid owner\nname is required" into
// "Name is required."
func ownerMessage(err error) string {
	lines := strings.Split(err.Error(), "\n")
	detail := lines[len(lines)-1]
	if detail == "" {
		return "Invalid input provided."
	}
	return strings.ToUpper(detail[:1]) + detail[1:] + "."
}
