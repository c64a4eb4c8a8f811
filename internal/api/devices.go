package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
	"github.com/nerrad567/gray-logic-purifier/internal/diagnostics"
	"github.com/nerrad567/gray-logic-purifier/internal/health"
	"github.com/nerrad567/gray-logic-purifier/internal/orchestrator"
)

// entryView is a stored entry plus its runtime state.
type entryView struct {
	*device.Device
	Loaded    bool   `json:"loaded"`
	State     string `json:"state,omitempty"`
	Available bool   `json:"available"`
	Warning   string `json:"warning,omitempty"`
}

func (s *Server) view(dev *device.Device) entryView {
	v := entryView{Device: dev}
	if e, ok := s.orch.Get(dev.ID); ok {
		v.Loaded = true
		v.State = e.Coordinator.State().String()
		v.Available = e.Coordinator.IsAvailable()
	}
	return v
}

// handleListDevices returns all entries without their status snapshots.
//
// Query parameters:
//   - loaded: "true" or "false" to filter by runtime state
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list entries")
		return
	}

	filter := r.URL.Query().Get("loaded")
	views := make([]entryView, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		d.Status = nil
		v := s.view(d)
		if (filter == "true" && !v.Loaded) || (filter == "false" && v.Loaded) {
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single entry by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, s.view(dev))
}

// createRequest is the body of POST /devices.
type createRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Host  string `json:"host"`
	Model string `json:"model"`
	MAC   string `json:"mac"`
}

// handleCreateDevice stores a new entry and loads it. A device that does not
// answer is still stored; the response carries loaded=false and a warning.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{ID: req.ID, Name: req.Name, Host: req.Host, Model: req.Model, MAC: req.MAC}
	if err := s.registry.CreateDevice(r.Context(), dev); err != nil {
		writeDomainError(w, err, "failed to create entry")
		return
	}

	s.logger.Info("entry created via API", "entry_id", dev.ID, "host", dev.Host, "by", callerFromContext(r.Context()))

	var warning string
	if _, err := s.orch.Setup(r.Context(), dev.ID); err != nil {
		s.logger.Warn("new entry not loaded", "entry_id", dev.ID, "error", err)
		warning = err.Error()
	}

	stored, err := s.registry.GetDevice(r.Context(), dev.ID)
	if err != nil {
		stored = dev
	}
	v := s.view(stored)
	v.Warning = warning
	writeJSON(w, http.StatusCreated, v)
}

// updateRequest is the body of PATCH /devices/{id}. Absent fields are kept.
type updateRequest struct {
	Name  *string `json:"name"`
	Host  *string `json:"host"`
	Model *string `json:"model"`
	MAC   *string `json:"mac"`
}

// handleUpdateDevice partially updates an entry. Changing host or model
// reloads a loaded entry so the new link takes effect.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}

	var req updateRequest
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	relink := false
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Host != nil && *req.Host != existing.Host {
		existing.Host = *req.Host
		relink = true
	}
	if req.Model != nil && *req.Model != existing.Model {
		existing.Model = *req.Model
		relink = true
	}
	if req.MAC != nil {
		existing.MAC = *req.MAC
	}

	if err := s.registry.UpdateDevice(r.Context(), existing); err != nil {
		writeDomainError(w, err, "failed to update entry")
		return
	}

	var warning string
	if _, loaded := s.orch.Get(id); loaded && relink {
		if _, err := s.orch.Reload(r.Context(), id); err != nil {
			s.logger.Warn("entry reload after update failed", "entry_id", id, "error", err)
			warning = err.Error()
		}
	}

	updated, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get updated entry")
		return
	}
	v := s.view(updated)
	v.Warning = warning
	writeJSON(w, http.StatusOK, v)
}

// handleDeleteDevice unloads and removes an entry.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}

	if err := s.orch.Teardown(r.Context(), id); err != nil && !errors.Is(err, orchestrator.ErrNotLoaded) {
		writeDomainError(w, err, "failed to unload entry")
		return
	}

	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to delete entry")
		return
	}

	s.executor.Forget(id)
	if s.health != nil {
		s.health.Remove(id)
	}

	s.logger.Info("entry deleted via API", "entry_id", id, "by", callerFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleReloadDevice tears an entry down if loaded and sets it up again.
func (s *Server) handleReloadDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}

	if _, err := s.orch.Reload(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to reload entry")
		return
	}

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, s.view(dev))
}

// statusResponse is the body of GET /devices/{id}/status.
type statusResponse struct {
	EntryID    string         `json:"entry_id"`
	Loaded     bool           `json:"loaded"`
	State      string         `json:"state,omitempty"`
	Available  bool           `json:"available"`
	LastUpdate *time.Time     `json:"last_update,omitempty"`
	Status     map[string]any `json:"status"`
}

// handleGetStatus returns the live status of a loaded entry, or the stored
// snapshot of an unloaded one.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if e, ok := s.orch.Get(id); ok {
		c := e.Coordinator
		resp := statusResponse{
			EntryID:   id,
			Loaded:    true,
			State:     c.State().String(),
			Available: c.IsAvailable(),
			Status:    c.CurrentStatus(),
		}
		if t := c.LastUpdate(); !t.IsZero() {
			resp.LastUpdate = &t
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}
	status := dev.Status
	if status == nil {
		status = map[string]any{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		EntryID:    id,
		LastUpdate: dev.StatusUpdatedAt,
		Status:     status,
	})
}

// handleGetDiagnostics returns a redacted diagnostics report.
func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}

	var src diagnostics.Source
	if e, ok := s.orch.Get(id); ok {
		src = e.Coordinator
	}
	writeJSON(w, http.StatusOK, diagnostics.Build(dev, src, s.executor.BreakerState(id), time.Now().UTC()))
}

// handleGetIssues returns the open health issues of an entry. Without a
// reporter the checks are evaluated on demand.
func (s *Server) handleGetIssues(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}

	var issues []health.Issue
	if s.health != nil {
		issues = s.health.Issues(id)
	} else {
		issues = health.Evaluate(s.healthTarget(dev), health.DefaultFilterWarningPercent)
	}
	if issues == nil {
		issues = []health.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry_id": id, "issues": issues, "count": len(issues)})
}

func (s *Server) healthTarget(dev *device.Device) health.Target {
	t := health.Target{EntryID: dev.ID, Name: dev.Name, Model: dev.Model}
	if e, ok := s.orch.Get(dev.ID); ok {
		t.Probe = e.Coordinator
	}
	return t
}

// liveEntry returns the loaded entry for id. It writes the error response
// and returns false when the entry is unknown or not loaded.
func (s *Server) liveEntry(ctx context.Context, w http.ResponseWriter, id string) (*orchestrator.Entry, bool) {
	if e, ok := s.orch.Get(id); ok {
		return e, true
	}
	if _, err := s.registry.GetDevice(ctx, id); err != nil {
		writeDomainError(w, err, "failed to get entry")
		return nil, false
	}
	writeDomainError(w, orchestrator.ErrNotLoaded, "")
	return nil, false
}

// handleListCapabilities lists the known model records.
func (s *Server) handleListCapabilities(w http.ResponseWriter, _ *http.Request) {
	names := capability.Models()
	writeJSON(w, http.StatusOK, map[string]any{"models": names, "count": len(names)})
}

// handleGetCapability returns the record used for a model string. Unknown
// models get the generic record with known=false.
func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	writeJSON(w, http.StatusOK, map[string]any{
		"known":      capability.Known(model),
		"capability": capability.Lookup(model),
	})
}

// compile-time checks that the coordinator serves the read surfaces.
var (
	_ diagnostics.Source = (*coordinator.Coordinator)(nil)
	_ health.Probe       = (*coordinator.Coordinator)(nil)
)
