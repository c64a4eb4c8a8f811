package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-purifier/internal/audit"
	"github.com/nerrad567/gray-logic-purifier/internal/services"
)

// handleSetControl writes one raw control value from a {"value": ...} body.
// The write is optimistic: the response carries the status with the value
// already applied.
func (s *Server) handleSetControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := chi.URLParam(r, "key")

	var raw map[string]any
	if err := decodeBody(r.Body, &raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	value, ok := raw["value"]
	if !ok || value == nil {
		writeBadRequest(w, "value is required")
		return
	}
	value = normaliseNumbers(value)

	e, ok := s.liveEntry(r.Context(), w, id)
	if !ok {
		return
	}

	if err := s.executor.SetControl(r.Context(), id, e.Coordinator, key, value); err != nil {
		s.logger.Warn("control write failed", "entry_id", id, "key", key, "error", err)
		writeDomainError(w, err, "control write failed")
		return
	}

	s.logger.Info("control written via API", "entry_id", id, "key", key, "by", callerFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id": id,
		"key":      key,
		"value":    value,
		"status":   e.Coordinator.CurrentStatus(),
	})
}

// handleCallService runs a named service with the JSON body as parameters.
// An empty body means no parameters.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	params := map[string]any{}
	if err := decodeBody(r.Body, &params); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	for k, v := range params {
		params[k] = normaliseNumbers(v)
	}

	e, ok := s.liveEntry(r.Context(), w, id)
	if !ok {
		return
	}

	res, err := s.executor.Execute(r.Context(), services.Call{
		EntryID: id,
		Service: name,
		Params:  services.Params(params),
		Model:   e.Model,
		Target:  e.Coordinator,
	})
	if err != nil {
		s.logger.Warn("service call failed", "entry_id", id, "service", name, "error", err)
		writeDomainError(w, err, "service call failed")
		return
	}

	s.logger.Info("service called via API", "entry_id", id, "service", name, "by", callerFromContext(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

// handleServiceLog lists the recorded service calls of an entry.
//
// Query parameters:
//   - service: filter by service name
//   - outcome: ok, failed or rejected
//   - limit, offset: pagination
func (s *Server) handleServiceLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to get entry")
		return
	}
	if s.serviceLog == nil {
		writeJSON(w, http.StatusOK, audit.ListResult{Records: []audit.Record{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EntryID: id,
		Service: q.Get("service"),
		Outcome: q.Get("outcome"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
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

	result, err := s.serviceLog.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list service log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeBody decodes JSON keeping numbers exact.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	return dec.Decode(v)
}

// normaliseNumbers turns json.Number into int64 when integral and float64
// otherwise, matching the types devices report.
func normaliseNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, inner := range val {
			val[k] = normaliseNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normaliseNumbers(inner)
		}
		return val
	default:
		return v
	}
}
