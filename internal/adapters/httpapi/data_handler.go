package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/usecase"
)

type dataResponse struct {
	ID        string       `json:"id"`
	SchemaID  string       `json:"schema_id"`
	Name      string       `json:"name"`
	Data      domain.Value `json:"data"`
	CreatedAt string       `json:"created_at"`
}

// createData accepts either one {"name", "data"} object or an array of them.
// An array is stored as one batch.
func (h *Handler) createData(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	ownerID := ownerIDFromContext(r.Context())
	schemaID := chi.URLParam(r, "id")
	meta := metadataFromRequest(r)

	if items, isBatch := body.AsSequence(); isBatch {
		inputs := make([]usecase.DataInput, 0, len(items))
		for i, item := range items {
			in, err := parseDataInput(item)
			if err != nil {
				handleDomainError(w, fmt.Errorf("data[%d]: %w", i, err))
				return
			}
			inputs = append(inputs, in)
		}

		recs, err := h.dataService.CreateBatch(r.Context(), ownerID, schemaID, inputs, meta)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		result := make([]dataResponse, 0, len(recs))
		for _, rec := range recs {
			result = append(result, toDataResponse(rec))
		}
		writeJSON(w, http.StatusCreated, map[string]any{"items": result})
		return
	}

	in, err := parseDataInput(body)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	rec, err := h.dataService.Create(r.Context(), ownerID, schemaID, in, meta)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDataResponse(rec))
}

// validateData is a dry run of createData for a single object. Conformance
// failures are reported in the body with status 200.
func (h *Handler) validateData(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	in, err := parseDataInput(body)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	filled, err := h.dataService.Check(r.Context(), ownerIDFromContext(r.Context()), chi.URLParam(r, "id"), in.Payload)
	if err != nil {
		if domain.IsValidationError(err) {
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": newErrorBody(err)})
			return
		}
		handleDomainError(w, err)
		return
	}
	if filled == nil {
		filled = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "filled": filled})
}

func (h *Handler) listData(w http.ResponseWriter, r *http.Request) {
	recs, err := h.dataService.ListBySchema(r.Context(), ownerIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]dataResponse, 0, len(recs))
	for _, rec := range recs {
		result = append(result, toDataResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) getData(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dataService.Get(r.Context(), ownerIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDataResponse(rec))
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	var afterID int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		afterID = parsed
	}

	events, err := h.auditService.List(r.Context(), domain.AuditFilter{
		OwnerID:       ownerIDFromContext(r.Context()),
		AggregateType: r.URL.Query().Get("aggregate_type"),
		AggregateID:   r.URL.Query().Get("aggregate_id"),
		Action:        r.URL.Query().Get("action"),
		AfterID:       afterID,
		Limit:         limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.AuditTrailEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

// parseDataInput reads one {"name", "data"} object. A missing data member is
// passed on as null so the conformance check reports it.
func parseDataInput(v domain.Value) (usecase.DataInput, error) {
	m, ok := v.AsMap()
	if !ok {
		return usecase.DataInput{}, fmt.Errorf("%w: expected an object with a data member, got %s", domain.ErrDataRequired, v.Kind())
	}

	var in usecase.DataInput
	if raw, ok := m.Get("name"); ok && !raw.IsNull() {
		name, ok := raw.AsString()
		if !ok {
			return usecase.DataInput{}, fmt.Errorf("%w: name must be a string", domain.ErrInvalidKey)
		}
		in.Name = name
	}
	if payload, ok := m.Get("data"); ok {
		in.Payload = payload
	}
	return in, nil
}

func toDataResponse(rec domain.DataRecord) dataResponse {
	return dataResponse{
		ID:        rec.ID,
		SchemaID:  rec.SchemaID,
		Name:      rec.Name,
		Data:      rec.Payload,
		CreatedAt: rec.CreatedAt.UTC().Format(timeFormat),
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}
