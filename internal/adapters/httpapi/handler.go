package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	ownerIDCtxKey   ctxKey = "owner_id"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	schemaService *usecase.SchemaService
	dataService   *usecase.DataService
	auditService  *usecase.AuditService
	authService   *usecase.AuthService
}

func NewHandler(schemaService *usecase.SchemaService, dataService *usecase.DataService, auditService *usecase.AuditService, authService *usecase.AuthService) *Handler {
	return &Handler{
		schemaService: schemaService,
		dataService:   dataService,
		auditService:  auditService,
		authService:   authService,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Post("/v1/schemas", h.createSchema)
		pr.Get("/v1/schemas", h.listSchemas)
		pr.Get("/v1/schemas/{id}", h.getSchema)
		pr.Delete("/v1/schemas/{id}", h.deleteSchema)
		pr.Get("/v1/schemas/{id}/jsonschema", h.exportSchema)

		pr.Post("/v1/schemas/{id}/data", h.createData)
		pr.Post("/v1/schemas/{id}/data:validate", h.validateData)
		pr.Get("/v1/schemas/{id}/data", h.listData)
		pr.Get("/v1/data/{id}", h.getData)

		pr.Get("/v1/audit", h.listAudit)
	})

	return r
}

type schemaResponse struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Fields    []domain.FieldDefinition `json:"fields"`
	CreatedAt string                   `json:"created_at"`
}

func (h *Handler) createSchema(w http.ResponseWriter, r *http.Request) {
	candidate, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	schema, err := h.schemaService.Create(r.Context(), ownerIDFromContext(r.Context()), candidate, metadataFromRequest(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSchemaResponse(schema))
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.schemaService.List(r.Context(), ownerIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]schemaResponse, 0, len(schemas))
	for _, schema := range schemas {
		result = append(result, toSchemaResponse(schema))
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.schemaService.Get(r.Context(), ownerIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSchemaResponse(schema))
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	err := h.schemaService.Delete(r.Context(), ownerIDFromContext(r.Context()), chi.URLParam(r, "id"), metadataFromRequest(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) exportSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := h.schemaService.ExportJSONSchema(r.Context(), ownerIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			log.Printf("authenticate: %v", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), ownerIDCtxKey, apiKey.OwnerID)
		ctx = context.WithValue(ctx, apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func toSchemaResponse(schema domain.SchemaDefinition) schemaResponse {
	fields := schema.Fields
	if fields == nil {
		fields = []domain.FieldDefinition{}
	}
	return schemaResponse{
		ID:        schema.ID,
		Name:      schema.Name,
		Fields:    fields,
		CreatedAt: schema.CreatedAt.UTC().Format(timeFormat),
	}
}

// readJSONBody decodes the request body into an order-preserving Value. It
// writes the error response itself and reports false on failure.
func readJSONBody(w http.ResponseWriter, r *http.Request) (domain.Value, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return domain.Value{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return domain.Value{}, false
	}

	v, err := domain.ParseJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return domain.Value{}, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// errorBody is the JSON shape of a failed request. Code and Field are set for
// domain errors.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func newErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error(), Code: domain.ErrorCode(err)}
	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		body.Field = fieldErr.Field
	}
	return body
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidationError(err), errors.Is(err, domain.ErrInvalidKey):
		writeJSON(w, http.StatusBadRequest, newErrorBody(err))
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, newErrorBody(err))
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ownerIDFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerIDCtxKey).(string)
	return owner
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}

// metadataFromRequest builds the audit metadata of a mutating request. The
// correlation id falls back to the request id.
func metadataFromRequest(r *http.Request) domain.MutationMetadata {
	requestID := middleware.GetReqID(r.Context())
	correlationID := strings.TrimSpace(r.Header.Get("X-Correlation-ID"))
	if correlationID == "" {
		correlationID = requestID
	}
	return domain.MutationMetadata{
		Actor:          actorFromContext(r.Context()),
		Source:         "http",
		RequestID:      requestID,
		CorrelationID:  correlationID,
		CausationID:    strings.TrimSpace(r.Header.Get("X-Causation-ID")),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "dynaschema",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/schemas": map[string]any{
				"post": map[string]any{"summary": "Create schema"},
				"get":  map[string]any{"summary": "List schemas"},
			},
			"/v1/schemas/{id}": map[string]any{
				"get":    map[string]any{"summary": "Get schema"},
				"delete": map[string]any{"summary": "Delete schema"},
			},
			"/v1/schemas/{id}/jsonschema": map[string]any{
				"get": map[string]any{"summary": "Export schema as JSON Schema draft-07"},
			},
			"/v1/schemas/{id}/data": map[string]any{
				"post": map[string]any{"summary": "Create one record or a batch of records"},
				"get":  map[string]any{"summary": "List records of a schema"},
			},
			"/v1/schemas/{id}/data:validate": map[string]any{
				"post": map[string]any{"summary": "Check a payload without storing it"},
			},
			"/v1/data/{id}": map[string]any{
				"get": map[string]any{"summary": "Get record"},
			},
			"/v1/audit": map[string]any{
				"get": map[string]any{"summary": "List audit events"},
			},
		},
	}
}
