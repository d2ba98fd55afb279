package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/usecase"
)

const (
	testAPIKey   = "test-api-key"
	otherAPIKey  = "other-api-key"
	personSchema = `{"name":"Person","fields":[
		{"name":"Name","type":"string","options":{"required":true}},
		{"name":"Age","type":"number","options":{"min":0,"max":120}},
		{"name":"Address","type":"object","options":{"required":true},"subfields":[{"name":"Street","type":"string"}]}
	]}`
)

type memSchemaStore struct {
	mu       sync.Mutex
	schemas  map[string]domain.SchemaDefinition
	deleteFn func(ctx context.Context, id, ownerID string) error
}

func newMemSchemaStore() *memSchemaStore {
	return &memSchemaStore{schemas: make(map[string]domain.SchemaDefinition)}
}

func (s *memSchemaStore) Create(_ context.Context, schema domain.SchemaDefinition, _ domain.MutationMetadata) (domain.SchemaDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[schema.ID] = schema
	return schema, nil
}

func (s *memSchemaStore) FindByID(_ context.Context, id string) (domain.SchemaDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema, ok := s.schemas[id]
	if !ok {
		return domain.SchemaDefinition{}, domain.SchemaNotFound(id)
	}
	return schema, nil
}

func (s *memSchemaStore) FindAllByOwner(_ context.Context, ownerID string) ([]domain.SchemaDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SchemaDefinition
	for _, schema := range s.schemas {
		if schema.OwnerID == ownerID {
			out = append(out, schema)
		}
	}
	return out, nil
}

func (s *memSchemaStore) Delete(ctx context.Context, id, ownerID string, _ domain.MutationMetadata) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id, ownerID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schemas, id)
	return nil
}

type memDataStore struct {
	mu       sync.Mutex
	records  []domain.DataRecord
	lastMeta domain.MutationMetadata
}

func (s *memDataStore) Create(ctx context.Context, rec domain.DataRecord, meta domain.MutationMetadata) (domain.DataRecord, error) {
	out, err := s.CreateMany(ctx, []domain.DataRecord{rec}, meta)
	if err != nil {
		return domain.DataRecord{}, err
	}
	return out[0], nil
}

func (s *memDataStore) CreateMany(_ context.Context, recs []domain.DataRecord, meta domain.MutationMetadata) ([]domain.DataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	s.lastMeta = meta
	return recs, nil
}

func (s *memDataStore) FindByID(_ context.Context, id, ownerID string) (domain.DataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id && rec.OwnerID == ownerID {
			return rec, nil
		}
	}
	return domain.DataRecord{}, domain.DataRecordNotFound(id)
}

func (s *memDataStore) FindAllBySchema(_ context.Context, schemaID, ownerID string) ([]domain.DataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DataRecord
	for _, rec := range s.records {
		if rec.SchemaID == schemaID && rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type stubAPIKeyRepo struct {
	findErr error
}

func (s *stubAPIKeyRepo) FindByTokenHash(_ context.Context, tokenHash string) (domain.APIKey, error) {
	if s.findErr != nil {
		return domain.APIKey{}, s.findErr
	}
	switch tokenHash {
	case usecase.HashToken(testAPIKey):
		return domain.APIKey{TokenHash: tokenHash, OwnerID: "owner-a", Name: "test-client", Active: true, CreatedAt: time.Now().UTC()}, nil
	case usecase.HashToken(otherAPIKey):
		return domain.APIKey{TokenHash: tokenHash, OwnerID: "owner-b", Name: "other-client", Active: true, CreatedAt: time.Now().UTC()}, nil
	}
	return domain.APIKey{}, domain.ErrNotFound
}
func (s *stubAPIKeyRepo) Upsert(context.Context, domain.APIKey) error { return nil }
func (s *stubAPIKeyRepo) Deactivate(context.Context, string) error    { return nil }

type stubAuditTrailRepo struct {
	listFn func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error)
}

func (s *stubAuditTrailRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

type testEnv struct {
	handler http.Handler
	schemas *memSchemaStore
	data    *memDataStore
	audit   *stubAuditTrailRepo
	keys    *stubAPIKeyRepo
}

func newTestEnv() *testEnv {
	env := &testEnv{
		schemas: newMemSchemaStore(),
		data:    &memDataStore{},
		audit:   &stubAuditTrailRepo{},
		keys:    &stubAPIKeyRepo{},
	}
	schemaSvc := usecase.NewSchemaService(env.schemas)
	env.handler = NewHandler(
		schemaSvc,
		usecase.NewDataService(schemaSvc, env.data),
		usecase.NewAuditService(env.audit),
		usecase.NewAuthService(env.keys),
	).Router()
	return env
}

func (e *testEnv) do(method, path, body, key string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSchema(t *testing.T) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/schemas", personSchema, testAPIKey)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create schema: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var out schemaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	return out.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestOpenAPIListsRoutes(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/openapi.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	for _, path := range []string{"/v1/schemas", "/v1/schemas/{id}/data", "/v1/schemas/{id}/data:validate", "/v1/audit"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("expected path %s in openapi document", path)
		}
	}
}

func TestProtectedRouteWithoutAuth(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/v1/schemas", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = env.do(http.MethodGet, "/v1/schemas", "", "wrong-key")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", rec.Code)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest(http.MethodGet, "/v1/schemas", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAuthRepositoryFailureIs500(t *testing.T) {
	env := newTestEnv()
	env.keys.findErr = errors.New("db down")
	rec := env.do(http.MethodGet, "/v1/schemas", "", testAPIKey)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCreateAndGetSchema(t *testing.T) {
	env := newTestEnv()
	id := env.createSchema(t)

	rec := env.do(http.MethodGet, "/v1/schemas/"+id, "", testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var got struct {
		Name   string `json:"name"`
		Fields []struct {
			Name    string         `json:"name"`
			Type    string         `json:"type"`
			Options map[string]any `json:"options"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Person" || len(got.Fields) != 3 {
		t.Fatalf("unexpected schema %+v", got)
	}
	if got.Fields[1].Name != "Age" || got.Fields[1].Options["max"] != float64(120) {
		t.Fatalf("unexpected age field %+v", got.Fields[1])
	}

	rec = env.do(http.MethodGet, "/v1/schemas", "", testAPIKey)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), id) {
		t.Fatalf("expected schema in listing, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateSchemaValidationErrors(t *testing.T) {
	env := newTestEnv()
	cases := []struct {
		name  string
		body  string
		code  string
		field string
	}{
		{"null", `null`, "schema_data_required", ""},
		{"missing name", `{"fields":[{"name":"a","type":"string"}]}`, "schema_name_invalid", ""},
		{"missing fields", `{"name":"X"}`, "schema_fields_invalid", ""},
		{"empty fields", `{"name":"X","fields":[]}`, "schema_fields_empty", ""},
		{"bad type", `{"name":"X","fields":[{"name":"Age","type":"integer"}]}`, "invalid_field_type", "Age"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/v1/schemas", tc.body, testAPIKey)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != tc.code || body.Field != tc.field {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func TestCreateSchemaRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv()
	for _, body := range []string{`{"name":`, `{"name":"X"} {}`} {
		rec := env.do(http.MethodPost, "/v1/schemas", body, testAPIKey)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCreateSchemaBodyTooLarge(t *testing.T) {
	env := newTestEnv()
	body := `{"name":"` + strings.Repeat("x", maxJSONBodySize) + `"}`
	rec := env.do(http.MethodPost, "/v1/schemas", body, testAPIKey)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestSchemaOwnerScoping(t *testing.T) {
	env := newTestEnv()
	id := env.createSchema(t)

	rec := env.do(http.MethodGet, "/v1/schemas/"+id, "", otherAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other owner, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "schema_not_found" {
		t.Fatalf("unexpected error body %+v", body)
	}

	rec = env.do(http.MethodGet, "/v1/schemas/not-a-uuid", "", testAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", rec.Code)
	}
}

func TestDeleteSchema(t *testing.T) {
	env := newTestEnv()
	id := env.createSchema(t)

	rec := env.do(http.MethodDelete, "/v1/schemas/"+id, "", otherAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other owner, got %d", rec.Code)
	}

	rec = env.do(http.MethodDelete, "/v1/schemas/"+id, "", testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec = env.do(http.MethodGet, "/v1/schemas/"+id, "", testAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestDeleteSchemaStoreFailureIs500(t *testing.T) {
	env := newTestEnv()
	id := env.createSchema(t)
	env.schemas.deleteFn = func(context.Context, string, string) error {
		return errors.New("disk full")
	}

	rec := env.do(http.MethodDelete, "/v1/schemas/"+id, "", testAPIKey)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestExportJSONSchema(t *testing.T) {
	env := newTestEnv()
	id := env.createSchema(t)

	rec := env.do(http.MethodGet, "/v1/schemas/"+id+"/jsonschema", "", testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["$schema"] != "http://json-schema.org/draft-07/schema#" || doc["title"] != "Person" {
		t.Fatalf("unexpected export %v", doc)
	}
	if !strings.HasPrefix(rec.Body.String(), `{"$schema"`) {
		t.Fatalf("expected $schema first, got %s", rec.Body.String())
	}
}

func TestRequestIDFlowsIntoMetadata(t *testing.T) {
	env := newTestEnv()
	id := env.createSchema(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/schemas/"+id+"/data", strings.NewReader(`{"data":{"Name":"Ada"}}`))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-Request-Id", "req-42")
	req.Header.Set("Idempotency-Key", "idem-1")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	meta := env.data.lastMeta
	if meta.RequestID != "req-42" || meta.CorrelationID != "req-42" {
		t.Fatalf("unexpected request ids %+v", meta)
	}
	if meta.Actor != "test-client" || meta.Source != "http" || meta.IdempotencyKey != "idem-1" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}
