// Package airtabletest serves a fake Airtable REST API over a memstore.Base.
//
// It speaks the same JSON wire format as the hosted API for the endpoints the
// client uses, so the real client can be exercised end to end:
//
//	GET    /v0/meta/bases/{base}/tables
//	POST   /v0/meta/bases/{base}/tables
//	GET    /v0/{base}/{table}            pageSize, offset
//	POST   /v0/{base}/{table}            {"records":[{"fields":{...}}]}
//	PATCH  /v0/{base}/{table}            {"records":[{"id":"...","fields":{...}}]}
//	DELETE /v0/{base}/{table}            records[]=id
package airtabletest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/publsync/internal/store"
	"github.com/JonMunkholm/publsync/internal/store/memstore"
)

const defaultPageSize = 100

// Handler holds the fake API state.
type Handler struct {
	base   *memstore.Base
	baseID string
	apiKey string
}

// NewHandler creates a handler serving base under baseID. Requests must carry
// "Authorization: Bearer <apiKey>".
func NewHandler(base *memstore.Base, baseID, apiKey string) *Handler {
	return &Handler{base: base, baseID: baseID, apiKey: apiKey}
}

// Routes mounts the API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v0", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/meta/bases/{base}/tables", h.ListTables)
		r.Post("/meta/bases/{base}/tables", h.CreateTable)

		r.Get("/{base}/{table}", h.ListRecords)
		r.Post("/{base}/{table}", h.CreateRecords)
		r.Patch("/{base}/{table}", h.UpdateRecords)
		r.Delete("/{base}/{table}", h.DeleteRecords)
	})
}

// Server is a running fake API.
type Server struct {
	*httptest.Server
	Base   *memstore.Base
	BaseID string
	APIKey string
}

// NewServer starts a fake API over a fresh memstore. Close it when done.
func NewServer(baseID, apiKey string) *Server {
	base := memstore.New()
	r := chi.NewRouter()
	NewHandler(base, baseID, apiKey).Routes(r)
	return &Server{
		Server: httptest.NewServer(r),
		Base:   base,
		BaseID: baseID,
		APIKey: apiKey,
	}
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if key == "" || key != h.apiKey {
			apiError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type recordsBody struct {
	Records []store.Record `json:"records"`
	Offset  string         `json:"offset,omitempty"`
}

type tablesBody struct {
	Tables []store.TableSchema `json:"tables"`
}

// ListTables handles GET /v0/meta/bases/{base}/tables.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	if !h.checkBase(w, r) {
		return
	}
	tables, err := h.base.Tables(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tablesBody{Tables: tables})
}

// CreateTable handles POST /v0/meta/bases/{base}/tables.
func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	if !h.checkBase(w, r) {
		return
	}
	var req store.TableSchema
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", err.Error())
		return
	}
	if req.Name == "" || len(req.Fields) == 0 {
		apiError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", "table needs a name and at least one field")
		return
	}
	for _, f := range req.Fields {
		if f.Type == store.TypeMultipleRecordLinks && f.Options["linkedTableId"] == nil {
			apiError(w, http.StatusUnprocessableEntity, "INVALID_FIELD_TYPE_OPTIONS_FOR_CREATE",
				"linkedTableId is required for "+f.Name)
			return
		}
	}
	created, err := h.base.CreateTable(r.Context(), req)
	if err != nil {
		apiError(w, http.StatusUnprocessableEntity, "DUPLICATE_TABLE_NAME", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// ListRecords handles GET /v0/{base}/{table}.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	if !h.checkBase(w, r) {
		return
	}
	name, ok := tableParam(w, r)
	if !ok {
		return
	}

	all, err := h.base.Table(name).FetchAll(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}

	pageSize := defaultPageSize
	if v := r.URL.Query().Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > defaultPageSize {
			apiError(w, http.StatusUnprocessableEntity, "INVALID_PAGE_SIZE", "pageSize must be 1-100")
			return
		}
		pageSize = n
	}

	start := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > len(all) {
			apiError(w, http.StatusUnprocessableEntity, "LIST_RECORDS_ITERATOR_NOT_AVAILABLE", "invalid offset")
			return
		}
		start = n
	}

	end := start + pageSize
	resp := recordsBody{}
	if end < len(all) {
		resp.Offset = strconv.Itoa(end)
	} else {
		end = len(all)
	}
	resp.Records = all[start:end]
	writeJSON(w, http.StatusOK, resp)
}

// CreateRecords handles POST /v0/{base}/{table}.
func (h *Handler) CreateRecords(w http.ResponseWriter, r *http.Request) {
	if !h.checkBase(w, r) {
		return
	}
	name, ok := tableParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeRecords(w, r)
	if !ok {
		return
	}

	fields := make([]store.Fields, len(req.Records))
	for i, rec := range req.Records {
		fields[i] = rec.Fields
	}
	created, err := h.base.Table(name).BatchCreate(r.Context(), fields)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsBody{Records: created})
}

// UpdateRecords handles PATCH /v0/{base}/{table}.
func (h *Handler) UpdateRecords(w http.ResponseWriter, r *http.Request) {
	if !h.checkBase(w, r) {
		return
	}
	name, ok := tableParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeRecords(w, r)
	if !ok {
		return
	}

	updated, err := h.base.Table(name).BatchUpdate(r.Context(), req.Records)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsBody{Records: updated})
}

type deletedRecord struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// DeleteRecords handles DELETE /v0/{base}/{table}?records[]=id.
func (h *Handler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	if !h.checkBase(w, r) {
		return
	}
	name, ok := tableParam(w, r)
	if !ok {
		return
	}
	ids := r.URL.Query()["records[]"]
	if len(ids) > store.MaxBatchSize {
		apiError(w, http.StatusUnprocessableEntity, "INVALID_RECORDS", "too many records")
		return
	}

	deleter, ok := h.base.Table(name).(store.Deleter)
	if !ok {
		apiError(w, http.StatusMethodNotAllowed, "NOT_SUPPORTED", "delete not supported")
		return
	}
	if err := deleter.BatchDelete(r.Context(), ids); err != nil {
		storeError(w, err)
		return
	}

	out := make([]deletedRecord, len(ids))
	for i, id := range ids {
		out[i] = deletedRecord{ID: id, Deleted: true}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) checkBase(w http.ResponseWriter, r *http.Request) bool {
	if chi.URLParam(r, "base") != h.baseID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		return false
	}
	return true
}

func tableParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "table"))
	if err != nil || name == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		return "", false
	}
	return name, true
}

func decodeRecords(w http.ResponseWriter, r *http.Request) (recordsBody, bool) {
	var req recordsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", err.Error())
		return req, false
	}
	if len(req.Records) > store.MaxBatchSize {
		apiError(w, http.StatusUnprocessableEntity, "INVALID_RECORDS", "too many records in request")
		return req, false
	}
	return req, true
}

func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidOption):
		var ioe *store.InvalidOptionError
		msg := err.Error()
		if errors.As(err, &ioe) && ioe.Message != "" {
			msg = ioe.Message
		}
		apiError(w, http.StatusUnprocessableEntity, "INVALID_MULTIPLE_CHOICE_OPTIONS", msg)
	case errors.Is(err, store.ErrBatchTooLarge):
		apiError(w, http.StatusUnprocessableEntity, "INVALID_RECORDS", err.Error())
	case strings.Contains(err.Error(), "not found"):
		apiError(w, http.StatusNotFound, "ROW_DOES_NOT_EXIST", err.Error())
	default:
		apiError(w, http.StatusInternalServerError, "SERVER_ERROR", err.Error())
	}
}

// apiError writes an error response in Airtable's error format.
func apiError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"type": errType, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
