package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/service"
	"offline-sync-engine/pkg/response"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DocumentHandler exposes generic CRUD over any registered collection.
type DocumentHandler struct {
	service *service.DocumentService
	logger  *zap.Logger
}

func NewDocumentHandler(service *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, logger: logger}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	doc, err := h.service.CreateDocument(r.Context(), collection, data)
	if err != nil {
		h.writeError(w, "create document", err)
		return
	}

	response.Created(w, doc)
}

// List returns live documents. Every query parameter is an exact match
// filter on a string payload field.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	var where map[string]string
	if q := r.URL.Query(); len(q) > 0 {
		where = make(map[string]string, len(q))
		for k := range q {
			where[k] = q.Get(k)
		}
	}

	docs, err := h.service.ListDocuments(r.Context(), collection, where)
	if err != nil {
		h.writeError(w, "list documents", err)
		return
	}

	response.Success(w, docs)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := h.service.GetDocument(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		h.writeError(w, "get document", err)
		return
	}

	response.Success(w, doc)
}

func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	doc, err := h.service.UpdateDocument(r.Context(), vars["collection"], vars["id"], patch)
	if err != nil {
		h.writeError(w, "update document", err)
		return
	}

	response.Success(w, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	deleted, err := h.service.DeleteDocument(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		h.writeError(w, "delete document", err)
		return
	}

	response.Success(w, map[string]bool{"deleted": deleted})
}

func (h *DocumentHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
		response.InternalError(w, "Failed to "+op)
		return
	}
	response.Error(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownCollection), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrDocumentDeleted),
		errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
