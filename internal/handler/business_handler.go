package handler

import (
	"net/http"

	"offline-sync-engine/internal/service"
	"offline-sync-engine/pkg/response"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// BusinessHandler serves the business and article views that need more
// than generic CRUD.
type BusinessHandler struct {
	businesses *service.BusinessService
	articles   *service.ArticleService
	logger     *zap.Logger
}

func NewBusinessHandler(businesses *service.BusinessService, articles *service.ArticleService, logger *zap.Logger) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, articles: articles, logger: logger}
}

// Delete soft-deletes the business and all its live articles.
func (h *BusinessHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	deleted, err := h.businesses.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, "delete business", err)
		return
	}

	response.Success(w, map[string]bool{"deleted": deleted})
}

func (h *BusinessHandler) ListWithArticleCount(w http.ResponseWriter, r *http.Request) {
	list, err := h.businesses.ListWithArticleCount(r.Context())
	if err != nil {
		h.writeError(w, "list businesses", err)
		return
	}
	response.Success(w, list)
}

func (h *BusinessHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.businesses.Get(r.Context(), id); err != nil {
		h.writeError(w, "list articles", err)
		return
	}

	list, err := h.articles.ListByBusiness(r.Context(), id)
	if err != nil {
		h.writeError(w, "list articles", err)
		return
	}
	response.Success(w, list)
}

func (h *BusinessHandler) SearchArticles(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		response.BadRequest(w, "Query parameter q is required")
		return
	}

	list, err := h.articles.Search(r.Context(), term)
	if err != nil {
		h.writeError(w, "search articles", err)
		return
	}
	response.Success(w, list)
}

func (h *BusinessHandler) ListArticlesWithBusinessName(w http.ResponseWriter, r *http.Request) {
	list, err := h.articles.ListWithBusinessName(r.Context())
	if err != nil {
		h.writeError(w, "list articles", err)
		return
	}
	response.Success(w, list)
}

func (h *BusinessHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
		response.InternalError(w, "Failed to "+op)
		return
	}
	response.Error(w, status, err.Error())
}
