package handler

import (
	"context"
	"errors"
	"net/http"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/service"
	"offline-sync-engine/pkg/response"

	"go.uber.org/zap"
)

// SyncController is the slice of the sync orchestrator the API drives.
type SyncController interface {
	Status() domain.StatusSnapshot
	ManualSync(ctx context.Context) (service.CycleResult, error)
	TriggerAsync()
}

type SyncHandler struct {
	sync      SyncController
	documents *service.DocumentService
	logger    *zap.Logger
}

func NewSyncHandler(sync SyncController, documents *service.DocumentService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, documents: documents, logger: logger}
}

// Health answers 200 whenever the process serves requests; remote
// reachability is reported, not required.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.sync.Status()
	response.Success(w, map[string]any{
		"status":  "healthy",
		"service": "syncd",
		"online":  status.IsOnline,
	})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.sync.Status())
}

// Manual runs one cycle and returns its result. With ?async=true the cycle
// is only queued.
func (h *SyncHandler) Manual(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		h.sync.TriggerAsync()
		response.Accepted(w, "sync triggered")
		return
	}

	result, err := h.sync.ManualSync(r.Context())
	if errors.Is(err, domain.ErrSyncInProgress) {
		response.Conflict(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("manual sync failed", zap.Error(err))
		response.InternalError(w, "Sync failed")
		return
	}

	response.Success(w, result)
}

// Intents lists the pending queue, or the full history of one document
// when collection and document_id are given.
func (h *SyncHandler) Intents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	collection, documentID := q.Get("collection"), q.Get("document_id")

	var (
		intents []*domain.SyncIntent
		err     error
	)
	switch {
	case documentID == "" && collection == "":
		intents, err = h.documents.PendingIntents(r.Context())
	case documentID == "" || collection == "":
		response.BadRequest(w, "collection and document_id must be given together")
		return
	default:
		intents, err = h.documents.Intents(r.Context(), collection, documentID)
	}

	if err != nil {
		if status := statusFor(err); status < http.StatusInternalServerError {
			response.Error(w, status, err.Error())
			return
		}
		h.logger.Error("list intents failed", zap.Error(err))
		response.InternalError(w, "Failed to list intents")
		return
	}

	if intents == nil {
		intents = []*domain.SyncIntent{}
	}
	response.Success(w, intents)
}
