package service

import (
	"context"
	"fmt"
	"strings"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncTrigger is how the document API asks for a sync after a mutation.
type SyncTrigger interface {
	IsOnline() bool
	TriggerAsync()
}

// DocumentService is the CRUD surface used by the outer layer. Every
// mutation completes locally and records a sync intent before returning;
// the sync itself is started in the background.
type DocumentService struct {
	docs     repository.DocumentRepository
	intents  repository.SyncIntentRepository
	registry *domain.Registry
	schemas  *SchemaValidator
	trigger  SyncTrigger
	clock    Clock
	logger   *zap.Logger
}

func NewDocumentService(
	docs repository.DocumentRepository,
	intents repository.SyncIntentRepository,
	registry *domain.Registry,
	schemas *SchemaValidator,
	trigger SyncTrigger,
	clock Clock,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		docs:     docs,
		intents:  intents,
		registry: registry,
		schemas:  schemas,
		trigger:  trigger,
		clock:    clock,
		logger:   logger,
	}
}

// CreateDocument stores a new document. A string "id" in data is used as
// the document id; otherwise one is generated. Ids starting with "_" are
// rejected.
func (s *DocumentService) CreateDocument(ctx context.Context, collection string, data map[string]any) (*domain.Document, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}

	id, _ := data["id"].(string)
	switch {
	case id == "":
		id = uuid.New().String()
	case strings.HasPrefix(id, "_"):
		// The remote reserves leading-underscore ids for design and
		// system documents.
		return nil, fmt.Errorf("%w: %s: id %q must not start with an underscore", domain.ErrValidation, col.Name, id)
	}

	fields := payload(data)
	if err := s.schemas.Validate(col, fields); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	doc := &domain.Document{
		ID:         id,
		Collection: col.Name,
		Fields:     fields,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.docs.Insert(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("document created locally", zap.String("collection", col.Name), zap.String("document_id", id))

	if err := s.recordIntent(ctx, col.Name, id, domain.OperationCreate); err != nil {
		return nil, err
	}

	return doc, nil
}

// UpdateDocument merges patch into the stored payload.
func (s *DocumentService) UpdateDocument(ctx context.Context, collection, id string, patch map[string]any) (*domain.Document, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.FindByID(ctx, col.Name, id)
	if err != nil {
		return nil, err
	}
	if doc.Deleted {
		return nil, fmt.Errorf("update %s/%s: %w", col.Name, id, domain.ErrDocumentDeleted)
	}

	for k, v := range payload(patch) {
		doc.Fields[k] = v
	}
	if err := s.schemas.Validate(col, doc.Fields); err != nil {
		return nil, err
	}

	if now := s.clock.Now(); now.After(doc.UpdatedAt) {
		doc.UpdatedAt = now
	}
	if err := s.docs.UpdateFields(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("document updated locally", zap.String("collection", col.Name), zap.String("document_id", id))

	if err := s.recordIntent(ctx, col.Name, id, domain.OperationUpdate); err != nil {
		return nil, err
	}

	// Re-read so the caller sees the revision a concurrent push may have
	// recorded.
	if stored, err := s.docs.FindByID(ctx, col.Name, id); err == nil {
		doc = stored
	}
	return doc, nil
}

// DeleteDocument soft-deletes the document.
func (s *DocumentService) DeleteDocument(ctx context.Context, collection, id string) (bool, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return false, err
	}

	if _, err := s.docs.SoftDelete(ctx, col.Name, id, s.clock.Now()); err != nil {
		return false, err
	}
	s.logger.Info("document soft deleted locally", zap.String("collection", col.Name), zap.String("document_id", id))

	if err := s.recordIntent(ctx, col.Name, id, domain.OperationDelete); err != nil {
		return false, err
	}

	return true, nil
}

// GetDocument returns the document including tombstones.
func (s *DocumentService) GetDocument(ctx context.Context, collection, id string) (*domain.Document, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return s.docs.FindByID(ctx, col.Name, id)
}

// ListDocuments returns non-deleted documents, newest first.
func (s *DocumentService) ListDocuments(ctx context.Context, collection string, where map[string]string) ([]*domain.Document, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return s.docs.Find(ctx, col.Name, repository.DocumentQuery{Where: where})
}

// Intents returns the full intent history of one document.
func (s *DocumentService) Intents(ctx context.Context, collection, id string) ([]*domain.SyncIntent, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return s.intents.ListByDocument(ctx, col.Name, id)
}

// PendingIntents returns every intent still awaiting a remote write, in
// push order.
func (s *DocumentService) PendingIntents(ctx context.Context) ([]*domain.SyncIntent, error) {
	return s.intents.Pending(ctx)
}

// recordIntent appends a sync intent and fires a background sync when
// online. A failed append is returned to the caller: a lost intent would
// never be pushed.
func (s *DocumentService) recordIntent(ctx context.Context, collection, id string, op domain.Operation) error {
	if _, err := s.intents.Append(ctx, collection, id, op, s.clock.Now()); err != nil {
		s.logger.Error("failed to record sync intent",
			zap.String("collection", collection),
			zap.String("document_id", id),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return fmt.Errorf("record sync intent: %w", err)
	}

	if s.trigger != nil && s.trigger.IsOnline() {
		s.trigger.TriggerAsync()
	}
	return nil
}

// payload strips reserved bookkeeping keys from caller data.
func payload(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if isReservedField(k) {
			continue
		}
		out[k] = v
	}
	return out
}
