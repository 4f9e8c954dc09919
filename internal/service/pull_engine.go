package service

import (
	"context"
	"errors"
	"strings"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/remote"
	"offline-sync-engine/internal/repository"

	"go.uber.org/zap"
)

type PullResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// PullEngine merges remote documents into the local store. Documents
// missing remotely are never deleted locally.
type PullEngine struct {
	docs     repository.DocumentRepository
	remote   RemoteStore
	registry *domain.Registry
	schemas  *SchemaValidator
	clock    Clock
	logger   *zap.Logger
}

func NewPullEngine(
	docs repository.DocumentRepository,
	remote RemoteStore,
	registry *domain.Registry,
	schemas *SchemaValidator,
	clock Clock,
	logger *zap.Logger,
) *PullEngine {
	return &PullEngine{
		docs:     docs,
		remote:   remote,
		registry: registry,
		schemas:  schemas,
		clock:    clock,
		logger:   logger,
	}
}

// Pull walks every registered collection. Failures are isolated per
// collection and per document.
func (e *PullEngine) Pull(ctx context.Context) PullResult {
	var result PullResult
	for _, name := range e.registry.Names() {
		col, _ := e.registry.Get(name)
		e.pullCollection(ctx, col, &result)
	}
	return result
}

func (e *PullEngine) pullCollection(ctx context.Context, col *domain.Collection, result *PullResult) {
	log := e.logger.With(zap.String("collection", col.Name))

	rdocs, err := e.remote.ListDocuments(ctx, col.Name)
	if errors.Is(err, remote.ErrNotFound) {
		log.Debug("collection not present remotely")
		return
	}
	if err != nil {
		log.Error("failed to list remote documents", zap.Error(err))
		return
	}

	for _, rdoc := range rdocs {
		if strings.HasPrefix(rdoc.ID(), internalIDPrefix) {
			continue
		}
		if err := e.mergeDocument(ctx, col, rdoc, result); err != nil {
			result.Failed++
			log.Error("failed to merge remote document", zap.String("document_id", rdoc.ID()), zap.Error(err))
		}
	}
}

func (e *PullEngine) mergeDocument(ctx context.Context, col *domain.Collection, rdoc remote.Document, result *PullResult) error {
	incoming, err := fromRemote(col, rdoc, e.clock.Now())
	if err != nil {
		return err
	}
	if err := e.schemas.Validate(col, incoming.Fields); err != nil {
		return err
	}

	existing, err := e.docs.FindByID(ctx, col.Name, incoming.ID)
	if errors.Is(err, domain.ErrNotFound) {
		if err := e.docs.Insert(ctx, incoming); err != nil {
			return err
		}
		result.Inserted++
		e.logger.Debug("inserted remote document", zap.String("collection", col.Name), zap.String("document_id", incoming.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if existing.RemoteRevision == incoming.RemoteRevision {
		result.Unchanged++
		return nil
	}

	if err := e.docs.Update(ctx, incoming); err != nil {
		return err
	}
	result.Updated++
	e.logger.Debug("updated local document from remote",
		zap.String("collection", col.Name),
		zap.String("document_id", incoming.ID),
		zap.String("rev", incoming.RemoteRevision),
	)
	return nil
}
