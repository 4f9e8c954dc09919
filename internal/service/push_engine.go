package service

import (
	"context"
	"errors"
	"fmt"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/remote"
	"offline-sync-engine/internal/repository"

	"go.uber.org/zap"
)

type PushResult struct {
	Synced    int `json:"synced"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

type pushOutcome int

const (
	outcomeSynced pushOutcome = iota
	outcomeSkipped
	outcomeConflict
	outcomeFailed
)

// PushEngine drains the sync intent log against the remote store. Each
// intent is processed on its own; a failure never stops the rest.
type PushEngine struct {
	docs     repository.DocumentRepository
	intents  repository.SyncIntentRepository
	remote   RemoteStore
	registry *domain.Registry
	clock    Clock
	logger   *zap.Logger
}

func NewPushEngine(
	docs repository.DocumentRepository,
	intents repository.SyncIntentRepository,
	remote RemoteStore,
	registry *domain.Registry,
	clock Clock,
	logger *zap.Logger,
) *PushEngine {
	return &PushEngine{
		docs:     docs,
		intents:  intents,
		remote:   remote,
		registry: registry,
		clock:    clock,
		logger:   logger,
	}
}

// Push processes every pending intent in FIFO order. The error is non-nil
// only when the pending list itself cannot be read.
func (e *PushEngine) Push(ctx context.Context) (PushResult, error) {
	var result PushResult

	pending, err := e.intents.Pending(ctx)
	if err != nil {
		return result, fmt.Errorf("load pending intents: %w", err)
	}

	e.logger.Info("pushing pending intents", zap.Int("count", len(pending)))

	ensured := make(map[string]bool)
	for _, intent := range pending {
		switch e.pushIntent(ctx, intent, ensured) {
		case outcomeSynced:
			result.Synced++
		case outcomeSkipped:
			result.Skipped++
		case outcomeConflict:
			result.Conflicts++
		case outcomeFailed:
			result.Failed++
		}
	}

	return result, nil
}

func (e *PushEngine) pushIntent(ctx context.Context, intent *domain.SyncIntent, ensured map[string]bool) pushOutcome {
	log := e.logger.With(
		zap.String("intent_id", intent.ID),
		zap.String("collection", intent.Collection),
		zap.String("document_id", intent.DocumentID),
		zap.String("operation", string(intent.Operation)),
	)

	col, err := e.registry.Get(intent.Collection)
	if err != nil {
		log.Error("intent references unknown collection", zap.Error(err))
		return outcomeFailed
	}

	var doc *domain.Document
	if intent.Operation != domain.OperationDelete {
		doc, err = e.docs.FindByID(ctx, intent.Collection, intent.DocumentID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("inconsistent intent: local document missing, skipping")
			return outcomeSkipped
		}
		if err != nil {
			log.Error("failed to load local document", zap.Error(err))
			return outcomeFailed
		}
	}

	if !ensured[col.Name] {
		if err := e.ensureCollection(ctx, col.Name); err != nil {
			log.Error("cannot sync: remote collection unavailable", zap.Error(err))
			return outcomeFailed
		}
		ensured[col.Name] = true
	}

	switch intent.Operation {
	case domain.OperationCreate, domain.OperationUpdate:
		outcome := e.pushDocument(ctx, col, doc, log)
		if outcome != outcomeSynced {
			return outcome
		}
	case domain.OperationDelete:
		if err := e.deleteRemote(ctx, col.Name, intent.DocumentID); err != nil {
			log.Error("failed to delete remote document", zap.Error(err))
			return outcomeFailed
		}
	default:
		log.Error("intent has unknown operation")
		return outcomeFailed
	}

	if err := e.intents.MarkSynced(ctx, intent.ID, e.clock.Now()); err != nil {
		// The remote write landed; the next cycle repeats it idempotently.
		log.Error("failed to mark intent synced", zap.Error(err))
		return outcomeFailed
	}

	log.Debug("intent synced")
	return outcomeSynced
}

func (e *PushEngine) pushDocument(ctx context.Context, col *domain.Collection, doc *domain.Document, log *zap.Logger) pushOutcome {
	rev, err := e.remote.PutDocument(ctx, col.Name, toRemote(col, doc))
	if errors.Is(err, remote.ErrConflict) {
		log.Warn("remote revision conflict, leaving intent pending",
			zap.String("local_rev", doc.RemoteRevision),
		)
		return outcomeConflict
	}
	if err != nil {
		log.Error("failed to push document", zap.Error(err))
		return outcomeFailed
	}

	if err := e.docs.SetRemoteRevision(ctx, col.Name, doc.ID, rev); err != nil {
		log.Error("failed to record remote revision", zap.String("rev", rev), zap.Error(err))
		return outcomeFailed
	}

	return outcomeSynced
}

// deleteRemote removes the remote copy. A document already absent counts
// as deleted.
func (e *PushEngine) deleteRemote(ctx context.Context, collection, id string) error {
	current, err := e.remote.GetDocument(ctx, collection, id)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = e.remote.DeleteDocument(ctx, collection, id, current.Rev())
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	return err
}

func (e *PushEngine) ensureCollection(ctx context.Context, collection string) error {
	exists, err := e.remote.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return e.remote.CreateCollection(ctx, collection)
}
