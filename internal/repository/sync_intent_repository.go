package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"offline-sync-engine/internal/domain"

	"github.com/google/uuid"
)

// SyncIntentRepository is the append-only log of pending local mutations.
// Intents are never deleted; MarkSynced is the only way to clear needs_sync.
type SyncIntentRepository interface {
	Append(ctx context.Context, collection, documentID string, op domain.Operation, at time.Time) (*domain.SyncIntent, error)
	Pending(ctx context.Context) ([]*domain.SyncIntent, error)
	MarkSynced(ctx context.Context, intentID string, at time.Time) error
	ListByDocument(ctx context.Context, collection, documentID string) ([]*domain.SyncIntent, error)
}

type syncIntentRepository struct {
	db *sql.DB
}

func NewSyncIntentRepository(db *sql.DB) SyncIntentRepository {
	return &syncIntentRepository{db: db}
}

func (r *syncIntentRepository) Append(ctx context.Context, collection, documentID string, op domain.Operation, at time.Time) (*domain.SyncIntent, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, op)
	}

	intent := &domain.SyncIntent{
		ID:         uuid.New().String(),
		Collection: collection,
		DocumentID: documentID,
		Operation:  op,
		NeedsSync:  true,
		CreatedAt:  at.UTC(),
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_intents (id, collection, document_id, operation, needs_sync, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`, intent.ID, collection, documentID, string(op), formatTime(intent.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to append sync intent: %w", err)
	}

	if intent.Seq, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read sync intent sequence: %w", err)
	}

	return intent, nil
}

// Pending returns every intent still awaiting remote confirmation, oldest
// first.
func (r *syncIntentRepository) Pending(ctx context.Context) ([]*domain.SyncIntent, error) {
	return r.list(ctx, `
		SELECT seq, id, collection, document_id, operation, needs_sync, created_at, last_synced_at
		FROM sync_intents
		WHERE needs_sync = 1
		ORDER BY seq
	`)
}

func (r *syncIntentRepository) MarkSynced(ctx context.Context, intentID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_intents SET needs_sync = 0, last_synced_at = ? WHERE id = ?
	`, formatTime(at), intentID)
	if err != nil {
		return fmt.Errorf("failed to mark intent synced: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark intent synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sync intent %s: %w", intentID, domain.ErrNotFound)
	}

	return nil
}

func (r *syncIntentRepository) ListByDocument(ctx context.Context, collection, documentID string) ([]*domain.SyncIntent, error) {
	return r.list(ctx, `
		SELECT seq, id, collection, document_id, operation, needs_sync, created_at, last_synced_at
		FROM sync_intents
		WHERE collection = ? AND document_id = ?
		ORDER BY seq
	`, collection, documentID)
}

func (r *syncIntentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.SyncIntent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync intents: %w", err)
	}
	defer rows.Close()

	var intents []*domain.SyncIntent
	for rows.Next() {
		var (
			intent    domain.SyncIntent
			op        string
			createdAt string
			syncedAt  sql.NullString
		)
		if err := rows.Scan(&intent.Seq, &intent.ID, &intent.Collection, &intent.DocumentID, &op, &intent.NeedsSync, &createdAt, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync intent: %w", err)
		}

		intent.Operation = domain.Operation(op)
		if intent.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if syncedAt.Valid {
			t, err := parseTime(syncedAt.String)
			if err != nil {
				return nil, err
			}
			intent.LastSyncedAt = &t
		}

		intents = append(intents, &intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sync intents: %w", err)
	}

	return intents, nil
}
