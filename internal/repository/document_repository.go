package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"offline-sync-engine/internal/domain"

	"github.com/mattn/go-sqlite3"
)

// DocumentQuery filters a collection listing. Where matches string payload
// fields by equality.
type DocumentQuery struct {
	IncludeDeleted bool
	Where          map[string]string
}

type DocumentRepository interface {
	Insert(ctx context.Context, doc *domain.Document) error
	FindByID(ctx context.Context, collection, id string) (*domain.Document, error)
	Find(ctx context.Context, collection string, q DocumentQuery) ([]*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	UpdateFields(ctx context.Context, doc *domain.Document) error
	SetRemoteRevision(ctx context.Context, collection, id, rev string) error
	SoftDelete(ctx context.Context, collection, id string, at time.Time) (*domain.Document, error)
}

type documentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Insert(ctx context.Context, doc *domain.Document) error {
	fields, err := marshalFields(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, fields, created_at, updated_at, deleted, remote_revision)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		doc.Collection,
		doc.ID,
		fields,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
		doc.Deleted,
		doc.RemoteRevision,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("document %s/%s: %w", doc.Collection, doc.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func (r *documentRepository) FindByID(ctx context.Context, collection, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT collection, id, fields, created_at, updated_at, deleted, remote_revision
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	return doc, nil
}

// Find lists a collection newest first.
func (r *documentRepository) Find(ctx context.Context, collection string, q DocumentQuery) ([]*domain.Document, error) {
	query := `
		SELECT collection, id, fields, created_at, updated_at, deleted, remote_revision
		FROM documents
		WHERE collection = ?`
	if !q.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		if matches(doc, q.Where) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return docs, nil
}

// Update replaces the payload and bookkeeping of an existing document.
// updated_at never moves backwards.
func (r *documentRepository) Update(ctx context.Context, doc *domain.Document) error {
	fields, err := marshalFields(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	updatedAt := formatTime(doc.UpdatedAt)
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET fields = ?,
		    updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at END,
		    deleted = ?,
		    remote_revision = ?
		WHERE collection = ? AND id = ?
	`,
		fields,
		updatedAt, updatedAt,
		doc.Deleted,
		doc.RemoteRevision,
		doc.Collection,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	return requireAffected(res, doc.Collection, doc.ID)
}

// UpdateFields writes a local edit: payload and updated_at only. The remote
// revision and tombstone flag belong to the sync engine and are left as
// stored, so an edit racing a push cannot roll the revision back.
func (r *documentRepository) UpdateFields(ctx context.Context, doc *domain.Document) error {
	fields, err := marshalFields(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	updatedAt := formatTime(doc.UpdatedAt)
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET fields = ?,
		    updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at END
		WHERE collection = ? AND id = ?
	`,
		fields,
		updatedAt, updatedAt,
		doc.Collection,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	return requireAffected(res, doc.Collection, doc.ID)
}

// SetRemoteRevision records the remote _rev without touching updated_at.
func (r *documentRepository) SetRemoteRevision(ctx context.Context, collection, id, rev string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET remote_revision = ? WHERE collection = ? AND id = ?
	`, rev, collection, id)
	if err != nil {
		return fmt.Errorf("failed to set remote revision: %w", err)
	}

	return requireAffected(res, collection, id)
}

func (r *documentRepository) SoftDelete(ctx context.Context, collection, id string, at time.Time) (*domain.Document, error) {
	ts := formatTime(at)
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET deleted = 1,
		    updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at END
		WHERE collection = ? AND id = ?
	`, ts, ts, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}

	if err := requireAffected(res, collection, id); err != nil {
		return nil, err
	}

	return r.FindByID(ctx, collection, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		fields    string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&doc.Collection, &doc.ID, &fields, &createdAt, &updatedAt, &doc.Deleted, &doc.RemoteRevision); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &doc.Fields); err != nil {
		return nil, fmt.Errorf("invalid stored fields for %s: %w", doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}

	var err error
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &doc, nil
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(b), nil
}

func matches(doc *domain.Document, where map[string]string) bool {
	for k, want := range where {
		if got, ok := doc.Fields[k].(string); !ok || got != want {
			return false
		}
	}
	return true
}

func requireAffected(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return nil
}
