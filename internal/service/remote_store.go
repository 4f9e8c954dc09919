package service

import (
	"context"

	"offline-sync-engine/internal/remote"
)

// RemoteStore is the part of the remote document store the sync engine
// talks to. *remote.Client satisfies it.
type RemoteStore interface {
	Pinger
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, collection string) error
	GetDocument(ctx context.Context, collection, id string) (remote.Document, error)
	PutDocument(ctx context.Context, collection string, doc remote.Document) (string, error)
	DeleteDocument(ctx context.Context, collection, id, rev string) error
	ListDocuments(ctx context.Context, collection string) ([]remote.Document, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

var _ RemoteStore = (*remote.Client)(nil)
