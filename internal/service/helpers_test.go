package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/remote"
	"offline-sync-engine/internal/remote/remotetest"
	"offline-sync-engine/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeClock advances by one millisecond on every read so consecutive
// timestamps are distinct.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type harness struct {
	t          *testing.T
	srv        *remotetest.Server
	remote     *remote.Client
	docs       repository.DocumentRepository
	intents    repository.SyncIntentRepository
	registry   *domain.Registry
	schemas    *SchemaValidator
	clock      *fakeClock
	logger     *zap.Logger
	monitor    *NetworkMonitor
	push       *PushEngine
	pull       *PullEngine
	sync       *SyncService
	documents  *DocumentService
	businesses *BusinessService
	articles   *ArticleService
	syncOpts   SyncOptions
	// autoSync lets mutations start background cycles once the engine
	// has seen the remote online.
	autoSync bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := remotetest.NewServer()
	t.Cleanup(srv.Close)

	client, err := remote.New(srv.URL, remote.Options{RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		t:        t,
		srv:      srv,
		remote:   client,
		docs:     repository.NewDocumentRepository(db),
		intents:  repository.NewSyncIntentRepository(db),
		registry: domain.DefaultRegistry(),
		schemas:  NewSchemaValidator(),
		clock:    newFakeClock(),
		logger:   zaptest.NewLogger(t),
	}
	h.build(client)
	return h
}

// build wires the engine against store, which may wrap the real client.
func (h *harness) build(store RemoteStore) {
	h.monitor = NewNetworkMonitor(store, time.Second, h.logger)
	h.push = NewPushEngine(h.docs, h.intents, store, h.registry, h.clock, h.logger)
	h.pull = NewPullEngine(h.docs, store, h.registry, h.schemas, h.clock, h.logger)
	h.sync = NewSyncService(h.monitor, h.push, h.pull, h.clock, h.logger, h.syncOpts)
	var trigger SyncTrigger
	if h.autoSync {
		trigger = h.sync
	}
	h.documents = NewDocumentService(h.docs, h.intents, h.registry, h.schemas, trigger, h.clock, h.logger)
	h.businesses = NewBusinessService(h.documents, h.logger)
	h.articles = NewArticleService(h.documents)
	h.t.Cleanup(h.sync.Stop)
}

func (h *harness) pending() []*domain.SyncIntent {
	h.t.Helper()
	p, err := h.intents.Pending(context.Background())
	require.NoError(h.t, err)
	return p
}

func (h *harness) history(collection, id string) []*domain.SyncIntent {
	h.t.Helper()
	p, err := h.intents.ListByDocument(context.Background(), collection, id)
	require.NoError(h.t, err)
	return p
}

func (h *harness) local(collection, id string) *domain.Document {
	h.t.Helper()
	d, err := h.docs.FindByID(context.Background(), collection, id)
	require.NoError(h.t, err)
	return d
}

func (h *harness) createBusiness(name string) *domain.Document {
	h.t.Helper()
	d, err := h.businesses.Create(context.Background(), domain.Business{Name: name})
	require.NoError(h.t, err)
	return d
}

func (h *harness) createArticle(name, businessID string, qty, price float64) *domain.Document {
	h.t.Helper()
	d, err := h.articles.Create(context.Background(), domain.Article{
		Name:         name,
		BusinessID:   businessID,
		Qty:          &qty,
		SellingPrice: &price,
	})
	require.NoError(h.t, err)
	return d
}

// blockingStore delays Ping until release is closed.
type blockingStore struct {
	RemoteStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore(inner RemoteStore) *blockingStore {
	return &blockingStore{
		RemoteStore: inner,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (b *blockingStore) Ping(ctx context.Context) error {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.RemoteStore.Ping(ctx)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// failingIntents fails selected operations of an intent log.
type failingIntents struct {
	repository.SyncIntentRepository
	failAppend  bool
	failPending bool
}

var errInjected = errors.New("injected failure")

func (f *failingIntents) Append(ctx context.Context, collection, documentID string, op domain.Operation, at time.Time) (*domain.SyncIntent, error) {
	if f.failAppend {
		return nil, errInjected
	}
	return f.SyncIntentRepository.Append(ctx, collection, documentID, op, at)
}

func (f *failingIntents) Pending(ctx context.Context) ([]*domain.SyncIntent, error) {
	if f.failPending {
		return nil, errInjected
	}
	return f.SyncIntentRepository.Pending(ctx)
}
