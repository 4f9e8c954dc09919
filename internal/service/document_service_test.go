package service

import (
	"context"
	"testing"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrigger struct {
	online    bool
	triggered int
}

func (f *fakeTrigger) IsOnline() bool { return f.online }
func (f *fakeTrigger) TriggerAsync()  { f.triggered++ }

func newDocumentServiceWithTrigger(h *harness, trigger SyncTrigger) *DocumentService {
	return NewDocumentService(h.docs, h.intents, h.registry, h.schemas, trigger, h.clock, h.logger)
}

func TestDocumentService_OfflineMutationsQueueOneIntentEach(t *testing.T) {
	h := newHarness(t)
	h.srv.SetAvailable(false)
	ctx := context.Background()

	doc, err := h.documents.CreateDocument(ctx, "businesses", map[string]any{"name": "Offline Co"})
	require.NoError(t, err)
	assert.Len(t, h.pending(), 1)

	_, err = h.documents.UpdateDocument(ctx, "businesses", doc.ID, map[string]any{"name": "Offline Co 2"})
	require.NoError(t, err)
	assert.Len(t, h.pending(), 2)

	ok, err := h.documents.DeleteDocument(ctx, "businesses", doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	history := h.history("businesses", doc.ID)
	require.Len(t, history, 3)
	ops := []domain.Operation{history[0].Operation, history[1].Operation, history[2].Operation}
	assert.Equal(t, []domain.Operation{domain.OperationCreate, domain.OperationUpdate, domain.OperationDelete}, ops)
	for _, intent := range history {
		assert.True(t, intent.NeedsSync)
		assert.Nil(t, intent.LastSyncedAt)
	}
}

func TestDocumentService_CreateUsesSuppliedID(t *testing.T) {
	h := newHarness(t)

	doc, err := h.documents.CreateDocument(context.Background(), "businesses", map[string]any{
		"id":   "biz-42",
		"name": "Named",
	})
	require.NoError(t, err)
	assert.Equal(t, "biz-42", doc.ID)
	assert.NotContains(t, doc.Fields, "id")
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)
}

func TestDocumentService_CreateRejectsUnderscoreID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, id := range []string{"_design/x", "_local", "_"} {
		_, err := h.documents.CreateDocument(ctx, "businesses", map[string]any{"id": id, "name": "Reserved"})
		assert.ErrorIs(t, err, domain.ErrValidation, id)
	}
	assert.Empty(t, h.pending())

	doc, err := h.documents.CreateDocument(ctx, "businesses", map[string]any{"id": "biz_1", "name": "Inner"})
	require.NoError(t, err)
	assert.Equal(t, "biz_1", doc.ID)
}

func TestDocumentService_CreateDuplicateID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.documents.CreateDocument(ctx, "businesses", map[string]any{"id": "dup", "name": "One"})
	require.NoError(t, err)

	_, err = h.documents.CreateDocument(ctx, "businesses", map[string]any{"id": "dup", "name": "Two"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Len(t, h.pending(), 1)
}

func TestDocumentService_ReservedKeysStripped(t *testing.T) {
	h := newHarness(t)

	doc, err := h.documents.CreateDocument(context.Background(), "businesses", map[string]any{
		"name":           "Clean",
		"_rev":           "9-forged",
		"remoteRevision": "9-forged",
		"deleted":        true,
		"type":           "article",
		"note":           "kept",
	})
	require.NoError(t, err)

	stored := h.local("businesses", doc.ID)
	assert.Equal(t, map[string]any{"name": "Clean", "note": "kept"}, stored.Fields)
	assert.Empty(t, stored.RemoteRevision)
	assert.False(t, stored.Deleted)
}

func TestDocumentService_ValidationRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.documents.CreateDocument(ctx, "businesses", map[string]any{"name": ""})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.documents.CreateDocument(ctx, "articles", map[string]any{
		"name":          "Negative",
		"qty":           -1,
		"selling_price": 1,
		"business_id":   "b1",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, h.pending(), "rejected mutations must not queue intents")
}

func TestDocumentService_UnknownCollection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.documents.CreateDocument(ctx, "invoices", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownCollection)

	_, err = h.documents.ListDocuments(ctx, "invoices", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownCollection)
}

func TestDocumentService_UpdateMergesPatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.createArticle("Milk", "b1", 4, 1.5)

	updated, err := h.documents.UpdateDocument(ctx, "articles", a.ID, map[string]any{"qty": 7.0})
	require.NoError(t, err)
	assert.Equal(t, "Milk", updated.StringField(domain.FieldName))
	assert.Equal(t, 7.0, updated.Fields[domain.FieldQty])
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))
	assert.Equal(t, a.CreatedAt, updated.CreatedAt)

	_, err = h.documents.UpdateDocument(ctx, "articles", a.ID, map[string]any{"qty": -3})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 7.0, h.local("articles", a.ID).Fields[domain.FieldQty])
}

func TestDocumentService_UpdateMissingOrDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.documents.UpdateDocument(ctx, "businesses", "nope", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	biz := h.createBusiness("Gone")
	_, err = h.documents.DeleteDocument(ctx, "businesses", biz.ID)
	require.NoError(t, err)

	_, err = h.documents.UpdateDocument(ctx, "businesses", biz.ID, map[string]any{"name": "Back"})
	assert.ErrorIs(t, err, domain.ErrDocumentDeleted)
}

func TestDocumentService_DeleteMissing(t *testing.T) {
	h := newHarness(t)

	ok, err := h.documents.DeleteDocument(context.Background(), "businesses", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, ok)
	assert.Empty(t, h.pending())
}

func TestDocumentService_IntentAppendFailurePropagates(t *testing.T) {
	h := newHarness(t)
	h.intents = &failingIntents{SyncIntentRepository: h.intents, failAppend: true}
	h.build(h.remote)

	_, err := h.documents.CreateDocument(context.Background(), "businesses", map[string]any{"name": "Lost?"})
	require.ErrorIs(t, err, errInjected)
	assert.Contains(t, err.Error(), "record sync intent")
}

func TestDocumentService_TriggersOnlyWhenOnline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trigger := &fakeTrigger{}
	svc := newDocumentServiceWithTrigger(h, trigger)

	doc, err := svc.CreateDocument(ctx, "businesses", map[string]any{"name": "Quiet"})
	require.NoError(t, err)
	assert.Zero(t, trigger.triggered)

	trigger.online = true
	_, err = svc.UpdateDocument(ctx, "businesses", doc.ID, map[string]any{"name": "Loud"})
	require.NoError(t, err)
	_, err = svc.DeleteDocument(ctx, "businesses", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, trigger.triggered)
}

func TestDocumentService_ListFiltersAndOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.createArticle("First", "b1", 1, 1)
	second := h.createArticle("Second", "b2", 1, 1)
	third := h.createArticle("Third", "b1", 1, 1)
	_, err := h.documents.DeleteDocument(ctx, "articles", second.ID)
	require.NoError(t, err)

	all, err := h.documents.ListDocuments(ctx, "articles", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, third.ID, all[0].ID, "newest first")

	b1, err := h.documents.ListDocuments(ctx, "articles", map[string]string{domain.FieldBusinessID: "b1"})
	require.NoError(t, err)
	assert.Len(t, b1, 2)

	b2, err := h.documents.ListDocuments(ctx, "articles", map[string]string{domain.FieldBusinessID: "b2"})
	require.NoError(t, err)
	assert.Empty(t, b2)

	got, err := h.documents.GetDocument(ctx, "articles", second.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}

// pushOnFind runs hook once, right after the next successful FindByID of
// the target document.
type pushOnFind struct {
	repository.DocumentRepository
	target string
	hook   func()
}

func (p *pushOnFind) FindByID(ctx context.Context, collection, id string) (*domain.Document, error) {
	doc, err := p.DocumentRepository.FindByID(ctx, collection, id)
	if err == nil && id == p.target && p.hook != nil {
		hook := p.hook
		p.hook = nil
		hook()
	}
	return doc, err
}

func TestDocumentService_EditDuringPushKeepsRevision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc := h.createBusiness("v0")
	_, err := h.sync.ManualSync(ctx)
	require.NoError(t, err)

	_, err = h.documents.UpdateDocument(ctx, "businesses", doc.ID, map[string]any{"name": "v1"})
	require.NoError(t, err)

	// The second edit reads the row, then a push of the first edit lands
	// and bumps the remote revision before the edit is written back.
	wrapped := &pushOnFind{DocumentRepository: h.docs, target: doc.ID}
	h.docs = wrapped
	h.build(h.remote)
	wrapped.hook = func() {
		report, err := h.push.Push(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Synced)
	}

	edited, err := h.documents.UpdateDocument(ctx, "businesses", doc.ID, map[string]any{"name": "v2"})
	require.NoError(t, err)
	assert.Nil(t, wrapped.hook)

	remoteDoc, err := h.remote.GetDocument(ctx, "businesses", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, remoteDoc.Rev(), h.local("businesses", doc.ID).RemoteRevision)
	assert.Equal(t, remoteDoc.Rev(), edited.RemoteRevision)

	result, err := h.sync.ManualSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Push.Synced)
	assert.Zero(t, result.Push.Failed)
	assert.Empty(t, h.pending())

	remoteDoc, err = h.remote.GetDocument(ctx, "businesses", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", remoteDoc["name"])
	assert.Equal(t, "v2", h.local("businesses", doc.ID).Fields["name"])
	assert.Equal(t, remoteDoc.Rev(), h.local("businesses", doc.ID).RemoteRevision)
}
