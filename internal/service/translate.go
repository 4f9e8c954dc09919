package service

import (
	"fmt"
	"strings"
	"time"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/remote"
)

const (
	remoteFieldID        = "_id"
	remoteFieldRev       = "_rev"
	remoteFieldType      = "type"
	remoteFieldCreatedAt = "createdAt"
	remoteFieldUpdatedAt = "updatedAt"
	remoteFieldDeleted   = "deleted"

	// Remote ids with this prefix are administrative records (design docs).
	internalIDPrefix = "_"
)

// reservedFields may not appear in a document payload.
var reservedFields = map[string]bool{
	"id":                 true,
	"collection":         true,
	"remoteRevision":     true,
	remoteFieldType:      true,
	remoteFieldCreatedAt: true,
	remoteFieldUpdatedAt: true,
	remoteFieldDeleted:   true,
}

func isReservedField(name string) bool {
	return reservedFields[name] || strings.HasPrefix(name, "_")
}

// toRemote renames id to _id, attaches the last known _rev and the type
// discriminator, and drops local bookkeeping.
func toRemote(col *domain.Collection, doc *domain.Document) remote.Document {
	out := make(remote.Document, len(doc.Fields)+6)
	for k, v := range doc.Fields {
		if isReservedField(k) {
			continue
		}
		out[k] = v
	}
	out[remoteFieldID] = doc.ID
	if doc.RemoteRevision != "" {
		out[remoteFieldRev] = doc.RemoteRevision
	}
	out[remoteFieldType] = col.Type
	out[remoteFieldCreatedAt] = doc.CreatedAt.UTC().Format(time.RFC3339Nano)
	out[remoteFieldUpdatedAt] = doc.UpdatedAt.UTC().Format(time.RFC3339Nano)
	out[remoteFieldDeleted] = doc.Deleted
	return out
}

// fromRemote maps _id to id and _rev to RemoteRevision and strips the type
// discriminator. Missing timestamps fall back to now.
func fromRemote(col *domain.Collection, rdoc remote.Document, now time.Time) (*domain.Document, error) {
	id := rdoc.ID()
	if id == "" {
		return nil, fmt.Errorf("remote document in %s has no _id", col.Name)
	}

	doc := &domain.Document{
		ID:             id,
		Collection:     col.Name,
		Fields:         make(map[string]any, len(rdoc)),
		RemoteRevision: rdoc.Rev(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for k, v := range rdoc {
		switch k {
		case remoteFieldCreatedAt:
			if t, ok := parseRemoteTime(v); ok {
				doc.CreatedAt = t
			}
		case remoteFieldUpdatedAt:
			if t, ok := parseRemoteTime(v); ok {
				doc.UpdatedAt = t
			}
		case remoteFieldDeleted:
			doc.Deleted, _ = v.(bool)
		default:
			if isReservedField(k) {
				continue
			}
			doc.Fields[k] = v
		}
	}

	return doc, nil
}

func parseRemoteTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
