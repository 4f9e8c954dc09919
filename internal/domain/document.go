package domain

import "time"

// TimeLayout is the fixed-width UTC layout used for every persisted
// timestamp, so that lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Document is a record owned by exactly one collection. Fields holds the
// collection payload; bookkeeping lives in the typed fields.
type Document struct {
	ID             string         `json:"id"`
	Collection     string         `json:"collection"`
	Fields         map[string]any `json:"fields"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Deleted        bool           `json:"deleted"`
	RemoteRevision string         `json:"remoteRevision,omitempty"`
}

// Clone returns a copy whose Fields map can be mutated independently.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		c.Fields[k] = v
	}
	return &c
}

// StringField returns the named payload field when it holds a string.
func (d *Document) StringField(name string) string {
	s, _ := d.Fields[name].(string)
	return s
}

// SyncIntent is one durable record of a local mutation awaiting remote
// confirmation. Seq is the insertion order used for FIFO processing.
type SyncIntent struct {
	Seq          int64      `json:"seq"`
	ID           string     `json:"id"`
	Collection   string     `json:"collection"`
	DocumentID   string     `json:"documentId"`
	Operation    Operation  `json:"operation"`
	NeedsSync    bool       `json:"needsSync"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

type StatusSnapshot struct {
	IsOnline       bool       `json:"isOnline"`
	SyncInProgress bool       `json:"syncInProgress"`
	LastSyncTime   *time.Time `json:"lastSyncTime"`
}
