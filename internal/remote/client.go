// Package remote is the client side of the remote CouchDB-compatible
// document store.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("remote: not found")
	ErrConflict = errors.New("remote: revision conflict")
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPageSize       = 500
)

// Document is the remote wire representation: _id, _rev, type and payload
// fields side by side.
type Document map[string]any

func (d Document) ID() string {
	s, _ := d["_id"].(string)
	return s
}

func (d Document) Rev() string {
	s, _ := d["_rev"].(string)
	return s
}

type Options struct {
	// RequestTimeout bounds every call that does not carry its own deadline.
	RequestTimeout time.Duration
	// PageSize is the number of rows fetched per _all_docs request.
	PageSize int
	Logger   *zap.Logger
}

type Client struct {
	client         *kivik.Client
	requestTimeout time.Duration
	pageSize       int
	logger         *zap.Logger
}

// New connects to the store at rawURL. Credentials in the URL authority are
// sent as HTTP basic auth.
func New(rawURL string, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote url: unsupported scheme %q", u.Scheme)
	}

	var kivikOpts []kivik.Option
	if u.User != nil {
		password, _ := u.User.Password()
		kivikOpts = append(kivikOpts, couchdb.BasicAuth(u.User.Username(), password))
		u.User = nil
	}

	client, err := kivik.New("couch", u.String(), kivikOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		client:         client,
		requestTimeout: opts.RequestTimeout,
		pageSize:       opts.PageSize,
		logger:         opts.Logger,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Ping performs GET / and fails on any transport error or non-2xx status.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if _, err := c.client.Version(ctx); err != nil {
		return fmt.Errorf("remote ping: %w", err)
	}
	return nil
}

func (c *Client) CollectionExists(ctx context.Context, collection string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	exists, err := c.client.DBExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", collection, classify(err))
	}
	return exists, nil
}

// CreateCollection creates the remote database. A concurrent creator
// winning the race (412) counts as success.
func (c *Client) CreateCollection(ctx context.Context, collection string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	err := c.client.CreateDB(ctx, collection)
	if err == nil {
		c.logger.Info("created remote collection", zap.String("collection", collection))
		return nil
	}
	if kivik.HTTPStatus(err) == http.StatusPreconditionFailed {
		c.logger.Debug("remote collection already exists", zap.String("collection", collection))
		return nil
	}
	return fmt.Errorf("create collection %s: %w", collection, classify(err))
}

func (c *Client) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	var doc Document
	if err := c.client.DB(collection).Get(ctx, id).ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, classify(err))
	}
	return doc, nil
}

// PutDocument upserts doc and returns the new revision. A stale or missing
// _rev against an existing document yields ErrConflict.
func (c *Client) PutDocument(ctx context.Context, collection string, doc Document) (string, error) {
	id := doc.ID()
	if id == "" {
		return "", fmt.Errorf("put %s: document has no _id", collection)
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	rev, err := c.client.DB(collection).Put(ctx, id, doc)
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", collection, id, classify(err))
	}
	return rev, nil
}

func (c *Client) DeleteDocument(ctx context.Context, collection, id, rev string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if _, err := c.client.DB(collection).Delete(ctx, id, rev); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, classify(err))
	}
	return nil
}

// ListDocuments pages through _all_docs with documents embedded. Each page
// gets its own request timeout. A missing collection yields ErrNotFound.
func (c *Client) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	db := c.client.DB(collection)
	var docs []Document
	for skip := 0; ; {
		pageCtx, cancel := c.bound(ctx)
		rows := db.AllDocs(pageCtx, kivik.Params(map[string]any{
			"include_docs": true,
			"limit":        c.pageSize,
			"skip":         skip,
		}))

		n := 0
		for rows.Next() {
			n++
			var doc Document
			if err := rows.ScanDoc(&doc); err != nil {
				id, _ := rows.ID()
				c.logger.Warn("skipping unreadable remote row",
					zap.String("collection", collection),
					zap.String("id", id),
					zap.Error(err),
				)
				continue
			}
			docs = append(docs, doc)
		}
		err := rows.Err()
		rows.Close()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, classify(err))
		}

		if n < c.pageSize {
			return docs, nil
		}
		skip += n
	}
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func classify(err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
