// Package objectstore wraps the S3-compatible storage backend behind a
// narrow interface so the pipeline and deletion machinery stay testable
// with an in-memory fake.
package objectstore

import (
	"context"
	"io"
)

// ListPage is one page of a prefix listing. A non-empty ContinuationToken
// means more keys remain.
type ListPage struct {
	Keys              []string
	ContinuationToken string
}

// ObjectStore is the contract the core needs from object storage.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	// List returns one page of keys under prefix, resuming from token
	// (empty for the first page).
	List(ctx context.Context, prefix, token string) (ListPage, error)
	DeleteBatch(ctx context.Context, keys []string) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// DeletePrefix drains every object under prefix, paging until no
// continuation token remains. Listing plus delete is idempotent, so callers
// may safely retry the whole operation from the top.
func DeletePrefix(ctx context.Context, s ObjectStore, prefix string) (int, error) {
	deleted := 0
	token := ""
	for {
		page, err := s.List(ctx, prefix, token)
		if err != nil {
			return deleted, err
		}
		if len(page.Keys) > 0 {
			if err := s.DeleteBatch(ctx, page.Keys); err != nil {
				return deleted, err
			}
			deleted += len(page.Keys)
		}
		if page.ContinuationToken == "" {
			return deleted, nil
		}
		token = page.ContinuationToken
	}
}
