package pipeline

import (
	"context"
	"fmt"

	"github.com/docvault/docvault/internal/objectstore"
)

// Guard checks for already-generated derivatives before expensive work runs
// again. Queue redelivery makes every stage re-enterable; the guard is what
// turns a redelivered message into a cheap skip.
type Guard struct {
	store objectstore.ObjectStore
}

func NewGuard(store objectstore.ObjectStore) *Guard {
	return &Guard{store: store}
}

// ExistsAllResult reports which of a stage's expected outputs are present.
type ExistsAllResult struct {
	AllExist     bool
	ExistingKeys []string
}

// Exists reports whether a single output key is present.
func (g *Guard) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := g.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("idempotency check %s: %w", key, err)
	}
	return ok, nil
}

// ExistsAll checks every expected output key. Partial existence means the
// caller regenerates only the missing outputs.
func (g *Guard) ExistsAll(ctx context.Context, keys []string) (ExistsAllResult, error) {
	result := ExistsAllResult{AllExist: len(keys) > 0}
	for _, key := range keys {
		ok, err := g.Exists(ctx, key)
		if err != nil {
			return ExistsAllResult{}, err
		}
		if ok {
			result.ExistingKeys = append(result.ExistingKeys, key)
		} else {
			result.AllExist = false
		}
	}
	return result, nil
}

// MissingKeys returns the subset of keys not yet present.
func (g *Guard) MissingKeys(ctx context.Context, keys []string) ([]string, error) {
	result, err := g.ExistsAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(result.ExistingKeys))
	for _, k := range result.ExistingKeys {
		existing[k] = true
	}
	var missing []string
	for _, k := range keys {
		if !existing[k] {
			missing = append(missing, k)
		}
	}
	return missing, nil
}
