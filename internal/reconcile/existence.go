package reconcile

import (
	"context"
	"fmt"
	"strings"
)

// DefaultBatchSize bounds the number of links sent to the store in one lookup.
const DefaultBatchSize = 1000

// ExistenceChecker finds the URLs a store does not hold yet.
type ExistenceChecker struct {
	store     LinkChecker
	batchSize int
}

// NewExistenceChecker wires a checker. A non-positive batchSize selects
// DefaultBatchSize.
func NewExistenceChecker(store LinkChecker, batchSize int) *ExistenceChecker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ExistenceChecker{store: store, batchSize: batchSize}
}

// FindMissing returns the URLs absent from the store, in input order and without
// duplicates. Blank entries are dropped.
func (c *ExistenceChecker) FindMissing(ctx context.Context, urls []string) ([]string, error) {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	var missing []string
	for start := 0; start < len(unique); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+c.batchSize, len(unique))
		batch := unique[start:end]
		present, err := c.store.ExistsByLink(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("check links %d-%d: %w", start, end, err)
		}
		for _, u := range batch {
			if _, ok := present[u]; !ok {
				missing = append(missing, u)
			}
		}
	}
	return missing, nil
}
