// Package uuid provides run ID generation.
package uuid

import (
	"github.com/google/uuid"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

var _ reconcile.IDGenerator = Generator{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUIDv7 string, or a UUIDv4 string if the v7 clock source fails.
func (Generator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
