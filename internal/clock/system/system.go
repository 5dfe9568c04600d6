// Package system provides a real clock implementation.
package system

import (
	"time"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// Clock implements reconcile.Clock using time.Now.
type Clock struct{}

var _ reconcile.Clock = Clock{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
