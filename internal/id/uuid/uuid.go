// Package uuid generates identifiers for runs and requests.
package uuid

import (
	"github.com/google/uuid"
)

// NewRunID returns a time-ordered UUIDv7 so run ids sort by start time. It
// falls back to a random v4 id if the v7 clock sequence cannot be read.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
