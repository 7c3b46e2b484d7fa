package app

import (
	"time"

	"github.com/google/uuid"
)

// Operation tracks one CLI invocation for the local journal. It is created
// in memory when the app starts and written out once on Close, carrying
// the final status.
type Operation struct {
	ID        string
	Operation string
	Actor     string
	Target    string
	Status    string // "success" or "error"
	ErrorKind string
	StartedAt time.Time
}

// NewOperation creates a new in-memory operation record.
func NewOperation(operation, actor string) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		Operation: operation,
		Actor:     actor,
		Status:    "success",
		StartedAt: time.Now().UTC(),
	}
}
