package records

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record id has no row.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyID is returned for operations on an empty record id.
	ErrEmptyID = errors.New("record id cannot be empty")
)

// Store is the record store collaborator. Nothing else in the system touches
// persistence.
type Store interface {
	// GetOrCreate returns the record, creating an empty active one when absent.
	GetOrCreate(ctx context.Context, id string) (ClientRecord, error)

	// Update applies patch as one atomic mutation and returns the new record.
	Update(ctx context.Context, id string, patch Patch) (ClientRecord, error)

	// ListActive returns every active record.
	ListActive(ctx context.Context) ([]ClientRecord, error)

	// RecordReminder writes the marker for key if absent. It reports whether this
	// call wrote it; false means another writer got there first.
	RecordReminder(ctx context.Context, id string, key ReminderKey, at time.Time) (bool, error)
}

// Importer is implemented by stores that accept whole records from operators.
type Importer interface {
	Upsert(ctx context.Context, record ClientRecord) error
}
