package sessions

import (
	"context"
	"time"
)

// RecordInfo describes a stored session record.
type RecordInfo struct {
	Name    string
	ModTime time.Time
}

// Backend stores one opaque record per session name.
type Backend interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the stored records, most recently modified first.
	List(ctx context.Context) ([]RecordInfo, error)
	Close() error
}
