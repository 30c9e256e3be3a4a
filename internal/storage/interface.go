package storage

import (
	"context"
	"time"
)

// Metadata describes an archived price sheet.
type Metadata struct {
	Region       string    `json:"region,omitempty"`
	OriginalName string    `json:"originalName,omitempty"`
	ImportedAt   time.Time `json:"importedAt,omitempty"`
	Shops        int       `json:"shops,omitempty"`
	Listings     int       `json:"listings,omitempty"`
	RowErrors    int       `json:"rowErrors,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
}

// Storage archives imported price sheets so a bad import can be audited and
// replayed. Implementations can be local filesystem, S3, GCS, etc.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks if a file exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)
}
