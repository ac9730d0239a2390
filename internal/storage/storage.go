// Package storage holds the durable blob backends a day's dataset is written to.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("blob not found")

// BlobStore reads and writes whole objects by key.
// Put must be atomic: readers see either the previous object or the new one.
// ⭐ SSOT: durable storage interface
type BlobStore interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
