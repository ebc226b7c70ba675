// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"cryptopost_bot/internal/model"
)

// Storage is the interface for all persistence operations. It is an audit
// record and restart warm-start for the deduplicator, never the atomic
// claim path itself.
type Storage interface {
	SavePublication(ctx context.Context, rec model.PublicationRecord) error
	ListPublishedSince(ctx context.Context, cutoff time.Time) ([]model.PublicationRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
