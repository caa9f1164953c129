// Package snapshot persists disconnected-session snapshots so a session can
// be resumed after the in-memory disconnected cache has lost it, including
// across process restarts.
//
// A snapshot is opaque bytes (see session.EncodeSnapshot) with an expiry.
// Backends: MemoryStore, SQLStore (any database/sql driver; SQLite via
// modernc.org/sqlite) and S3Store.
package snapshot

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when operations are attempted on a closed store.
var ErrClosed = errors.New("snapshot: store is closed")

// Store persists snapshots. Implementations must be safe for concurrent use.
type Store interface {
	// Save persists data under sessionID, overwriting any previous snapshot.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load returns (nil, nil) if the snapshot doesn't exist or has expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a snapshot. Missing snapshots are not an error.
	Delete(ctx context.Context, sessionID string) error

	// SaveAll persists many snapshots, atomically where the backend can.
	SaveAll(ctx context.Context, snapshots map[string]Data) error

	// Close releases resources held by the store.
	Close() error
}

// Data is one snapshot with its expiry.
type Data struct {
	Data      []byte
	ExpiresAt time.Time
}
