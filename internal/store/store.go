package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/labsession/pkg/session"
)

var ErrClosed = errors.New("store: closed")

// Store is the durable key-value storage a client session is persisted to.
// Concrete drivers (sqlite, memory) implement this.
type Store interface {
	session.KeyValueStore

	// Keys lists stored keys in lexical order.
	Keys(ctx context.Context) ([]string, error)

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing storage is still reachable.
	Ping(ctx context.Context) error
}
