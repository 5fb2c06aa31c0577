// Package kv provides the local key-value persistence drivers backing the
// conversation store. The store serializes its state as JSON under a small,
// fixed set of keys; drivers only need to be durable string-keyed blob maps.
package kv

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/kgchat/internal/profile"
)

// Driver is the persistence contract for the conversation store.
type Driver interface {
	// Get returns the value stored under key. The second return value is
	// false when the key has never been written.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// NewDriver creates a driver from the instance profile.
func NewDriver(p *profile.Profile) (Driver, error) {
	switch p.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(p.DSN)
	case "sqlite":
		return NewSQLite(p.DSN)
	default:
		return nil, errors.Errorf("unknown persistence driver %q", p.Driver)
	}
}
