// Package storage provides the durable key-value backends that outlive a
// process, the equivalent of browser-persistent storage.
package storage

import (
	"context"
	"errors"
)

var ErrUnknownDriver = errors.New("storage: unknown driver")

// KV is a string-valued durable store scoped to one application namespace.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Clear removes every key of the namespace.
	Clear(ctx context.Context) error
}
