// Package storage provides the persistent scoped key-value store backing the
// owner's history map and scene placement data. Values are opaque bytes;
// callers handle their own serialization.
package storage

import "errors"

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("storage: store closed")

// Store is a persistent key-value store. Set must be durable before it
// returns: callers rely on that to suppress dependent push notifications
// when persistence fails.
type Store interface {
	// Get returns the stored value, or ok=false if the key was never set.
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
}
