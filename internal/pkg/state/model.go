// Package state holds the keyed byte storage shared by the key manager and
// the owner registry.
package state

import (
	"context"
	"errors"
)

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendValkey = "valkey"
)

var (
	ErrNotFound       = errors.New("state key not found")
	ErrUnknownBackend = errors.New("unknown state backend")
)

// Store is a flat key-value store. Get returns ErrNotFound for absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
