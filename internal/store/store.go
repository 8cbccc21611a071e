// ABOUTME: Durable key-value storage interface for client-side engine state
// ABOUTME: Backs removed-conversation sets, active chat handles and cross-tab sentinels

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when operating on a store after Close
var ErrClosed = errors.New("store closed")

// Storage is the minimal get/set/delete capability the engine depends on.
// Both KV backends and per-tab views satisfy it.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// KV is a durable key-value store shared by every tab of one user agent.
type KV interface {
	Storage

	// List returns every key/value pair whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string]string, error)

	// Close releases any resources held by the store
	Close() error
}
