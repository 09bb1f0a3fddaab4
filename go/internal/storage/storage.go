// Package storage persists small client-side records outside any single
// process, the way a browser keeps local storage across page loads and tabs.
//
// Values are JSON documents. Stores provide plain get/set semantics with no
// compare-and-swap: concurrent writers race and the last write wins.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage: closed")
	// ErrInvalidValue is returned when a backend requires JSON and gets something else.
	ErrInvalidValue = errors.New("storage: value is not a JSON document")
)

type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Watch calls onChange after writes to key, including writes made by other
	// processes sharing the backend. It blocks until ctx is done.
	Watch(ctx context.Context, key string, onChange func()) error
	Close() error
}

type namespaced struct {
	Store
	prefix string
}

// WithNamespace scopes every key of s under ns, so several profiles can share
// one backend.
func WithNamespace(s Store, ns string) Store {
	if ns == "" {
		return s
	}
	return &namespaced{Store: s, prefix: ns + "."}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.Store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.Store.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.Store.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Watch(ctx context.Context, key string, onChange func()) error {
	return n.Store.Watch(ctx, n.prefix+key, onChange)
}
