// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package store provides the key to blob storage behind the token and
// artifact caches. Keys are slash-separated relative paths such as
// "Cache/ash-ptc.json"; the file backend maps them onto the filesystem
// unchanged.
package store

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/settings"
)

// ErrNotFound is returned by Get when no blob exists for a key.
var ErrNotFound = errors.New("blob not found")

// Store is a generic key to blob store. Implementations must be safe for
// concurrent use, and Put must never expose a partially written blob.
type Store interface {
	// Get returns the blob for key, or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or replaces the blob for key.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes the blob for key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	// List returns the keys directly under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
}

// Open returns the store selected by cfg and a function that releases it.
func Open(ctx context.Context, cfg settings.StorageSettings) (Store, func(), error) {
	switch cfg.Backend {
	case settings.BackendFile, "":
		root := cfg.Root
		if root == "" {
			root = settings.DefaultStorageRoot
		}
		return NewFileStore(root), func() {}, nil
	case settings.BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, oops.Code("STORE_BACKEND_UNKNOWN").
			With("backend", cfg.Backend).
			Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ValidateKey rejects keys that are empty, absolute, or escape the store
// root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return oops.Code("STORE_INVALID_KEY").With("key", key).Errorf("invalid blob key %q", key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return oops.Code("STORE_INVALID_KEY").With("key", key).Errorf("invalid blob key %q", key)
	}
	return nil
}
