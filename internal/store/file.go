// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/oops"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
	// tempInfix marks in-flight writes; List skips them.
	tempInfix = ".tmp-"
)

// FileStore stores each blob as a file below root.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at root. Directories are created on
// first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the directory the store writes below.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Get reads the blob for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 -- key validated above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, oops.With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("key", key).Wrap(err)
	}
	return data, nil
}

// Put writes data to a temporary file next to the target and renames it
// into place, so readers see either the old or the new blob.
func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return oops.Code("STORE_MKDIR_FAILED").With("key", key).With("dir", dir).Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+tempInfix+"*")
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return oops.Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return oops.Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oops.Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return oops.Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return oops.Code("STORE_RENAME_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Delete removes the blob for key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("STORE_DELETE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// List returns the keys of the regular files directly under dir.
func (s *FileStore) List(_ context.Context, dir string) ([]string, error) {
	if err := ValidateKey(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").With("dir", dir).Wrap(err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.Contains(e.Name(), tempInfix) {
			continue
		}
		keys = append(keys, path.Join(dir, e.Name()))
	}
	slices.Sort(keys)
	return keys, nil
}
