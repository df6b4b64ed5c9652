// Package filestore persists records as one JSON file per record under a
// directory. It backs the default (no database) storage mode.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrInvalidID = errors.New("invalid record id")
)

// Collection is a directory of JSON records of type T.
// It is safe for concurrent use within one process.
type Collection[T any] struct {
	dir string
	mu  sync.RWMutex
}

// Open creates dir if needed and returns a collection over it.
func Open[T any](dir string) (*Collection[T], error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &Collection[T]{dir: dir}, nil
}

// Dir returns the directory backing the collection.
func (c *Collection[T]) Dir() string {
	return c.dir
}

// Put writes v under id, replacing any existing record. The write goes to
// a temp file first and is renamed into place.
func (c *Collection[T]) Put(id string, v *T) error {
	path, err := c.path(id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(c.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return os.Rename(tmp.Name(), path)
}

// Get reads the record stored under id.
func (c *Collection[T]) Get(id string) (*T, error) {
	path, err := c.path(id)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return readRecord[T](path)
}

// Exists reports whether a record is stored under id.
func (c *Collection[T]) Exists(id string) bool {
	path, err := c.path(id)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err = os.Stat(path)
	return err == nil
}

// List reads every record in the collection. Unreadable files are skipped
// and reported in the returned error alongside the records that loaded.
func (c *Collection[T]) List() ([]*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.dir, err)
	}

	var (
		out  []*T
		errs []error
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := readRecord[T](filepath.Join(c.dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}

// Delete removes the record stored under id.
func (c *Collection[T]) Delete(id string) error {
	path, err := c.path(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (c *Collection[T]) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(c.dir, id+".json"), nil
}

func readRecord[T any](path string) (*T, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a validated id inside the collection dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &v, nil
}
