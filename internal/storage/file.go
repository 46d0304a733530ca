package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is used when no file path is configured
const DefaultFileName = "gotab.json"

// FileBackend keeps every key in one human-readable JSON file. Each value
// must itself be a JSON document; the file is an object of key to document.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates a backend writing to path. The file is created on
// the first Set; its parent directory is created if missing.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getwd: %w", err)
		}
		path = filepath.Join(wd, DefaultFileName)
	}

	return &FileBackend{path: filepath.Clean(path)}, nil
}

// Path returns the backing file path
func (f *FileBackend) Path() string {
	return f.path
}

// Get returns the document stored under key
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, false, err
	}

	value, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

// Set replaces the document stored under key and rewrites the file
func (f *FileBackend) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("file backend: value for %q is not a JSON document", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc[key] = json.RawMessage(append([]byte(nil), value...))

	return f.save(doc)
}

// Ping checks that the file is readable if it exists and that its
// directory exists.
func (f *FileBackend) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.load(); err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	return nil
}

// Close is a no-op; every Set is flushed to disk before returning
func (f *FileBackend) Close() error {
	return nil
}

func (f *FileBackend) load() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(b) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("json unmarshal %s: %w", f.path, err)
	}
	return doc, nil
}

// save writes to a temporary file in the same directory and renames it
// over the target so a crash never leaves a truncated file behind.
func (f *FileBackend) save(doc map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}
