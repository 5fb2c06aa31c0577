package kv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// File persists all keys in a single JSON file, rewritten wholesale on every
// mutation. The state is a few kilobytes; simplicity wins over incremental
// writes.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file driver requires a path")
	}
	f := &File{
		path:   path,
		values: map[string]json.RawMessage{},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read state file %s", path)
		}
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.values); err != nil {
		// A corrupt state file is not fatal; the store falls back to its
		// seed data and the next mutation rewrites the file.
		f.values = map[string]json.RawMessage{}
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, true, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make(json.RawMessage, len(value))
	copy(copied, value)
	f.values[key] = copied
	return f.flushLocked()
}

// flushLocked writes through a temp file and renames it so a crash mid-write
// never truncates the previous state.
func (f *File) flushLocked() error {
	raw, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kgchat-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp state file")
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close state file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "failed to replace state file")
}

func (*File) Close() error {
	return nil
}
