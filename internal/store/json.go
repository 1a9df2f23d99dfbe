package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// jsonBackend keeps all entries in one JSON array file.
type jsonBackend struct {
	path string
}

// NewJSON returns a Store over the JSON array file at path. The file is created on first save.
func NewJSON(path string) *Store {
	return newStore(&jsonBackend{path: path})
}

func (b *jsonBackend) name() string { return "json" }
func (b *jsonBackend) close() error { return nil }

func (b *jsonBackend) load(context.Context) ([]Entry, error) {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", b.path, err)
	}
	return entries, nil
}

func (b *jsonBackend) save(_ context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	pending, err := renameio.NewPendingFile(b.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}
