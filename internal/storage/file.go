package storage

import (
	"context"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileBackend is a filesystem-rooted Backend implementation. Keys are
// mapped to files under root using a base32 encoding of the key so that
// keys containing "/" (e.g. "vault/NAME.json") never collide with the
// directory structure on disk.
type FileBackend struct {
	root string
}

// NewFileBackend constructs a FileBackend rooted at dir, creating it if
// absent.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create backend root: %w", err)
	}
	return &FileBackend{root: dir}, nil
}

func (f *FileBackend) pathFor(key string) string {
	name := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(key))
	return filepath.Join(f.root, name)
}

func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	path := f.pathFor(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: commit %s: %w", key, err)
	}
	return nil
}

func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

func (f *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (f *FileBackend) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list backend root: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(e.Name())
		if err != nil {
			continue
		}
		key := string(decoded)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// WatchChanges starts an fsnotify watcher on the backend root and returns a
// channel of keys that changed on disk (created, written, or removed
// outside this process). Used by the schedule store to detect
// externally-edited schedule files (SPEC_FULL.md §11). The returned
// function stops the watcher and closes the channel.
func (f *FileBackend) WatchChanges() (<-chan string, func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("storage: create watcher: %w", err)
	}
	if err := watcher.Add(f.root); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("storage: watch backend root: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if strings.HasSuffix(name, ".tmp") {
					continue
				}
				decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(name)
				if err != nil {
					continue
				}
				select {
				case out <- string(decoded):
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, watcher.Close, nil
}
