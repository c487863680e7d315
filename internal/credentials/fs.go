package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	Path string

	mu     sync.Mutex
	logger *zerolog.Logger
}

func NewFileStore(path string, logger *zerolog.Logger) *FileStore {
	return &FileStore{Path: path, logger: logger}
}

func (f *FileStore) Read(ctx context.Context) (Pair, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.load()
	if err != nil {
		f.logReadError(err)
		return Pair{}, false
	}
	return r.pair()
}

func (f *FileStore) Write(ctx context.Context, p Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(newRecord(p))
}

func (f *FileStore) Update(ctx context.Context, fn func(Pair) Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.load()
	switch {
	case errors.Is(err, errCorruptRecord):
		f.logReadError(err)
		r = record{}
	case err != nil:
		return err
	}
	cur, _ := r.pair()
	return f.save(newRecord(fn(cur)))
}

func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

func (f *FileStore) Expiry(ctx context.Context) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.load()
	if err != nil {
		f.logReadError(err)
		return time.Time{}, false
	}
	return r.expiry()
}

// load returns the zero record when the file does not exist.
func (f *FileStore) load() (record, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return record{}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return decodeRecord(b)
}

// save writes through a temp file and rename so readers never observe a
// partially written pair.
func (f *FileStore) save(r record) error {
	if err := EnsureParentDir(f.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".auth-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credentials file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

func (f *FileStore) logReadError(err error) {
	if f.logger != nil {
		f.logger.Warn().Err(err).Str("path", f.Path).Msg("Ignoring unreadable credentials file")
	}
}
