// Package atomicfile provides crash-safe whole-file read/write with
// per-path locking, used by the wallet ledgers, the copies store, and the farm
// history file. The remotes registry and the config file are written directly
// with os.WriteFile, not through this package.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// locks guards a per-path mutex table, the same "one mutex protects a map of
// finer-grained state" shape the storage layer uses for its single database
// handle, scaled down here to per-file granularity.
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.RWMutex{}
)

func lockFor(path string) *sync.RWMutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	l, ok := locks[abs]
	if !ok {
		l = &sync.RWMutex{}
		locks[abs] = l
	}
	return l
}

// Read returns the whole contents of path under its read lock. Readers never
// observe a partially-written file because Replace only ever exposes a file
// via a single atomic rename.
func Read(path string) ([]byte, error) {
	l := lockFor(path)
	l.RLock()
	defer l.RUnlock()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("atomicfile: read %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether path exists, without taking the content lock.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Replace atomically overwrites path with data: write to a uniquely-named
// temp file in the same directory, fsync, then rename over the destination.
// Readers see either the previous or the new full body, never a partial one.
func Replace(path string, data []byte, perm os.FileMode) error {
	l := lockFor(path)
	l.Lock()
	defer l.Unlock()
	return replaceLocked(path, data, perm)
}

func replaceLocked(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.New().String()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: rename into place: %w", err)
	}
	return nil
}

// CreateNew atomically creates path with data, failing if it already exists.
// Used by operations like wallet Init that must never silently overwrite.
func CreateNew(path string, data []byte, perm os.FileMode) error {
	l := lockFor(path)
	l.Lock()
	defer l.Unlock()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("atomicfile: %s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("atomicfile: stat %s: %w", path, err)
	}
	return replaceLocked(path, data, perm)
}

// Append appends a single line (with a trailing newline, added if missing)
// to path, creating it if necessary. Used for the append-only farm history
// file, where each line is a self-contained record.
func Append(path string, line string, perm os.FileMode) error {
	l := lockFor(path)
	l.Lock()
	defer l.Unlock()

	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: open %s for append: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("atomicfile: append to %s: %w", path, err)
	}
	return f.Sync()
}
