//go:build windows

package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// LockFile is created next to the snapshot while a build writes it.
const LockFile = "build.lock"

// Lock records the building process. Windows has no flock, so concurrent
// builds are not excluded.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock writes the lock file in dir.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, LockFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path, file: file}, nil
}

// Release removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
}
