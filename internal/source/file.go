package source

import (
	"os"
	"path/filepath"
	"sync"
)

// File is the backing content of a Source.
type File interface {
	// Name is the canonical identity of the file.
	Name() string
	// LastModified returns the modification stamp in unix nanoseconds, or 0
	// when the file no longer exists.
	LastModified() int64
	Size() int64
	Read() ([]byte, error)
}

// LocalFile is a File on the local filesystem.
type LocalFile struct {
	path string
}

// NewLocalFile returns a File for path. The path is cleaned and made absolute
// when possible so two spellings of one file share an identity.
func NewLocalFile(path string) *LocalFile {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &LocalFile{path: filepath.Clean(path)}
}

// Name implements File.
func (f *LocalFile) Name() string { return f.path }

// LastModified implements File.
func (f *LocalFile) LastModified() int64 {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// Size implements File.
func (f *LocalFile) Size() int64 {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Read implements File.
func (f *LocalFile) Read() ([]byte, error) {
	return os.ReadFile(f.path)
}

// MemoryFile is an in-memory File. Generated sources and tests use it.
type MemoryFile struct {
	mu       sync.RWMutex
	name     string
	data     []byte
	modified int64
	deleted  bool
}

// NewMemoryFile creates an in-memory file with the given stamp.
func NewMemoryFile(name string, data []byte, modified int64) *MemoryFile {
	return &MemoryFile{name: name, data: data, modified: modified}
}

// Name implements File.
func (f *MemoryFile) Name() string { return f.name }

// LastModified implements File.
func (f *MemoryFile) LastModified() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.deleted {
		return 0
	}
	return f.modified
}

// Size implements File.
func (f *MemoryFile) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data))
}

// Read implements File.
func (f *MemoryFile) Read() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.deleted {
		return nil, os.ErrNotExist
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

// Write replaces the content and stamp.
func (f *MemoryFile) Write(data []byte, modified int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	f.modified = modified
	f.deleted = false
}

// Touch updates the stamp without changing content.
func (f *MemoryFile) Touch(modified int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modified = modified
}

// Delete marks the file as missing.
func (f *MemoryFile) Delete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = true
}
