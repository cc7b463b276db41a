//go:build !windows

package build

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"csb/internal/errors"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, LockFile))
	if err != nil {
		t.Fatalf("Expected lock file: %v", err)
	}
	if pid, err := strconv.Atoi(string(content)); err != nil || pid != os.Getpid() {
		t.Errorf("Expected PID %d in lock file, got %q", os.Getpid(), content)
	}

	lock.Release()
	if _, err := os.Stat(filepath.Join(dir, LockFile)); !os.IsNotExist(err) {
		t.Error("Expected lock file to be removed")
	}
	lock.Release()
}

func TestAcquireLockHeld(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("Expected second AcquireLock to fail")
	}
	if !errors.HasCode(err, errors.BuildLocked) {
		t.Errorf("Expected %s, got %v", errors.BuildLocked, err)
	}

	first.Release()
	third, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Expected lock to be free after release, got %v", err)
	}
	third.Release()
}
