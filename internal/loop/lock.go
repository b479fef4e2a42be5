package loop

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock is the exclusive daemon lock, preventing two loops from driving the
// same substrate.
type Lock struct {
	file *os.File
}

// AcquireLock creates and locks <stateDir>/locks/loop.lock, blocking until
// the lock is free.
func AcquireLock(stateDir string) (*Lock, error) {
	file, err := openLockFile(stateDir)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("lock loop.lock: %w", err)
	}
	return &Lock{file: file}, nil
}

// TryAcquireLock attempts to acquire the loop lock without blocking. A false
// second return means another daemon holds it.
func TryAcquireLock(stateDir string) (*Lock, bool, error) {
	file, err := openLockFile(stateDir)
	if err != nil {
		return nil, false, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, false, nil
	}
	return &Lock{file: file}, true, nil
}

func openLockFile(stateDir string) (*os.File, error) {
	locksDir := filepath.Join(stateDir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(locksDir, "loop.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return file, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
