// Package lockfile implements exclusive create-only lock files. A Lock is
// either committed by renaming it over its destination or released, which
// removes it.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	retryDelay       = 5 * time.Millisecond
	DefaultWaitLimit = 2 * time.Second
)

// ErrTimeout is returned when a lock is still held by someone else after
// the wait limit.
var ErrTimeout = errors.New("timeout waiting for lock")

// Lock is an exclusively created file at Path.
type Lock struct {
	Path string
	f    *os.File
	done bool
}

// Acquire creates path with O_EXCL, retrying until DefaultWaitLimit.
func Acquire(path string) (*Lock, error) {
	return AcquireWait(path, DefaultWaitLimit)
}

// AcquireWait is Acquire with an explicit wait limit.
func AcquireWait(path string, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return &Lock{Path: path, f: f}, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w %q", ErrTimeout, path)
			}
			time.Sleep(retryDelay)
			continue
		}
		return nil, err
	}
}

// Write appends p to the lock file contents.
func (l *Lock) Write(p []byte) (int, error) {
	if l.done || l.f == nil {
		return 0, fmt.Errorf("lock %q: already released", l.Path)
	}
	return l.f.Write(p)
}

// Commit flushes the lock file and renames it to dest. After Commit the
// lock no longer exists and Release is a no-op.
func (l *Lock) Commit(dest string) error {
	if l.done {
		return fmt.Errorf("lock %q: already released", l.Path)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("lock %q: sync: %w", l.Path, err)
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("lock %q: close: %w", l.Path, err)
	}
	if err := os.Rename(l.Path, dest); err != nil {
		return fmt.Errorf("lock %q: rename: %w", l.Path, err)
	}
	l.done = true
	return nil
}

// Release closes and removes the lock file unless it was committed. It is
// safe to call more than once and is meant to be deferred.
func (l *Lock) Release() error {
	if l == nil || l.done {
		return nil
	}
	l.done = true
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
