// Package lock ensures a single running daemon per profile.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// HeldError is returned when another process holds the profile lock.
type HeldError struct {
	Holder Info
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("profile %q is locked by PID %d (%s)", e.Holder.Profile, e.Holder.PID, e.Path)
}

// Info describes the process holding a lock.
type Info struct {
	PID     int
	Profile string
	Since   time.Time
}

// Lock is an acquired profile lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock of dir for profile. It fails with
// *HeldError when another process already holds it.
func Acquire(dir, profile string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		return nil, &HeldError{Holder: parse(string(data)), Path: path}
	}

	content := fmt.Sprintf("pid=%d\nprofile=%s\ntime=%s\n", os.Getpid(), profile, time.Now().UTC().Format(time.RFC3339))
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Inspect returns the holder of the lock in dir. It returns
// os.ErrNotExist when no daemon holds it.
func Inspect(dir string) (Info, error) {
	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Info{}, fmt.Errorf("stale lock file %s: %w", path, os.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	return parse(string(data)), nil
}

// Release releases the lock. Safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// IsHeld reports whether err says the lock is taken.
func IsHeld(err error) bool {
	var held *HeldError
	return errors.As(err, &held)
}

func parse(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "profile":
			info.Profile = value
		case "time":
			info.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return info
}
