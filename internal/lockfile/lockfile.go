// Package lockfile keeps two RoleBridge processes from sharing a state
// directory, which would mean two gateway consumers writing one SQLite file.
//
// The lock is an flock on a file in the directory, so the kernel drops it
// when the holder exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultName is the lock file name inside the state directory.
const DefaultName = "rolebridge.lock"

// Opts holds configuration options for Acquire.
type Opts struct {
	Name  string
	Owner string
}

// Option configures Acquire.
type Option func(*Opts)

// WithName overrides DefaultName.
func WithName(name string) Option {
	return func(o *Opts) { o.Name = name }
}

// WithOwner records a label, such as the bot user, in the lock file so a
// conflicting start can say who holds it.
func WithOwner(owner string) Option {
	return func(o *Opts) { o.Owner = owner }
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Owner   string
	Started string
	Running bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "running"
	if !h.Running {
		state = "not running"
	}
	s := fmt.Sprintf("PID %d (%s)", h.PID, state)
	if h.Owner != "" {
		s += ", owner " + h.Owner
	}
	if h.Started != "" {
		s += ", started " + h.Started
	}
	return s
}

// Lock is a held directory lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock of dir, creating dir if needed. It fails at once
// with a *LockError when another process holds it.
func Acquire(dir string, opts ...Option) (*Lock, error) {
	cfg := Opts{Name: DefaultName}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, cfg.Name)

	// No O_TRUNC: a losing contender must not wipe the holder's record.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		slog.Error("lockfile.Acquire: state directory is locked", "path", path, "holder", holder.String())
		return nil, &LockError{Path: path, Holder: holder, Cause: err}
	}

	record := fmt.Sprintf("pid=%d\nowner=%s\nstarted=%s\n", os.Getpid(), cfg.Owner, time.Now().UTC().Format(time.RFC3339))
	if err := writeRecord(f, record); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}
	slog.Info("lockfile.Acquire: state directory locked", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

func writeRecord(f *os.File, record string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(record), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile.Acquire: sync failed", "path", f.Name(), "error", err)
	}
	return nil
}

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	// Remove while still locked so a newcomer never locks a doomed inode.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: remove failed", "path", l.path, "error", err)
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	slog.Info("lockfile.Release: state directory unlocked", "path", l.path)
	return nil
}

// LockError reports a lock held by another process.
type LockError struct {
	Path   string
	Holder Holder
	Cause  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("state directory is in use by another RoleBridge instance (%s); lock file %s. "+
		"If that process is gone the lock is released automatically; remove the file only if the instance is known to be stopped",
		e.Holder, e.Path)
}

func (e *LockError) Unwrap() error { return e.Cause }

func readHolder(f *os.File) Holder {
	var h Holder
	if _, err := f.Seek(0, 0); err != nil {
		return h
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "owner":
			h.Owner = value
		case "started":
			h.Started = value
		}
	}
	if h.PID > 0 {
		h.Running = processRunning(h.PID)
	}
	return h
}

// processRunning checks pid with signal 0.
func processRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
