package proc

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/stackbound/devserve/internal/auditlog"
)

// LockMetadata identifies the run currently holding the lock.
type LockMetadata struct {
	PID       int       `json:"pid"`
	User      string    `json:"user"`
	Host      string    `json:"host"`
	StartedAt time.Time `json:"started_at"`
}

// ErrLockHeld is returned when another live run holds the lock.
type ErrLockHeld struct {
	Meta LockMetadata
}

func (e *ErrLockHeld) Error() string {
	if e.Meta.User == "" {
		return "another devserve run is already active"
	}
	return fmt.Sprintf("another devserve run is active: %s@%s (pid %d) since %s",
		e.Meta.User, e.Meta.Host, e.Meta.PID, e.Meta.StartedAt.Format(time.RFC3339))
}

// ProcessChecker reports whether a pid belongs to a live process.
type ProcessChecker interface {
	Alive(pid int) bool
}

type defaultProcessChecker struct{}

func (defaultProcessChecker) Alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// RunLock serializes supervised runs over a state directory: two run-all
// sessions would fight over the same ports, so only one may hold it.
type RunLock struct {
	Path    string
	Checker ProcessChecker
	Now     func() time.Time
	Auditor *auditlog.Auditor

	mu sync.Mutex
}

// HeldRunLock is an acquired lock; Release is idempotent.
type HeldRunLock struct {
	lock     *RunLock
	meta     LockMetadata
	released bool
	mu       sync.Mutex
}

func (l *RunLock) ensureDefaults() {
	if l.Checker == nil {
		l.Checker = defaultProcessChecker{}
	}
	if l.Now == nil {
		l.Now = time.Now
	}
}

func currentIdentity() (string, string) {
	host, _ := os.Hostname()
	username := "unknown"
	if u, err := user.Current(); err == nil && u != nil && u.Username != "" {
		username = u.Username
	}
	return username, host
}

// Acquire takes the lock, recovering it from a dead process if needed.
func (l *RunLock) Acquire() (*HeldRunLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureDefaults()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	username, host := currentIdentity()
	meta := LockMetadata{
		PID:       os.Getpid(),
		User:      username,
		Host:      host,
		StartedAt: l.Now().UTC(),
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			enc := json.NewEncoder(f)
			if werr := enc.Encode(meta); werr != nil {
				_ = f.Close()
				_ = os.Remove(l.Path)
				return nil, fmt.Errorf("write lock metadata: %w", werr)
			}
			_ = f.Close()

			if l.Auditor != nil {
				l.Auditor.Emit(auditlog.EventRunLockAcquired, auditlog.Fields{
					"pid":  meta.PID,
					"user": meta.User,
				})
			}
			return &HeldRunLock{lock: l, meta: meta}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("open lock file: %w", err)
		}

		held, readErr := l.readMetadata()
		if readErr != nil || !l.Checker.Alive(held.PID) {
			// Corrupt or left behind by a dead run; reclaim it.
			_ = os.Remove(l.Path)
			continue
		}
		return nil, &ErrLockHeld{Meta: held}
	}

	return nil, fmt.Errorf("failed to recover stale run lock")
}

func (l *RunLock) readMetadata() (LockMetadata, error) {
	var meta LockMetadata
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// Release removes the lock file.
func (h *HeldRunLock) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	if h.lock.Auditor != nil {
		duration := h.lock.Now().UTC().Sub(h.meta.StartedAt)
		h.lock.Auditor.Emit(auditlog.EventRunLockReleased, auditlog.Fields{
			"pid":         h.meta.PID,
			"user":        h.meta.User,
			"duration_ms": duration.Milliseconds(),
		})
	}

	return os.Remove(h.lock.Path)
}
