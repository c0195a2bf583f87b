// Package lock guards the shared temp workspace against concurrent
// pipeline runs. The temp root can be a fixed path shared between
// container invocations, so two runs pointed at it must not interleave.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// LockFileName is the name of the lock file inside the temp root
const LockFileName = ".flairstar.lock"

// Info describes the lock holder
type Info struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RunLock is a PID-file lock scoped to one temp root
type RunLock struct {
	path string
	held bool
}

// New creates a lock for the given temp root, creating the root if needed
func New(tempRoot string) (*RunLock, error) {
	if tempRoot == "" {
		return nil, fmt.Errorf("temp root is empty")
	}
	if err := os.MkdirAll(tempRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp root: %w", err)
	}
	return &RunLock{path: filepath.Join(tempRoot, LockFileName)}, nil
}

// Acquire takes the lock, reclaiming it when the recorded holder
// process is no longer alive. A live holder is ErrRunInProgress.
func (l *RunLock) Acquire() error {
	if existing, err := l.read(); err == nil {
		if processAlive(existing.PID) {
			return fmt.Errorf("%w: held by pid %d on %s since %s",
				domain.ErrRunInProgress, existing.PID, existing.Hostname,
				existing.AcquiredAt.Format(time.RFC3339))
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := Info{PID: os.Getpid(), Hostname: hostname, AcquiredAt: time.Now()}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: lock appeared during acquisition", domain.ErrRunInProgress)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(info); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	l.held = true
	return nil
}

// Release removes the lock file if this instance holds it
func (l *RunLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Holder returns the current lock info, or an error when unlocked
func (l *RunLock) Holder() (*Info, error) {
	info, err := l.read()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (l *RunLock) read() (Info, error) {
	var info Info
	data, err := os.ReadFile(l.path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("corrupt lock file: %w", err)
	}
	if info.PID <= 0 {
		return info, fmt.Errorf("corrupt lock file: bad pid %d", info.PID)
	}
	return info, nil
}

// processAlive probes the pid with signal 0. Platforms without signal
// support report an unsupported error, which we treat as stale rather
// than blocking every retry forever.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
