// Package lock serialises mutating zircon commands on one root with an
// advisory exclusive lock. The lock file records the holder's PID for
// diagnostics; the kernel drops the lock when the holder exits, so a lock
// file left behind by a crashed process is never stale.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

// Lock is a held advisory lock. Release must be called exactly once.
type Lock struct {
	path   string
	file   *os.File
	logger hclog.Logger
}

// TryAcquire takes the lock at path without waiting. If another process
// holds it, the error wraps ErrLocked and names the holder PID when known.
func TryAcquire(path string, logger hclog.Logger) (*Lock, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	acquired, err := tryLock(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !acquired {
		file.Close()
		if pid := Holder(path); pid > 0 {
			logger.Debug("🔒 Lock held by active process", "pid", pid)
			return nil, zerrors.Wrapf(zerrors.ErrLocked, "held by pid %d", pid)
		}
		return nil, zerrors.ErrLocked
	}

	if err := writePID(file); err != nil {
		logger.Debug("⚠️ Failed to record PID in lock file", "error", err)
	}

	logger.Debug("🔒 Acquired lock", "path", path, "pid", os.Getpid())
	return &Lock{path: path, file: file, logger: logger}, nil
}

// Release drops the lock. The file itself stays so that a concurrent
// opener never locks an unlinked inode.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Clear the PID before unlocking so a reader never sees a dead holder.
	_ = l.file.Truncate(0)
	err := unlock(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	if err != nil {
		l.logger.Debug("⚠️ Failed to release lock", "error", err)
		return err
	}
	l.logger.Debug("🔓 Released lock", "path", l.path)
	return nil
}

// Holder returns the PID recorded in the lock file at path, or 0.
func Holder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		return err
	}
	return f.Sync()
}
