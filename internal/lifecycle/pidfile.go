// Package lifecycle manages the liveness marker file and the process
// shutdown hook that removes it.
package lifecycle

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ransxd/web-download-server/internal/logging"
)

// PIDFile is the liveness marker: a file holding the decimal id of the
// running process. It exists only between Acquire and Release.
type PIDFile struct {
	path string
	pid  int
	once sync.Once
}

// Acquire writes the current process id to path, replacing any previous
// content. The write goes through a temp file and a rename so readers never
// observe a partial marker.
func Acquire(path string) (*PIDFile, error) {
	pid := os.Getpid()

	if prev, err := ReadPID(path); err == nil && prev != pid {
		if alive, known := processAlive(prev); known && alive {
			logging.Warn("liveness marker belongs to a running process, overwriting",
				zap.String("path", path), zap.Int("pid", prev))
		}
	}

	if err := writeAtomic(path, []byte(strconv.Itoa(pid))); err != nil {
		return nil, err
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Path returns the marker location.
func (p *PIDFile) Path() string { return p.path }

// PID returns the process id recorded in the marker.
func (p *PIDFile) PID() int { return p.pid }

// Release deletes the marker. Only the first call does any work, and a
// marker that is already gone is not an error.
func (p *PIDFile) Release() {
	p.once.Do(func() {
		err := os.Remove(p.path)
		switch {
		case err == nil:
			logging.Debug("liveness marker removed", zap.String("path", p.path))
		case errors.Is(err, fs.ErrNotExist):
			logging.Debug("liveness marker already absent", zap.String("path", p.path))
		default:
			logging.Debug("liveness marker removal failed", zap.String("path", p.path), zap.Error(err))
		}
	})
}

// ReadPID returns the process id stored in the marker at path.
func ReadPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(b)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}
