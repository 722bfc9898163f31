// Package local resolves request paths against the serving root on the
// local filesystem.
package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside the serving root.
var ErrOutsideRoot = errors.New("path escapes serving root")

// Config holds serving root settings.
type Config struct {
	RootPath string `json:"root_path"`
}

// Root is the serving root: the one directory whose contents are exposed.
type Root struct {
	rootPath string
}

// New validates the root path and returns a Root for it.
func New(cfg Config) (*Root, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	abs, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", abs)
	}

	return &Root{rootPath: abs}, nil
}

// Path returns the absolute root path.
func (r *Root) Path() string { return r.rootPath }

// Join resolves rel (host separators, may contain . and ..) against the
// root and returns the cleaned absolute path. Paths that leave the root
// fail with ErrOutsideRoot.
func (r *Root) Join(rel string) (string, error) {
	full := filepath.Join(r.rootPath, rel)
	if !r.Contains(full) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return full, nil
}

// Contains reports whether full is the root or lies beneath it.
func (r *Root) Contains(full string) bool {
	rel, err := filepath.Rel(r.rootPath, filepath.Clean(full))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rel returns full relative to the root in slash form. The root itself is "".
func (r *Root) Rel(full string) (string, error) {
	rel, err := filepath.Rel(r.rootPath, full)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}
