// Package tree builds the in-memory view of the visible contents of a
// directory under the serving root.
package tree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ransxd/web-download-server/internal/storage/local"
)

// Errors reported through Scanner.OnError for subtrees left empty.
var (
	ErrMaxDepth  = errors.New("maximum scan depth exceeded")
	ErrLinkCycle = errors.New("directory link points back to an ancestor")
)

// Filter decides which entries are invisible: dotfiles and the two reserved
// file names (liveness marker and log file).
type Filter struct {
	PIDFile string
	LogFile string
}

// NewFilter builds a Filter from the marker and log file paths. Only their
// base names matter.
func NewFilter(pidPath, logPath string) Filter {
	return Filter{
		PIDFile: filepath.Base(pidPath),
		LogFile: filepath.Base(logPath),
	}
}

// Hidden reports whether an entry called name must not be shown or packaged.
func (f Filter) Hidden(name string) bool {
	return strings.HasPrefix(name, ".") || name == f.PIDFile || name == f.LogFile
}

// Tree is a directory's visible contents. Keys and entries are slash
// separated paths relative to the serving root.
type Tree struct {
	Files []string
	Dirs  map[string]*Tree
}

func newTree() *Tree {
	return &Tree{Dirs: make(map[string]*Tree)}
}

// Empty reports whether the tree has no files and no subdirectories.
func (t *Tree) Empty() bool {
	return len(t.Files) == 0 && len(t.Dirs) == 0
}

// SortedFiles returns the file paths in lexicographic order.
func (t *Tree) SortedFiles() []string {
	files := append([]string(nil), t.Files...)
	sort.Strings(files)
	return files
}

// SortedDirs returns the subdirectory paths in lexicographic order.
func (t *Tree) SortedDirs() []string {
	dirs := make([]string, 0, len(t.Dirs))
	for d := range t.Dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Count counts all files and directories in the tree, at every depth.
func (t *Tree) Count() int {
	if t == nil {
		return 0
	}
	count := len(t.Files) + len(t.Dirs)
	for _, sub := range t.Dirs {
		count += sub.Count()
	}
	return count
}

// Scanner builds Trees.
type Scanner struct {
	Root   *local.Root
	Filter Filter

	// MaxDepth bounds recursion below the scanned directory; deeper
	// directories are listed but left empty. Zero means unbounded.
	MaxDepth int

	// OnError is told about every subdirectory that was degraded to an
	// empty subtree. May be nil.
	OnError func(dir string, err error)
}

// Scan lists dir recursively. Failing to read dir itself is an error;
// failing to read anything below it yields an empty subtree instead.
func (s *Scanner) Scan(dir string) (*Tree, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat dir %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	return s.build(dir, entries, []os.FileInfo{info}), nil
}

// scan lists a subdirectory. ancestors holds the directories on the path
// from the scanned root down to dir, dir included.
func (s *Scanner) scan(dir string, ancestors []os.FileInfo) *Tree {
	if s.MaxDepth > 0 && len(ancestors)-1 > s.MaxDepth {
		s.report(dir, ErrMaxDepth)
		return newTree()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.report(dir, err)
		return newTree()
	}
	return s.build(dir, entries, ancestors)
}

func (s *Scanner) build(dir string, entries []os.DirEntry, ancestors []os.FileInfo) *Tree {
	t := newTree()
	for _, e := range entries {
		name := e.Name()
		if s.Filter.Hidden(name) {
			continue
		}

		full := filepath.Join(dir, name)
		// Stat follows links so a linked file or directory is shown as
		// what it points to.
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		rel, err := s.Root.Rel(full)
		if err != nil {
			continue
		}

		switch {
		case info.IsDir():
			if isAncestor(ancestors, info) {
				s.report(full, ErrLinkCycle)
				t.Dirs[rel] = newTree()
				continue
			}
			t.Dirs[rel] = s.scan(full, append(ancestors[:len(ancestors):len(ancestors)], info))
		case info.Mode().IsRegular():
			t.Files = append(t.Files, rel)
		}
	}
	return t
}

func isAncestor(ancestors []os.FileInfo, info os.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return true
		}
	}
	return false
}

func (s *Scanner) report(dir string, err error) {
	if s.OnError != nil {
		s.OnError(dir, err)
	}
}
