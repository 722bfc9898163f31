package tree

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ransxd/web-download-server/internal/storage/local"
)

func writeFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if strings.HasSuffix(p, "/") {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func allFiles(t *Tree) []string {
	if t == nil {
		return nil
	}
	out := append([]string(nil), t.Files...)
	for _, sub := range t.Dirs {
		out = append(out, allFiles(sub)...)
	}
	return out
}

func newScanner(t *testing.T, dir string) *Scanner {
	t.Helper()
	root, err := local.New(local.Config{RootPath: dir})
	if err != nil {
		t.Fatal(err)
	}
	return &Scanner{Root: root, Filter: NewFilter("server.pid", "logs/server.log")}
}

func TestFilterHidden(t *testing.T) {
	f := NewFilter("/run/app/server.pid", "server.log")
	tests := []struct {
		name   string
		hidden bool
	}{
		{".git", true},
		{".env", true},
		{"server.pid", true},
		{"server.log", true},
		{"server.log.1", false},
		{"readme.md", false},
		{"a.pid", false},
	}
	for _, tt := range tests {
		if got := f.Hidden(tt.name); got != tt.hidden {
			t.Errorf("Hidden(%q) = %v, want %v", tt.name, got, tt.hidden)
		}
	}
}

func TestScanExcludesHiddenAndReserved(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"a.txt", "b.txt", ".hidden", "server.pid", "server.log",
		"sub/c.txt", "sub/.secret", "sub/server.pid",
		"sub/deep/server.log", "sub/deep/d.txt",
		".git/config", "empty/",
	)

	s := newScanner(t, dir)
	got, err := s.Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := &Tree{
		Files: []string{"a.txt", "b.txt"},
		Dirs: map[string]*Tree{
			"sub": {
				Files: []string{"sub/c.txt"},
				Dirs: map[string]*Tree{
					"sub/deep": {Files: []string{"sub/deep/d.txt"}, Dirs: map[string]*Tree{}},
				},
			},
			"empty": {Dirs: map[string]*Tree{}},
		},
	}

	sortFiles := cmp.Transformer("sort", func(t *Tree) *Tree {
		if t == nil {
			return nil
		}
		return &Tree{Files: t.SortedFiles(), Dirs: t.Dirs}
	})
	if diff := cmp.Diff(want, got, sortFiles); diff != "" {
		t.Errorf("Scan mismatch (-want +got):\n%s", diff)
	}

	for _, p := range allFiles(got) {
		for _, seg := range strings.Split(p, "/") {
			if s.Filter.Hidden(seg) {
				t.Errorf("hidden segment %q leaked in %q", seg, p)
			}
		}
	}
}

func TestScanPathsRelativeToRoot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "docs/guide/intro.md", "docs/readme.md")

	s := newScanner(t, dir)
	got, err := s.Scan(filepath.Join(dir, "docs"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"docs/readme.md"}, got.SortedFiles()); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"docs/guide"}, got.SortedDirs()); diff != "" {
		t.Errorf("dirs (-want +got):\n%s", diff)
	}
}

func TestSortedOrderIndependentOfEnumeration(t *testing.T) {
	tr := &Tree{
		Files: []string{"b.txt", "a.txt"},
		Dirs:  map[string]*Tree{"sub": newTree(), "alpha": newTree()},
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt"}, tr.SortedFiles()); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff([]string{"alpha", "sub"}, tr.SortedDirs()); diff != "" {
		t.Error(diff)
	}
	if tr.Files[0] != "b.txt" {
		t.Error("SortedFiles must not reorder the tree in place")
	}
}

func TestScanTopLevelErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	s := newScanner(t, dir)
	if _, err := s.Scan(filepath.Join(dir, "nope")); err == nil {
		t.Fatal("expected error for unreadable top-level dir")
	}
}

func TestScanUnreadableSubdirDegrades(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	dir := t.TempDir()
	writeFiles(t, dir, "ok.txt", "locked/inner.txt")
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0o755)

	s := newScanner(t, dir)
	var reported []string
	s.OnError = func(d string, err error) { reported = append(reported, d) }

	got, err := s.Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sub, ok := got.Dirs["locked"]
	if !ok || !sub.Empty() {
		t.Fatalf("locked dir should be an empty subtree, got %#v", sub)
	}
	if len(reported) != 1 || reported[0] != locked {
		t.Errorf("OnError calls = %v", reported)
	}
}

func TestScanMaxDepth(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "l1/l2/l3/f.txt", "l1/g.txt")

	s := newScanner(t, dir)
	s.MaxDepth = 2
	var depthErrs int
	s.OnError = func(_ string, err error) {
		if errors.Is(err, ErrMaxDepth) {
			depthErrs++
		}
	}

	got, err := s.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	l2 := got.Dirs["l1"].Dirs["l1/l2"]
	if l2 == nil {
		t.Fatal("l1/l2 missing")
	}
	l3, ok := l2.Dirs["l1/l2/l3"]
	if !ok {
		t.Fatal("l1/l2/l3 should still be listed")
	}
	if !l3.Empty() {
		t.Errorf("l1/l2/l3 is past the depth limit and should be empty, got %v", l3.Files)
	}
	if depthErrs != 1 {
		t.Errorf("depth reports = %d, want 1", depthErrs)
	}
}

func TestScanSymlinkCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a/f.txt")
	if err := os.Symlink(dir, filepath.Join(dir, "a", "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s := newScanner(t, dir)
	var cycles []string
	s.OnError = func(d string, err error) {
		if errors.Is(err, ErrLinkCycle) {
			cycles = append(cycles, d)
		}
	}
	got, err := s.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}

	a := got.Dirs["a"]
	if a == nil || len(a.Files) != 1 {
		t.Fatalf("a should hold f.txt, got %+v", a)
	}
	loop, ok := a.Dirs["a/loop"]
	if !ok {
		t.Fatal("a/loop should still be listed")
	}
	if !loop.Empty() {
		t.Errorf("a/loop points at the root and should be empty, got %d entries", loop.Count())
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "a", "loop")}, cycles); diff != "" {
		t.Errorf("cycle reports (-want +got):\n%s", diff)
	}
}

func TestScanSymlinkFanOutTerminates(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "f.txt")
	for _, name := range []string{"a", "b"} {
		if err := os.Symlink(dir, filepath.Join(dir, name)); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
	}

	s := newScanner(t, dir)
	s.MaxDepth = 64
	cycles := 0
	s.OnError = func(_ string, err error) {
		if errors.Is(err, ErrLinkCycle) {
			cycles++
		}
	}
	got, err := s.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n := got.Count(); n != 3 {
		t.Errorf("Count = %d, want 3 (f.txt plus two empty links)", n)
	}
	if cycles != 2 {
		t.Errorf("cycle reports = %d, want 2", cycles)
	}
}

func TestScanSiblingLinksAreNotCycles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "shared/doc.txt", "x/")
	if err := os.Symlink(filepath.Join(dir, "shared"), filepath.Join(dir, "x", "shared")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := newScanner(t, dir).Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	linked := got.Dirs["x"].Dirs["x/shared"]
	if linked == nil || len(linked.Files) != 1 || linked.Files[0] != "x/shared/doc.txt" {
		t.Errorf("a link to a non-ancestor should be scanned, got %+v", linked)
	}
}

func TestCount(t *testing.T) {
	tr := &Tree{
		Files: []string{"z.txt"},
		Dirs: map[string]*Tree{
			"d": {Files: []string{"d/b.txt", "d/a.txt"}, Dirs: map[string]*Tree{}},
		},
	}
	if got := tr.Count(); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
	var nilTree *Tree
	if nilTree.Count() != 0 {
		t.Error("nil tree count should be 0")
	}
}
