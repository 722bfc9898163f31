// Package archive packages a directory under the serving root into an
// in-memory ZIP archive.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/ransxd/web-download-server/internal/storage/local"
	"github.com/ransxd/web-download-server/internal/tree"
)

// Errors returned by ResolveFolder.
var (
	ErrBadRequest   = errors.New("malformed folder path")
	ErrForbidden    = errors.New("folder outside serving root")
	ErrNotFound     = errors.New("folder not found")
	ErrNotDirectory = errors.New("not a directory")
)

// Stats describes a built archive.
type Stats struct {
	Entries  int
	Bytes    int64
	Duration time.Duration
}

// Packager builds folder archives.
type Packager struct {
	Filter tree.Filter
}

// Build walks dir and returns a deflate-compressed ZIP of every visible
// regular file below it, named by its slash-separated path relative to dir.
// Hidden directories are skipped whole, like in the listing. Linked files
// are archived with the content they point to; linked directories are not
// descended. The whole archive is held in memory. On error the partial
// buffer is dropped.
func (p *Packager) Build(ctx context.Context, dir string) (*bytes.Buffer, Stats, error) {
	start := time.Now()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	entries := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && d != nil && d.IsDir() {
				// Unreadable subdirectory: leave it out.
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if p.Filter.Hidden(name) {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel), info); err != nil {
			return err
		}
		entries++
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}
	if err := zw.Close(); err != nil {
		return nil, Stats{}, fmt.Errorf("finish archive: %w", err)
	}

	return buf, Stats{
		Entries:  entries,
		Bytes:    int64(buf.Len()),
		Duration: time.Since(start),
	}, nil
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

// ResolveFolder maps the still-escaped remainder of a folder download URL
// to a directory under root. It decodes raw once, accepts both / and \ as
// separators, resolves . and .. and refuses anything that ends up outside
// the root. The empty string names the root itself.
func ResolveFolder(root *local.Root, raw string) (string, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	sep := string(filepath.Separator)
	decoded = strings.NewReplacer("/", sep, "\\", sep).Replace(decoded)

	full, err := root.Join(decoded)
	if err != nil {
		if errors.Is(err, local.ErrOutsideRoot) {
			return "", fmt.Errorf("%w: %s", ErrForbidden, decoded)
		}
		return "", err
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, full)
	}
	return full, nil
}

// ArchiveName returns the download name, without extension, for the
// archive of dir.
func ArchiveName(dir string) string {
	name := filepath.Base(dir)
	if name == string(filepath.Separator) || name == "." || name == "" {
		return "archive"
	}
	return name
}
