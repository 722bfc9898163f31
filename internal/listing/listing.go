// Package listing renders a directory tree as a browsable HTML page.
package listing

import (
	_ "embed"
	"html/template"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ransxd/web-download-server/internal/tree"
)

//go:embed listing.html
var pageSource string

// ZipPrefix is the path prefix folder download links point at.
const ZipPrefix = "/download_folder/"

// Page is the input of a render.
type Page struct {
	Title string
	Root  string // absolute serving root, shown for operator context
	Tree  *tree.Tree
}

// Renderer turns Pages into HTML.
type Renderer struct {
	tmpl *template.Template
}

// New parses the page template.
func New() (*Renderer, error) {
	tmpl, err := template.New("page").Parse(pageSource)
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

type fileView struct {
	Name string
	Href string
}

type dirView struct {
	ID       string
	Name     string
	ZipHref  string
	Children *levelView
}

type levelView struct {
	Files []fileView
	Dirs  []dirView
}

type pageView struct {
	Title string
	Root  string
	Level *levelView
}

// Render writes the page for p to w. An empty tree renders a notice
// instead of a list.
func (r *Renderer) Render(w io.Writer, p Page) error {
	ids := 0
	return r.tmpl.Execute(w, pageView{
		Title: p.Title,
		Root:  p.Root,
		Level: buildLevel(p.Tree, &ids),
	})
}

// buildLevel orders one tree level for display: files first, then
// subdirectories, each sorted by relative path. Folder ids are numbered in
// render order so they stay unique whatever the names contain.
func buildLevel(t *tree.Tree, ids *int) *levelView {
	if t == nil || t.Empty() {
		return nil
	}
	lv := &levelView{}
	for _, f := range t.SortedFiles() {
		lv.Files = append(lv.Files, fileView{
			Name: path.Base(f),
			Href: "/" + EscapePath(f),
		})
	}
	for _, d := range t.SortedDirs() {
		*ids++
		lv.Dirs = append(lv.Dirs, dirView{
			ID:       "folder_" + strconv.Itoa(*ids),
			Name:     path.Base(d),
			ZipHref:  ZipPrefix + EscapePath(d),
			Children: buildLevel(t.Dirs[d], ids),
		})
	}
	return lv
}

// EscapePath percent-encodes each segment of a slash-separated path.
func EscapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
