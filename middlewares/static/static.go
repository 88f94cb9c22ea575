// Package static serves files from an fs.FS as breeze middleware,
// falling through to the next handler when no matching file exists.
package static

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-breeze/breeze"
)

// Options configures the static file middleware. Exactly one of FS or
// Root must be set.
type Options struct {
	FS     fs.FS
	Root   string // served via os.DirFS, alternative to FS
	Prefix string // URL prefix stripped before resolving against FS/Root
	Index  string // defaults to index.html
	MaxAge int    // seconds; when > 0, sets Cache-Control on served files
	Browse bool   // render a directory listing when no index file exists

	NotFoundHandler breeze.Handler // invoked (instead of falling through) when no file matches
}

// New returns static file middleware serving root from disk.
func New(root string) breeze.Middleware {
	return WithOptions(Options{Root: root})
}

// WithFS returns static file middleware serving fsys.
func WithFS(fsys fs.FS) breeze.Middleware {
	return WithOptions(Options{FS: fsys})
}

// WithOptions returns static file middleware configured by opts. It
// panics if neither FS nor Root is set.
func WithOptions(opts Options) breeze.Middleware {
	fsys := opts.FS
	if fsys == nil {
		if opts.Root == "" {
			panic("static: one of Options.FS or Options.Root must be set")
		}
		fsys = os.DirFS(opts.Root)
	}
	index := opts.Index
	if index == "" {
		index = "index.html"
	}

	return func(next breeze.Handler) breeze.Handler {
		return func(c *breeze.Ctx) error {
			reqPath := c.Request().URL.Path
			if opts.Prefix != "" {
				if !strings.HasPrefix(reqPath, opts.Prefix) {
					return next(c)
				}
				reqPath = strings.TrimPrefix(reqPath, opts.Prefix)
			}
			if escapesRoot(reqPath) {
				return c.Text(http.StatusForbidden, "forbidden")
			}
			reqPath = path.Clean("/" + reqPath)
			name := strings.TrimPrefix(reqPath, "/")
			if name == "" {
				name = "."
			}

			body, contentType, ok := resolve(fsys, name, index, opts.Browse)
			if !ok {
				if opts.NotFoundHandler != nil {
					return opts.NotFoundHandler(c)
				}
				return next(c)
			}

			if opts.MaxAge > 0 {
				c.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", opts.MaxAge))
			}
			return c.Bytes(http.StatusOK, contentType, body)
		}
	}
}

// escapesRoot reports whether path.Clean would absorb a ".." segment
// that climbs above the served root, i.e. the request tried to escape
// the directory being served.
func escapesRoot(reqPath string) bool {
	depth := 0
	for _, seg := range strings.Split(reqPath, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

func resolve(fsys fs.FS, name, index string, browse bool) (body []byte, contentType string, ok bool) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, "", false
	}

	if info.IsDir() {
		indexName := path.Join(name, index)
		if b, err := fs.ReadFile(fsys, indexName); err == nil {
			return b, "text/html; charset=utf-8", true
		}
		if browse {
			b, err := renderDir(fsys, name)
			if err != nil {
				return nil, "", false
			}
			return b, "text/html; charset=utf-8", true
		}
		return nil, "", false
	}

	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, "", false
	}
	return b, contentTypeFor(name), true
}

func renderDir(fsys fs.FS, name string) ([]byte, error) {
	entries, err := fs.ReadDir(fsys, name)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("<pre>\n")
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() {
			n += "/"
		}
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", n, n)
	}
	b.WriteString("</pre>\n")
	return []byte(b.String()), nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
