// Package requestid assigns each request a unique id, propagated via a
// response header and readable by downstream handlers.
package requestid

import (
	"crypto/rand"
	"fmt"

	"github.com/go-breeze/breeze"
)

const defaultHeader = "X-Request-ID"

// Options configures the request-id middleware.
type Options struct {
	Header    string // defaults to X-Request-ID
	Generator func() string
}

type contextKey struct{}

// New returns request-id middleware with default options.
func New() breeze.Middleware {
	return WithOptions(Options{})
}

// WithOptions returns request-id middleware configured by opts.
func WithOptions(opts Options) breeze.Middleware {
	header := opts.Header
	if header == "" {
		header = defaultHeader
	}
	gen := opts.Generator
	if gen == nil {
		gen = generateID
	}

	return func(next breeze.Handler) breeze.Handler {
		return func(c *breeze.Ctx) error {
			id := c.Request().Header.Get(header)
			if id == "" {
				id = gen()
			}
			breeze.SetExtension(c, requestID(id))
			c.Header().Set(header, id)
			return next(c)
		}
	}
}

type requestID string

// FromContext returns the current request's id, or empty if the
// middleware was not installed.
func FromContext(c *breeze.Ctx) string {
	id, _ := breeze.Extension[requestID](c)
	return string(id)
}

// Get is an alias for FromContext.
func Get(c *breeze.Ctx) string { return FromContext(c) }

// generateID returns a random UUID v4 string.
func generateID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
