// Package cors implements Cross-Origin Resource Sharing as breeze
// middleware: simple-request headers plus full preflight handling.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-breeze/breeze"
)

// Options configures the CORS middleware.
type Options struct {
	AllowOrigins        []string
	AllowOriginFunc     func(origin string) bool
	AllowMethods        []string
	AllowHeaders        []string
	ExposeHeaders       []string
	AllowCredentials    bool
	AllowPrivateNetwork bool
	MaxAge              time.Duration
}

// New returns CORS middleware configured by opts.
func New(opts Options) breeze.Middleware {
	allowMethods := strings.Join(opts.AllowMethods, ", ")
	allowHeaders := strings.Join(opts.AllowHeaders, ", ")
	exposeHeaders := strings.Join(opts.ExposeHeaders, ", ")

	allowed := func(origin string) bool {
		if opts.AllowOriginFunc != nil {
			return opts.AllowOriginFunc(origin)
		}
		for _, o := range opts.AllowOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}

	return func(next breeze.Handler) breeze.Handler {
		return func(c *breeze.Ctx) error {
			origin := c.Request().Header.Get("Origin")
			if origin == "" {
				return next(c)
			}

			c.Header().Add("Vary", "Origin")
			if !allowed(origin) {
				return next(c)
			}

			if opts.AllowCredentials {
				c.Header().Set("Access-Control-Allow-Origin", origin)
				c.Header().Set("Access-Control-Allow-Credentials", "true")
			} else if contains(opts.AllowOrigins, "*") && opts.AllowOriginFunc == nil {
				c.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				c.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if exposeHeaders != "" {
				c.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			// Preflight.
			if allowMethods != "" {
				c.Header().Set("Access-Control-Allow-Methods", allowMethods)
			} else {
				c.Header().Set("Access-Control-Allow-Methods", c.Request().Header.Get("Access-Control-Request-Method"))
			}
			if allowHeaders != "" {
				c.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			} else if reqHeaders := c.Request().Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				c.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			}
			if opts.MaxAge > 0 {
				c.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(opts.MaxAge.Seconds())))
			}
			if opts.AllowPrivateNetwork && c.Request().Header.Get("Access-Control-Request-Private-Network") == "true" {
				c.Header().Set("Access-Control-Allow-Private-Network", "true")
			}

			return c.NoContent()
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// AllowAll returns permissive CORS middleware suitable for public APIs
// and local development: any origin, with no credentials support.
func AllowAll() breeze.Middleware {
	return New(Options{AllowOrigins: []string{"*"}})
}

// WithOrigins returns CORS middleware allowing exactly the given
// origins.
func WithOrigins(origins ...string) breeze.Middleware {
	return New(Options{AllowOrigins: origins})
}
