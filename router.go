package breeze

import (
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
)

// Endpoint produces a response from a request. A Router is itself an
// Endpoint, which enables nesting: server.Mount("/api", inner).
type Endpoint interface {
	Call(c *Ctx) error
}

// EndpointFunc adapts a plain function to Endpoint.
type EndpointFunc func(c *Ctx) error

func (f EndpointFunc) Call(c *Ctx) error { return f(c) }

// notFoundEndpoint is the single, deterministic representation of
// "not found" used throughout breeze: a built-in endpoint value, never
// an error carrier (resolves spec.md's open question).
var notFoundEndpoint = EndpointFunc(func(c *Ctx) error {
	c.resp.SetStatus(http.StatusNotFound)
	c.resp.SetBody(NewBytesBody([]byte(http.StatusText(http.StatusNotFound))))
	return nil
})

// methodNotAllowedEndpoint reports 405 with an Allow header listing the
// methods registered at leaf.
func methodNotAllowedEndpoint(leaf *node) Endpoint {
	return EndpointFunc(func(c *Ctx) error {
		allow := make([]string, 0, len(leaf.methods))
		for m := range leaf.methods {
			allow = append(allow, m)
		}
		sort.Strings(allow)
		c.resp.Header().Set("Allow", strings.Join(allow, ", "))
		c.resp.SetStatus(http.StatusMethodNotAllowed)
		c.resp.SetBody(NewBytesBody([]byte(http.StatusText(http.StatusMethodNotAllowed))))
		return nil
	})
}

// Router dispatches by path and method, and composes middleware chains.
// A Router value returned by Prefix/With is a lightweight builder: it
// shares the owning root's trie and frozen state, and carries its own
// middleware snapshot (copied at branch time, following the teacher's
// ResourceHandle/nest pattern).
type Router struct {
	self *Router // the owning root; self == this for the root Router

	base       string
	middleware []Middleware

	// localTable is the trie this builder registers routes into: the
	// root Router's own table, or a subdomain namespace's table when
	// this builder descends from Subdomain. Always non-nil.
	localTable *node

	// root-only fields:
	namespaces   *subdomainRouter
	errorHandler func(c *Ctx, err error)
	logger       *slog.Logger
	frozen       atomic.Bool
	Compat       *httpRouter
}

// NewRouter creates an empty root Router.
func NewRouter() *Router {
	r := &Router{
		localTable: newNode(),
		logger:     slog.Default(),
	}
	r.self = r
	r.Compat = &httpRouter{r: r}
	return r
}

func (r *Router) root() *Router { return r.self }

// Logger returns the router's logger.
func (r *Router) Logger() *slog.Logger { return r.root().logger }

// SetLogger sets the router's logger; a nil logger is ignored.
func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.root().logger = l
	}
}

// ErrorHandler installs a custom error-to-response translator, invoked
// whenever dispatch produces a non-nil error (including recovered
// panics, wrapped as *PanicError).
func (r *Router) ErrorHandler(h func(c *Ctx, err error)) {
	r.root().errorHandler = h
}

// Use appends global middleware to this builder's snapshot. Forbidden
// once the owning App has started serving.
func (r *Router) Use(mws ...Middleware) *Router {
	r.checkNotFrozen()
	r.middleware = append(r.middleware, mws...)
	return r
}

// With returns a new builder scoped to this Router's path prefix, with
// mws appended after the current middleware snapshot.
func (r *Router) With(mws ...Middleware) *Router {
	child := &Router{self: r.root(), base: r.base, middleware: append(copyMW(r.middleware), mws...), localTable: r.localTable}
	return child
}

// Prefix returns a new builder for routes under base+prefix, inheriting
// the current middleware snapshot.
func (r *Router) Prefix(prefix string) *Router {
	child := &Router{self: r.root(), base: joinPath(r.base, prefix), middleware: copyMW(r.middleware), localTable: r.localTable}
	return child
}

// Subdomain returns a new builder whose routes are matched only when
// the request Host recognizes pattern as a subdomain namespace (see
// subdomain.go). pattern is a dot-separated label pattern, e.g. "api"
// or ":tenant.internal", matched against the labels below the
// registrable domain.
func (r *Router) Subdomain(pattern string) *Router {
	root := r.root()
	if root.namespaces == nil {
		root.namespaces = newSubdomainRouter()
	}
	child := &Router{self: root, base: "/", middleware: copyMW(r.middleware), localTable: newNode()}
	must(root.namespaces.register(pattern, child))
	return child
}

func copyMW(mws []Middleware) []Middleware {
	out := make([]Middleware, len(mws))
	copy(out, mws)
	return out
}

func (r *Router) checkNotFrozen() {
	if r.root().frozen.Load() {
		panic("breeze: cannot register routes or middleware after serving has begun")
	}
}

// Add registers h for method at path, relative to this builder's base.
func (r *Router) Add(path, method string, h Handler) error {
	r.checkNotFrozen()
	full := joinPath(r.base, path)
	segs, err := compilePattern(full)
	if err != nil {
		return err
	}
	leaf, err := r.localTable.insert(segs)
	if err != nil {
		return err
	}
	if leaf.methods == nil {
		leaf.methods = make(map[string]*routeEntry)
	}
	leaf.methods[method] = &routeEntry{handler: h, middleware: copyMW(r.middleware)}
	return nil
}

// AddAll registers a method-fallback endpoint at path.
func (r *Router) AddAll(path string, h Handler) error {
	r.checkNotFrozen()
	full := joinPath(r.base, path)
	segs, err := compilePattern(full)
	if err != nil {
		return err
	}
	leaf, err := r.localTable.insert(segs)
	if err != nil {
		return err
	}
	leaf.anyMethod = &routeEntry{handler: h, middleware: copyMW(r.middleware)}
	return nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func (r *Router) Get(path string, h Handler) *Router     { must(r.Add(path, http.MethodGet, h)); return r }
func (r *Router) Post(path string, h Handler) *Router     { must(r.Add(path, http.MethodPost, h)); return r }
func (r *Router) Put(path string, h Handler) *Router      { must(r.Add(path, http.MethodPut, h)); return r }
func (r *Router) Delete(path string, h Handler) *Router   { must(r.Add(path, http.MethodDelete, h)); return r }
func (r *Router) Patch(path string, h Handler) *Router    { must(r.Add(path, http.MethodPatch, h)); return r }
func (r *Router) Head(path string, h Handler) *Router     { must(r.Add(path, http.MethodHead, h)); return r }
func (r *Router) Options(path string, h Handler) *Router  { must(r.Add(path, http.MethodOptions, h)); return r }
func (r *Router) Any(path string, h Handler) *Router      { must(r.AddAll(path, h)); return r }

// Mount splices ep under prefix: the outer router strips the prefix
// before delegating, as spec.md §4.4 describes. Works for any Endpoint,
// including another *Router (nesting) — this implements spec.md's
// nest/strip_prefix operations.
func (r *Router) Mount(prefix string, ep Endpoint) *Router {
	h := stripPrefixHandler(prefix, ep)
	must(r.AddAll(prefix, h))
	must(r.AddAll(joinPath(prefix, "*__mounted_tail"), h))
	return r
}

// Nest is an alias for Mount using spec.md's vocabulary: it splices an
// inner Router's routes under prefix.
func (r *Router) Nest(prefix string, inner *Router) *Router {
	return r.Mount(prefix, inner)
}

// StripPrefix serves ep with the request URL path rewritten to the
// remaining tail below prefix.
func (r *Router) StripPrefix(prefix string, ep Endpoint) *Router {
	return r.Mount(prefix, ep)
}

func stripPrefixHandler(prefix string, ep Endpoint) Handler {
	return func(c *Ctx) error {
		rest := "/"
		if ts, ok := c.Param(mountTailParam); ok && ts != "" {
			rest = cleanLeading(ts)
		}
		c.req.URL.Path = rest
		return ep.Call(c)
	}
}

// mountTailParam is the fixed capture name used to record the tail of
// the path below a Mount/Nest/StripPrefix prefix.
const mountTailParam = "__mounted_tail"

// Call implements Endpoint, letting a Router be nested inside another.
func (r *Router) Call(c *Ctx) error {
	return r.dispatch(c)
}

// ServeHTTP implements http.Handler: the App/root Router entry point.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.root().frozen.Store(true)
	c := newCtx(w, req, nil)
	c.router = r
	err := r.dispatch(c)
	r.finish(c, err)
}

// Respond runs the full pipeline synchronously against req and returns
// the resulting Response, without writing to any http.ResponseWriter.
// Used for tests and for nesting evaluation outside of ServeHTTP.
func (r *Router) Respond(req *http.Request) *Response {
	rw := &bufferedWriter{header: make(http.Header), suppressBody: req.Method == http.MethodHead}
	r.ServeHTTP(rw, req)
	return rw.response()
}

func (r *Router) dispatch(c *Ctx) error {
	host := c.req.Host
	if h, _, err := splitHostPort(host); err == nil {
		host = h
	}

	// fallbackMW wraps the built-in 404/405 endpoints. A namespace
	// builder's middleware already begins with the global middleware it
	// was created under, just as every routeEntry's middleware already
	// holds the full chain of the builder that registered it.
	fallbackMW := r.root().middlewareGlobal()
	table := r.root().localTable
	if ns := r.root().namespaces; ns != nil && host != "" {
		if m, ok := ns.recognize(host); ok {
			c.pushParams(m.params)
			fallbackMW = m.middleware
			table = m.table
		}
	}

	segs := splitPath(c.req.URL.Path)
	mr, ok := table.match(segs)

	var entry *routeEntry
	methodNotAllowed := false
	if ok {
		c.pushParams(mr.params)
		method := c.req.Method
		leaf := mr.leaf
		if e, exists := leaf.methods[method]; exists {
			entry = e
		} else if method == http.MethodHead {
			if e, exists := leaf.methods[http.MethodGet]; exists {
				entry = e
			}
		}
		if entry == nil && leaf.anyMethod != nil {
			entry = leaf.anyMethod
		}
		if entry == nil && len(leaf.methods) > 0 {
			methodNotAllowed = true
		}
	}

	if methodNotAllowed {
		leaf := mr.leaf
		return chain(copyMW(fallbackMW), func(c *Ctx) error {
			return methodNotAllowedEndpoint(leaf).Call(c)
		})(c)
	}

	if entry == nil {
		return chain(copyMW(fallbackMW), func(c *Ctx) error {
			return notFoundEndpoint.Call(c)
		})(c)
	}

	h := chain(entry.middleware, entry.handler)
	return r.runWithRecover(c, h)
}

// middlewareGlobal returns the global (root-level) middleware snapshot.
func (r *Router) middlewareGlobal() []Middleware {
	return r.middleware
}

func (r *Router) runWithRecover(c *Ctx, h Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newPanicError(rec)
		}
	}()
	return h(c)
}

func (r *Router) finish(c *Ctx, err error) {
	if err != nil {
		if r.root().errorHandler != nil {
			r.root().errorHandler(c, err)
		} else {
			defaultErrorHandler(c, err)
		}
	}
	if c.streamed {
		return
	}
	_ = c.resp.flush(c.w)
}

func defaultErrorHandler(c *Ctx, err error) {
	status := http.StatusInternalServerError
	var appErr *Error
	if asErr(err, &appErr) {
		status = appErr.Status()
	}
	c.resp.SetStatus(status)
	c.resp.SetErr(err)
	c.resp.SetBody(NewBytesBody([]byte(http.StatusText(status))))
}

func asErr(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		if pe, ok := err.(*PanicError); ok {
			_ = pe
			return false
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// joinPath joins a base path and a relative path into a clean absolute
// path.
func joinPath(base, rel string) string {
	if base == "" {
		base = "/"
	}
	if rel == "" || rel == "/" {
		return cleanLeading(base)
	}
	b := strings.TrimSuffix(base, "/")
	r := strings.TrimPrefix(rel, "/")
	if b == "" {
		return cleanLeading(r)
	}
	return b + "/" + r
}

// cleanLeading ensures s starts with exactly one leading slash.
func cleanLeading(s string) string {
	if s == "" {
		return "/"
	}
	if strings.HasPrefix(s, "/") {
		return s
	}
	return "/" + s
}

// splitHostPort strips an optional port from a Host header value. Bare
// hostnames (no colon) are returned unchanged.
func splitHostPort(hostport string) (host string, port string, err error) {
	if !strings.Contains(hostport, ":") {
		return hostport, "", nil
	}
	return net.SplitHostPort(hostport)
}

// Static serves fsys under prefix using http.FileServer's own directory
// listing, trailing-slash redirect, and index.html behavior.
func (r *Router) Static(prefix string, fsys http.FileSystem) *Router {
	trimmed := strings.TrimSuffix(prefix, "/")
	fileServer := http.StripPrefix(trimmed, http.FileServer(fsys))
	// The bare prefix strips to an empty path, which http.FileServer
	// serves as "/" without redirecting, so redirect it here.
	handler := rawHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == trimmed {
			http.Redirect(w, req, trimmed+"/", http.StatusMovedPermanently)
			return
		}
		fileServer.ServeHTTP(w, req)
	}))

	must(r.Add(prefix, http.MethodGet, handler))
	must(r.Add(prefix, http.MethodHead, handler))
	tail := joinPath(prefix, "*__static_tail")
	must(r.Add(tail, http.MethodGet, handler))
	must(r.Add(tail, http.MethodHead, handler))
	return r
}

// rawHandler adapts a stdlib http.Handler into a breeze Handler that
// writes directly to the underlying ResponseWriter, bypassing response
// buffering entirely.
func rawHandler(h http.Handler) Handler {
	return func(c *Ctx) error {
		c.streamed = true
		h.ServeHTTP(c.w, c.req)
		return nil
	}
}

// httpRouter bridges stdlib http.Handler-shaped code into a Router: it
// lets existing net/http middleware and handlers mount directly,
// without adapting to breeze's Handler/Middleware types.
type httpRouter struct {
	r *Router
}

// Handle registers h for every HTTP method at path.
func (hr *httpRouter) Handle(path string, h http.Handler) *httpRouter {
	must(hr.r.AddAll(path, rawHandler(h)))
	return hr
}

// HandleMethod registers h for exactly one HTTP method at path; other
// methods receive 405 with an Allow header.
func (hr *httpRouter) HandleMethod(method, path string, h http.Handler) *httpRouter {
	must(hr.r.Add(path, method, rawHandler(h)))
	return hr
}

// Mount delegates every request under prefix (and its subtree) to h
// unconditionally, without stripping or rewriting the request path.
func (hr *httpRouter) Mount(prefix string, h http.Handler) *httpRouter {
	handler := rawHandler(h)
	must(hr.r.AddAll(prefix, handler))
	must(hr.r.AddAll(joinPath(prefix, "*__compat_tail"), handler))
	return hr
}

// Use bridges a standard net/http middleware (func(http.Handler)
// http.Handler) into the router's global middleware chain.
func (hr *httpRouter) Use(mw func(http.Handler) http.Handler) *httpRouter {
	hr.r.Use(func(next Handler) Handler {
		return func(c *Ctx) error {
			c.streamed = true
			var innerErr error
			stdNext := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				c.w = w
				c.req = req
				innerErr = next(c)
			})
			mw(stdNext).ServeHTTP(c.w, c.req)
			return innerErr
		}
	})
	return hr
}

// Group scopes fn's registrations under prefix, the stdlib-bridge
// equivalent of Router.Prefix.
func (hr *httpRouter) Group(prefix string, fn func(g *httpRouter)) *httpRouter {
	fn(&httpRouter{r: hr.r.Prefix(prefix)})
	return hr
}
