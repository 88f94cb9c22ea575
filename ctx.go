package breeze

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"
)

// Ctx carries one request through its middleware chain and accumulates
// the Response that will eventually be flushed. Handlers read the
// request through Ctx and write the response through Ctx; the
// underlying http.ResponseWriter is touched directly only for
// streaming paths (Stream, SSE, Hijack).
type Ctx struct {
	req    *http.Request
	w      http.ResponseWriter
	router *Router

	resp       *Response
	extensions extensions
	params     map[string]string
	cookieJar  *CookieJar

	streamed bool
}

func newCtx(w http.ResponseWriter, req *http.Request, router *Router) *Ctx {
	return &Ctx{
		req:        req,
		w:          w,
		router:     router,
		resp:       NewResponse(http.StatusOK),
		extensions: newExtensions(),
	}
}

func (c *Ctx) pushParams(p map[string]string) {
	if len(p) == 0 {
		return
	}
	if c.params == nil {
		c.params = make(map[string]string, len(p))
	}
	for k, v := range p {
		c.params[k] = v
	}
}

// Request returns the underlying *http.Request.
func (c *Ctx) Request() *http.Request { return c.req }

// Writer returns the underlying http.ResponseWriter. Using it directly
// bypasses the buffered Response; prefer the Ctx write methods unless
// streaming.
func (c *Ctx) Writer() http.ResponseWriter { return c.w }

// Header returns the buffered Response's header map.
func (c *Ctx) Header() http.Header { return c.resp.Header() }

// Context returns the request's context.Context.
func (c *Ctx) Context() context.Context { return c.req.Context() }

// Logger returns the owning router's logger.
func (c *Ctx) Logger() *slog.Logger {
	if c.router != nil {
		return c.router.Logger()
	}
	return slog.Default()
}

// Response returns the buffered Response, for middleware that needs to
// inspect or mutate it directly (for example the request logger).
func (c *Ctx) Response() *Response { return c.resp }

// Status returns the currently buffered response status.
func (c *Ctx) Status() int { return c.resp.Status() }

// SetStatus sets the buffered response status.
func (c *Ctx) SetStatus(code int) { c.resp.SetStatus(code) }

// Param returns a path capture by name (named wildcard or tail).
func (c *Ctx) Param(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

// Query returns the first value of a URL query parameter.
func (c *Ctx) Query(name string) (string, bool) {
	vv, ok := c.req.URL.Query()[name]
	if !ok || len(vv) == 0 {
		return "", false
	}
	return vv[0], true
}

// QueryValues returns the full parsed query string.
func (c *Ctx) QueryValues() url.Values { return c.req.URL.Query() }

// Form parses (if needed) and returns the request's form values,
// combining URL query and x-www-form-urlencoded body.
func (c *Ctx) Form() (url.Values, error) {
	if err := c.req.ParseForm(); err != nil {
		return nil, NewError(BadRequest, "invalid form body", err)
	}
	return c.req.Form, nil
}

// MultipartForm parses a multipart/form-data body, spilling parts over
// maxMemory bytes to temporary files.
func (c *Ctx) MultipartForm(maxMemory int64) (*multipart.Form, error) {
	if err := c.req.ParseMultipartForm(maxMemory); err != nil {
		return nil, NewError(BadRequest, "invalid multipart body", err)
	}
	return c.req.MultipartForm, nil
}

// Cookie returns a cookie from the incoming request by name.
func (c *Ctx) Cookie(name string) (*http.Cookie, bool) {
	if c.cookieJar == nil {
		c.cookieJar = newCookieJar(c.req)
	}
	return c.cookieJar.Get(name)
}

// SetCookie queues a Set-Cookie header on the buffered response.
func (c *Ctx) SetCookie(cookie *http.Cookie) { c.resp.InsertCookie(cookie) }

// ClearCookie queues a Set-Cookie header that expires the named cookie.
func (c *Ctx) ClearCookie(cookie *http.Cookie) { c.resp.RemoveCookie(cookie) }

// Bind decodes a JSON request body into v, rejecting bodies over
// maxBytes. A non-positive maxBytes disables the limit.
func (c *Ctx) Bind(v any, maxBytes int64) error {
	r := c.req.Body
	if maxBytes > 0 {
		r = http.MaxBytesReader(c.w, c.req.Body, maxBytes)
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return NewError(BadRequest, "invalid request body", err)
	}
	return nil
}

// BodyString reads the request body in full and returns it as a
// string. The body must be valid UTF-8; otherwise BodyString fails
// with a BadBody error.
func (c *Ctx) BodyString() (string, error) {
	b, err := io.ReadAll(c.req.Body)
	if err != nil {
		return "", NewError(Internal, "failed to read request body", err)
	}
	if !utf8.Valid(b) {
		return "", NewError(BadBody, "request body is not valid UTF-8", nil)
	}
	return string(b), nil
}

// NoContent sets a 204 response with no body.
func (c *Ctx) NoContent() error {
	c.resp.SetStatus(http.StatusNoContent)
	c.resp.SetBody(nil)
	return nil
}

// Redirect sets a redirect response to url with the given status code.
func (c *Ctx) Redirect(code int, location string) error {
	c.resp.SetStatus(code)
	c.resp.Header().Set("Location", location)
	c.resp.SetBody(nil)
	return nil
}

// JSON encodes v as the response body with a JSON content type.
func (c *Ctx) JSON(status int, v any) error {
	body := NewJSONBody(v)
	c.resp.SetStatus(status)
	c.resp.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.resp.SetBody(body)
	return nil
}

// HTML sets an HTML response body.
func (c *Ctx) HTML(status int, html string) error {
	c.resp.SetStatus(status)
	c.resp.Header().Set("Content-Type", "text/html; charset=utf-8")
	c.resp.SetBody(NewBytesBody([]byte(html)))
	return nil
}

// Text sets a plain-text response body.
func (c *Ctx) Text(status int, text string) error {
	c.resp.SetStatus(status)
	c.resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.resp.SetBody(NewBytesBody([]byte(text)))
	return nil
}

// Bytes sets a raw response body with the given content type.
func (c *Ctx) Bytes(status int, contentType string, b []byte) error {
	c.resp.SetStatus(status)
	if contentType != "" {
		c.resp.Header().Set("Content-Type", contentType)
	}
	c.resp.SetBody(NewBytesBody(b))
	return nil
}

// Write appends raw bytes to the buffered response body.
func (c *Ctx) Write(p []byte) (int, error) {
	existing, _ := ReadAll(c.resp.Body())
	combined := append(existing, p...)
	c.resp.SetBody(NewBytesBody(combined))
	return len(p), nil
}

// WriteString appends a string to the buffered response body.
func (c *Ctx) WriteString(s string) (int, error) { return c.Write([]byte(s)) }

// File serves a file from disk as the response body.
func (c *Ctx) File(path string) error {
	c.resp.SetBody(NewFileBody(path))
	return nil
}

// Download serves a file from disk with a Content-Disposition header
// forcing the given filename.
func (c *Ctx) Download(path, filename string) error {
	c.resp.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.File(path)
}

// Stream bypasses response buffering: it flushes headers immediately
// and calls write repeatedly until it returns false or an error, using
// http.ResponseController to flush after each write.
func (c *Ctx) Stream(status int, contentType string, write func(w io.Writer) (more bool, err error)) error {
	c.streamed = true
	if contentType != "" {
		c.w.Header().Set("Content-Type", contentType)
	}
	c.w.WriteHeader(status)
	rc := http.NewResponseController(c.w)
	for {
		more, err := write(c.w)
		if err != nil {
			return err
		}
		_ = rc.Flush()
		if !more {
			return nil
		}
	}
}

// SSE writes a text/event-stream response, encoding each event emitted
// by the events function as "data: <payload>\n\n".
func (c *Ctx) SSE(events func(send func(event string, data string) error) error) error {
	c.streamed = true
	h := c.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(c.w)

	send := func(event, data string) error {
		if event != "" {
			if _, err := fmt.Fprintf(c.w, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}
	return events(send)
}

// Flush flushes any data buffered by the underlying ResponseWriter.
func (c *Ctx) Flush() error {
	return http.NewResponseController(c.w).Flush()
}

// SetWriter replaces the underlying http.ResponseWriter, used by
// middleware that wraps it (for example gzip compression).
func (c *Ctx) SetWriter(w http.ResponseWriter) { c.w = w }

// SetWriteDeadline extends the connection's write deadline, where the
// underlying transport supports it.
func (c *Ctx) SetWriteDeadline(t time.Time) error {
	return http.NewResponseController(c.w).SetWriteDeadline(t)
}

// EnableFullDuplex allows reading the request body concurrently with
// writing the response, where the underlying transport supports it.
func (c *Ctx) EnableFullDuplex() error {
	return http.NewResponseController(c.w).EnableFullDuplex()
}

// Hijack takes over the underlying TCP connection, bypassing response
// buffering entirely.
func (c *Ctx) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	c.streamed = true
	return http.NewResponseController(c.w).Hijack()
}
