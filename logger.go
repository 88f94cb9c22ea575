package breeze

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Mode selects the request logger's output format.
type Mode int

const (
	// Auto picks Dev when Output is a terminal, Prod otherwise.
	Auto Mode = iota
	Dev
	Prod
)

// LoggerOptions configures the Logger middleware.
type LoggerOptions struct {
	Mode   Mode
	Output io.Writer // defaults to os.Stderr
	Logger *slog.Logger // if set, used directly: Output and Color are ignored, and Mode only decides whether latency_human is logged

	UserAgent       bool
	RequestIDHeader string // incoming header read for the request id; defaults to X-Request-Id
	RequestIDGen    func() string

	TraceExtractor func(ctx context.Context) (traceID string, spanID string, sampled bool)

	Color *bool // explicit color override for Dev output; nil defers to environment/terminal detection
}

const defaultRequestIDHeader = "X-Request-Id"

// Logger returns request-logging middleware: one log line per request,
// carrying method, path, host, query, status, duration, and (when
// available) request id and trace context.
func Logger(opts LoggerOptions) Middleware {
	log := opts.Logger
	if log == nil {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		log = slog.New(resolveHandler(opts.Mode, out, opts.Color))
	}

	idHeader := opts.RequestIDHeader
	if idHeader == "" {
		idHeader = defaultRequestIDHeader
	}

	return func(next Handler) Handler {
		return func(c *Ctx) error {
			start := time.Now()
			err := next(c)
			dur := time.Since(start)

			status := c.resp.Status()
			if status == 0 {
				status = 200
			}

			attrs := []slog.Attr{
				slog.Int("status", status),
				slog.String("method", c.req.Method),
				slog.String("path", c.req.URL.Path),
				slog.String("host", c.req.Host),
				slog.String("query", c.req.URL.RawQuery),
				slog.Int64("duration_ms", dur.Milliseconds()),
			}

			if opts.Mode == Dev {
				attrs = append(attrs, slog.String("latency_human", humanDuration(dur)))
			}

			if opts.UserAgent {
				attrs = append(attrs, slog.String("user_agent", c.req.Header.Get("User-Agent")))
			}

			id := c.req.Header.Get(idHeader)
			if id == "" && opts.RequestIDGen != nil {
				id = opts.RequestIDGen()
				c.resp.Header().Set(defaultRequestIDHeader, id)
			}
			if id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			if opts.TraceExtractor != nil {
				if traceID, spanID, sampled := opts.TraceExtractor(c.Context()); traceID != "" {
					attrs = append(attrs,
						slog.String("trace_id", traceID),
						slog.String("span_id", spanID),
						slog.Bool("trace_sampled", sampled),
					)
				}
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}

			level := levelFor(status, err)
			log.LogAttrs(c.Context(), level, "request", attrs...)
			return err
		}
	}
}

func resolveHandler(mode Mode, out io.Writer, color *bool) slog.Handler {
	switch mode {
	case Dev:
		return newColorTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}, color)
	case Prod:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	default: // Auto
		if isTerminal(out) {
			return newColorTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}, color)
		}
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
}

// levelFor maps a response status and handler error to a log level.
func levelFor(status int, err error) slog.Level {
	if err != nil {
		return slog.LevelError
	}
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// humanDuration renders d at whichever unit keeps it readable, using
// the same thresholds as Go's time.Duration.String but with tighter
// precision for sub-millisecond timings.
func humanDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// attrInt extracts an integer value from a slog.Attr regardless of
// which numeric Kind it was constructed with.
func attrInt(a slog.Attr) (int64, bool) {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	default:
		return 0, false
	}
}

// colorTextHandler is a minimal slog.Handler producing human-readable,
// optionally ANSI-colored lines: "time level msg key=value ...".
type colorTextHandler struct {
	out    io.Writer
	opts   *slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions, colorOverride *bool) *colorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	color := supportsColorEnv() || isTerminal(w)
	if colorOverride != nil {
		color = *colorOverride
	}
	return &colorTextHandler{out: w, opts: opts, color: color}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &colorTextHandler{out: h.out, opts: h.opts, color: h.color, groups: h.groups}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	next := &colorTextHandler{out: h.out, opts: h.opts, color: h.color, attrs: h.attrs}
	next.groups = append(append([]string{}, h.groups...), name)
	return next
}

func (h *colorTextHandler) Handle(_ context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(h.colorLevel(rec.Level))
	b.WriteByte(' ')
	b.WriteString(rec.Message)

	write := func(key string, val slog.Value) {
		b.WriteByte(' ')
		if key == "status" {
			if n, ok := attrInt(slog.Any(key, val.Any())); ok {
				b.WriteString(fmt.Sprintf("status=%s", h.colorStatus(int(n))))
				return
			}
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(val.String())
	}

	for _, a := range h.attrs {
		write(a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		write(a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *colorTextHandler) colorLevel(l slog.Level) string {
	s := l.String()
	if !h.color {
		return s
	}
	code := 37
	switch {
	case l >= slog.LevelError:
		code = 31
	case l >= slog.LevelWarn:
		code = 33
	case l >= slog.LevelInfo:
		code = 32
	}
	return ansiWrap(code, s)
}

func (h *colorTextHandler) colorStatus(status int) string {
	s := strconv.Itoa(status)
	if !h.color {
		return s
	}
	code := 37
	switch {
	case status >= 500:
		code = 31
	case status >= 400:
		code = 33
	case status >= 300:
		code = 36
	case status >= 200:
		code = 32
	}
	return ansiWrap(code, s)
}

func ansiWrap(code int, s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, s)
}

// supportsColorEnv reports whether the environment requests ANSI color
// output, independent of whether the destination is a terminal:
// NO_COLOR disables, FORCE_COLOR enables, and otherwise it depends on
// TERM (never on Windows consoles, which need a different API).
func supportsColorEnv() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if runtime.GOOS == "windows" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// isTerminal reports whether w is a character-device *os.File, such as
// a real console rather than a redirected file or in-memory buffer.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
