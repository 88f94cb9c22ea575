package breeze

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Listener binds a network address lazily, returning a net.Listener
// once bound. It exists as an interface (rather than exposing
// net.Listener directly) so that App.ListenURL can accept a parsed URL,
// a concurrent fan-out, or a failover chain interchangeably.
type Listener interface {
	Listen(ctx context.Context) (net.Listener, error)
}

// TCPListener binds a TCP address.
type TCPListener struct {
	Addr string
}

func (t *TCPListener) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, NewError(BindFailed, fmt.Sprintf("listen tcp %s", t.Addr), err)
	}
	return &acceptRetryListener{Listener: l}, nil
}

// UnixListener binds a Unix domain socket at Path, removing any stale
// socket file left behind by a previous, uncleanly-terminated process.
type UnixListener struct {
	Path string
}

func (u *UnixListener) Listen(ctx context.Context) (net.Listener, error) {
	if fi, err := os.Lstat(u.Path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if conn, err := net.Dial("unix", u.Path); err == nil {
			_ = conn.Close() // still served by a live process: leave it
		} else {
			_ = os.Remove(u.Path)
		}
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "unix", u.Path)
	if err != nil {
		return nil, NewError(BindFailed, fmt.Sprintf("listen unix %s", u.Path), err)
	}
	return &acceptRetryListener{Listener: l}, nil
}

// acceptRetryListener wraps Accept so that transient errors (connection
// refused, aborted or reset) are retried immediately and other errors
// after a fixed 500ms pause. Timeouts and a closed listener are returned
// to the caller, so a server that closes its listener stops accepting.
type acceptRetryListener struct {
	net.Listener
}

func (l *acceptRetryListener) Accept() (net.Conn, error) {
	var backoff time.Duration
	for {
		c, err := l.Listener.Accept()
		if err == nil {
			return c, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}
		var ne net.Error
		if errAsNetError(err, &ne) && ne.Timeout() {
			return nil, err
		}
		if isTransientAcceptError(err) {
			continue
		}
		if backoff == 0 {
			backoff = 500 * time.Millisecond
		}
		time.Sleep(backoff)
	}
}

func errAsNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}

func isTransientAcceptError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// ParseListener parses addr using breeze's binding URL grammar:
//
//	tcp://host:port         -> TCPListener
//	http://host:port        -> TCPListener
//	http+unix:///path       -> UnixListener
//	host:port (no scheme)   -> TCPListener
//
// https:// and tls:// are rejected: ParseListener never builds a TLS
// listener. Run a TCPListener behind a TLS-terminating reverse proxy,
// or use App.ListenTLS directly.
func ParseListener(addr string) (Listener, error) {
	if !strings.Contains(addr, "://") {
		return &TCPListener{Addr: addr}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, NewError(BindFailed, "invalid listener url", err)
	}
	switch u.Scheme {
	case "tcp", "http":
		return &TCPListener{Addr: u.Host}, nil
	case "http+unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return &UnixListener{Path: path}, nil
	case "https", "tls":
		return nil, NewError(UnsupportedTransport, fmt.Sprintf("scheme %q requires a TLS-terminating listener", u.Scheme), nil)
	default:
		return nil, NewError(UnsupportedTransport, fmt.Sprintf("unsupported listener scheme %q", u.Scheme), nil)
	}
}

// ListenInfo reports the outcome of one Listener's Listen call within a
// ConcurrentListener fan-out.
type ListenInfo struct {
	Listener Listener
	Addr     net.Addr
	Err      error
}

// Reporter receives one ListenInfo per Listener in a ConcurrentListener.
type Reporter func(ListenInfo)

// ConcurrentListener binds every member Listener in parallel and waits
// for all of them before returning, aggregating addresses and errors
// through an optional Reporter barrier. Listen returns a
// *multiListener merging Accept across every successfully bound
// listener; if every member failed, it returns the first error.
type ConcurrentListener struct {
	Listeners []Listener
	Report    Reporter
}

func (c *ConcurrentListener) Listen(ctx context.Context) (net.Listener, error) {
	var wg sync.WaitGroup
	results := make([]ListenInfo, len(c.Listeners))
	listeners := make([]net.Listener, len(c.Listeners))

	for i, ln := range c.Listeners {
		wg.Add(1)
		go func(i int, ln Listener) {
			defer wg.Done()
			nl, err := ln.Listen(ctx)
			info := ListenInfo{Listener: ln, Err: err}
			if err == nil {
				info.Addr = nl.Addr()
				listeners[i] = nl
			}
			results[i] = info
		}(i, ln)
	}
	wg.Wait()

	var firstErr error
	var ok []net.Listener
	for i, info := range results {
		if c.Report != nil {
			c.Report(info)
		}
		if info.Err != nil {
			if firstErr == nil {
				firstErr = info.Err
			}
			continue
		}
		ok = append(ok, listeners[i])
	}
	if len(ok) == 0 {
		return nil, firstErr
	}
	return newMultiListener(ok), nil
}

// multiListener merges Accept across several underlying net.Listeners.
type multiListener struct {
	conns  chan acceptResult
	closer sync.Once
	lns    []net.Listener
	addr   net.Addr
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func newMultiListener(lns []net.Listener) *multiListener {
	m := &multiListener{conns: make(chan acceptResult), lns: lns, addr: lns[0].Addr()}
	for _, ln := range lns {
		go func(ln net.Listener) {
			for {
				c, err := ln.Accept()
				m.conns <- acceptResult{conn: c, err: err}
				if err != nil {
					return
				}
			}
		}(ln)
	}
	return m
}

func (m *multiListener) Accept() (net.Conn, error) {
	r := <-m.conns
	return r.conn, r.err
}

func (m *multiListener) Close() error {
	var err error
	m.closer.Do(func() {
		for _, ln := range m.lns {
			if cerr := ln.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (m *multiListener) Addr() net.Addr { return m.addr }

// FailoverListener tries each Listener in order, returning the first
// one that binds successfully.
type FailoverListener struct {
	Listeners []Listener
}

func (f *FailoverListener) Listen(ctx context.Context) (net.Listener, error) {
	var lastErr error
	for _, ln := range f.Listeners {
		nl, err := ln.Listen(ctx)
		if err == nil {
			return nl, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// CancellationToken lets a caller stop an in-progress Listen/Serve from
// outside the goroutine running it.
type CancellationToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancellationToken derives a cancellable token from parent.
func NewCancellationToken(parent context.Context) *CancellationToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Context returns the token's context, canceled once Cancel is called.
func (t *CancellationToken) Context() context.Context { return t.ctx }

// Cancel stops the token.
func (t *CancellationToken) Cancel() { t.cancel() }
