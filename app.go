package breeze

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
)

// App owns the HTTP server lifecycle on top of a Router: graceful
// shutdown, a readiness flag, and structured startup/shutdown logs.
type App struct {
	*Router

	preShutdownDelay time.Duration
	shutdownTimeout  time.Duration

	shuttingDown atomic.Bool
	log          *slog.Logger
	listener     Listener
}

// AppOption configures an App at construction time.
type AppOption func(*App)

// WithLogger sets the app logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.log = l
			a.Router.SetLogger(l)
		}
	}
}

// WithPreShutdownDelay sets the delay after flipping readiness to false
// and before calling http.Server.Shutdown, giving load balancers a
// chance to notice via HealthzHandler.
func WithPreShutdownDelay(d time.Duration) AppOption {
	return func(a *App) {
		if d >= 0 {
			a.preShutdownDelay = d
		}
	}
}

// WithShutdownTimeout bounds how long graceful drain is allowed to run
// before the server is force-closed.
func WithShutdownTimeout(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// New creates an App with conservative defaults: a one second
// pre-shutdown delay and a fifteen second drain window.
func New(opts ...AppOption) *App {
	r := NewRouter()
	a := &App{
		Router:           r,
		preShutdownDelay: 1 * time.Second,
		shutdownTimeout:  15 * time.Second,
		log:              r.Logger(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger { return a.log }

// HealthzHandler reports 200 while serving and 503 once shutdown has
// begun, for use behind a load balancer health check.
func (a *App) HealthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if a.shuttingDown.Load() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
}

// Listen starts an HTTP server at addr and handles SIGINT/SIGTERM for
// graceful shutdown.
func (a *App) Listen(addr string) error {
	srv := &http.Server{Addr: addr, Handler: a}
	return a.serveWithSignals(srv, func() error { return srv.ListenAndServe() })
}

// ListenTLS starts an HTTPS server at addr and handles SIGINT/SIGTERM.
func (a *App) ListenTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{Addr: addr, Handler: a}
	return a.serveWithSignals(srv, func() error { return srv.ListenAndServeTLS(certFile, keyFile) })
}

// Serve serves on a caller-supplied net.Listener and handles
// SIGINT/SIGTERM.
func (a *App) Serve(l net.Listener) error {
	srv := &http.Server{Addr: l.Addr().String(), Handler: a}
	return a.serveWithSignals(srv, func() error { return srv.Serve(l) })
}

// ListenURL binds addr using the breeze.Listener URL grammar (tcp://,
// http://, http+unix://, or a bare host:port) and serves on it,
// handling SIGINT/SIGTERM.
func (a *App) ListenURL(ctx context.Context, addr string) error {
	l, err := ParseListener(addr)
	if err != nil {
		return err
	}
	a.listener = l
	nl, err := l.Listen(ctx)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: nl.Addr().String(), Handler: a}
	return a.serveWithSignals(srv, func() error { return srv.Serve(nl) })
}

// ServeContext runs srv via serveFn until ctx is canceled, then
// performs a graceful drain bounded by the app's shutdown timeout.
func (a *App) ServeContext(ctx context.Context, srv *http.Server, serveFn func() error) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }

	log := a.Logger().With(
		slog.String("addr", srv.Addr),
		slog.Int("pid", os.Getpid()),
		slog.String("go_version", runtime.Version()),
	)
	log.Info("server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := serveFn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server start failed", slog.Any("error", err))
		}
		return err

	case <-ctx.Done():
		start := time.Now()
		a.shuttingDown.Store(true)
		log.Info("shutdown initiated")

		if a.preShutdownDelay > 0 {
			time.Sleep(a.preShutdownDelay)
		}

		drainCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(drainCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("graceful shutdown incomplete", slog.Any("error", err))
			_ = srv.Close()
			cancelBase()
		} else {
			cancelBase()
		}

		if err := <-errCh; err != nil {
			log.Error("server exit error after shutdown", slog.Any("error", err))
			return err
		}

		log.Info("server stopped gracefully", slog.Duration("duration", time.Since(start)))
		return nil
	}
}

func (a *App) serveWithSignals(srv *http.Server, serveFn func() error) error {
	parent, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.ServeContext(parent, srv, serveFn)
}
