package breeze

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func ok(t *testing.T, got, want any) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func mustReq(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, nil)
}

func handlerText(s string) Handler {
	return func(c *Ctx) error { return c.Text(http.StatusOK, s) }
}

func TestRouter_LiteralAndNamedWildcard(t *testing.T) {
	r := NewRouter()
	r.Get("/users/:id", func(c *Ctx) error {
		id, _ := c.Param("id")
		return c.Text(http.StatusOK, id)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/users/42"))
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "42")
}

func TestRouter_LiteralBeatsWildcard(t *testing.T) {
	r := NewRouter()
	r.Get("/users/:id", handlerText("wildcard"))
	r.Get("/users/me", handlerText("literal"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/users/me"))
	ok(t, rr.Body.String(), "literal")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/users/7"))
	ok(t, rr.Body.String(), "wildcard")
}

func TestRouter_TailSegment(t *testing.T) {
	r := NewRouter()
	r.Get("/files/*path", func(c *Ctx) error {
		p, _ := c.Param("path")
		return c.Text(http.StatusOK, p)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/files/a/b/c.txt"))
	ok(t, rr.Body.String(), "a/b/c.txt")
}

func TestRouter_NotFound(t *testing.T) {
	r := NewRouter()
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/missing"))
	ok(t, rr.Code, http.StatusNotFound)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := NewRouter()
	r.Post("/items", handlerText("created"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/items"))
	ok(t, rr.Code, http.StatusMethodNotAllowed)
	if rr.Header().Get("Allow") != "POST" {
		t.Fatalf("expected Allow: POST, got %q", rr.Header().Get("Allow"))
	}
}

func TestRouter_HeadFallsBackToGet(t *testing.T) {
	r := NewRouter()
	r.Get("/ping", handlerText("pong"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodHead, "/ping"))
	ok(t, rr.Code, http.StatusOK)
}

func TestRouter_AnyMethodFallback(t *testing.T) {
	r := NewRouter()
	r.Any("/webhook", handlerText("received"))

	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, mustReq(t, m, "/webhook"))
		ok(t, rr.Body.String(), "received")
	}
}

func mwHeader(key, value string) Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			c.Header().Set(key, value)
			return next(c)
		}
	}
}

func TestRouter_Prefix_With_ScopedMiddleware(t *testing.T) {
	r := NewRouter()
	var order []string
	r.Use(func(next Handler) Handler {
		return func(c *Ctx) error {
			order = append(order, "global")
			return next(c)
		}
	})

	api := r.Prefix("/api")
	api.Use(func(next Handler) Handler {
		return func(c *Ctx) error {
			order = append(order, "global2")
			return next(c)
		}
	})

	apiV1 := api.With(func(next Handler) Handler {
		return func(c *Ctx) error {
			order = append(order, "scoped")
			return next(c)
		}
	})
	apiV1.Get("/ping", func(c *Ctx) error {
		order = append(order, "handler")
		return c.NoContent()
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/api/ping"))
	ok(t, rr.Code, http.StatusNoContent)

	want := []string{"global", "global2", "scoped", "handler"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestRouter_Mount_DelegatesWithStrippedPrefix(t *testing.T) {
	inner := NewRouter()
	inner.Get("/ping", func(c *Ctx) error {
		return c.Text(http.StatusOK, c.Request().URL.Path)
	})

	outer := NewRouter()
	outer.Mount("/api", inner)

	rr := httptest.NewRecorder()
	outer.ServeHTTP(rr, mustReq(t, http.MethodGet, "/api/ping"))
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "/ping")
}

func TestRouter_PanicRecovery(t *testing.T) {
	r := NewRouter()
	r.Get("/boom", func(c *Ctx) error {
		panic("kaboom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/boom"))
	ok(t, rr.Code, http.StatusInternalServerError)
}

func TestRouter_CustomErrorHandler(t *testing.T) {
	r := NewRouter()
	r.ErrorHandler(func(c *Ctx, err error) {
		c.SetStatus(http.StatusTeapot)
	})
	r.Get("/fail", func(c *Ctx) error {
		return NewError(BadRequest, "nope", nil)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/fail"))
	ok(t, rr.Code, http.StatusTeapot)
}

func TestRouter_Static_ServesFilesAndRedirects(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/hello.txt", []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRouter()
	r.Static("/assets", http.Dir(dir))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/assets"))
	ok(t, rr.Code, http.StatusMovedPermanently)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/assets/hello.txt"))
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "hello")
}

func TestCompat_HandleMethod_MethodNotAllowed(t *testing.T) {
	r := NewRouter()
	r.Compat.HandleMethod(http.MethodPost, "/m", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(201)
	}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodPost, "/m"))
	ok(t, rr.Code, 201)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/m"))
	ok(t, rr.Code, http.StatusMethodNotAllowed)
}

func TestCompat_Use_StdMiddlewareBridge(t *testing.T) {
	r := NewRouter()
	stdMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Std", "1")
			next.ServeHTTP(w, req)
		})
	}
	r.Compat.Use(stdMW)
	r.Get("/ok", func(c *Ctx) error {
		_, _ = c.Writer().Write([]byte("ok"))
		return nil
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/ok"))
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Header().Get("X-Std"), "1")
	ok(t, rr.Body.String(), "ok")
}
