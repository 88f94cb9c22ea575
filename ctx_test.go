package breeze

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func jsonReq(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCtx_BindDecodesJSON(t *testing.T) {
	r := NewRouter()
	var got struct{ Name string }
	r.Post("/echo", func(c *Ctx) error {
		if err := c.Bind(&got, 0); err != nil {
			return err
		}
		return c.NoContent()
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, jsonReq(t, http.MethodPost, "/echo", `{"Name":"ada"}`))
	ok(t, rr.Code, http.StatusNoContent)
	ok(t, got.Name, "ada")
}

func TestCtx_BindRejectsOversizedBody(t *testing.T) {
	r := NewRouter()
	r.Post("/echo", func(c *Ctx) error {
		var v map[string]any
		return c.Bind(&v, 4)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, jsonReq(t, http.MethodPost, "/echo", `{"a":"b"}`))
	ok(t, rr.Code, http.StatusBadRequest)
}

func TestCtx_QueryReturnsFirstValue(t *testing.T) {
	r := NewRouter()
	r.Get("/search", func(c *Ctx) error {
		q, _ := c.Query("q")
		return c.Text(http.StatusOK, q)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/search?q=gophers&q=again"))
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "gophers")
}

func TestCtx_ParamReturnsPathCapture(t *testing.T) {
	r := NewRouter()
	r.Get("/users/:id", func(c *Ctx) error {
		id, ok := c.Param("id")
		if !ok {
			t.Fatal("expected id param")
		}
		return c.Text(http.StatusOK, id)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/users/9"))
	ok(t, rr.Body.String(), "9")
}

func TestCtx_CookieReadsIncomingCookie(t *testing.T) {
	r := NewRouter()
	r.Get("/whoami", func(c *Ctx) error {
		cookie, ok := c.Cookie("session")
		if !ok {
			return c.Text(http.StatusOK, "anonymous")
		}
		return c.Text(http.StatusOK, cookie.Value)
	})

	req := mustReq(t, http.MethodGet, "/whoami")
	req.AddCookie(&http.Cookie{Name: "session", Value: "abc123"})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	ok(t, rr.Body.String(), "abc123")
}

func TestCtx_SetCookieQueuesSetCookieHeader(t *testing.T) {
	r := NewRouter()
	r.Get("/login", func(c *Ctx) error {
		c.SetCookie(&http.Cookie{Name: "session", Value: "xyz"})
		return c.NoContent()
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/login"))

	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" && c.Value == "xyz" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected session cookie to be set")
	}
}

func TestCtx_ClearCookieExpiresIt(t *testing.T) {
	r := NewRouter()
	r.Get("/logout", func(c *Ctx) error {
		c.ClearCookie(&http.Cookie{Name: "session"})
		return c.NoContent()
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/logout"))

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected one expiring cookie, got %+v", cookies)
	}
}

func TestCtx_JSONSetsContentType(t *testing.T) {
	r := NewRouter()
	r.Get("/obj", func(c *Ctx) error {
		return c.JSON(http.StatusOK, map[string]string{"hello": "world"})
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/obj"))
	ok(t, rr.Header().Get("Content-Type"), "application/json; charset=utf-8")

	var v map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	ok(t, v["hello"], "world")
}

func TestCtx_WriteAccumulatesBody(t *testing.T) {
	r := NewRouter()
	r.Get("/chunks", func(c *Ctx) error {
		_, _ = c.WriteString("hello, ")
		_, _ = c.WriteString("world")
		return nil
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/chunks"))
	ok(t, rr.Body.String(), "hello, world")
}

func TestCtx_RedirectSetsLocation(t *testing.T) {
	r := NewRouter()
	r.Get("/old", func(c *Ctx) error {
		return c.Redirect(http.StatusFound, "/new")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/old"))
	ok(t, rr.Code, http.StatusFound)
	ok(t, rr.Header().Get("Location"), "/new")
}

func TestExtension_RoundTrips(t *testing.T) {
	type marker struct{ v int }
	r := NewRouter()
	r.Get("/x", func(c *Ctx) error {
		SetExtension(c, marker{v: 7})
		m, ok := Extension[marker](c)
		if !ok || m.v != 7 {
			t.Fatalf("expected marker{7}, got %+v ok=%v", m, ok)
		}
		return c.NoContent()
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "/x"))
	ok(t, rr.Code, http.StatusNoContent)
}

func TestCtx_BodyStringDecodesValidUTF8(t *testing.T) {
	r := NewRouter()
	var got string
	r.Post("/echo", func(c *Ctx) error {
		s, err := c.BodyString()
		if err != nil {
			return err
		}
		got = s
		return c.NoContent()
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("héllo"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	ok(t, rr.Code, http.StatusNoContent)
	ok(t, got, "héllo")
}

func TestCtx_BodyStringRejectsInvalidUTF8(t *testing.T) {
	r := NewRouter()
	r.Post("/echo", func(c *Ctx) error {
		_, err := c.BodyString()
		return err
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("\xff\xfe"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	ok(t, rr.Code, http.StatusBadRequest)
}

func TestRouter_RespondRunsPipelineWithoutResponseWriter(t *testing.T) {
	r := NewRouter()
	r.Get("/ping", handlerText("pong"))

	resp := r.Respond(mustReq(t, http.MethodGet, "/ping"))
	ok(t, resp.Status(), http.StatusOK)
	body, _ := ReadAll(resp.Body())
	ok(t, string(body), "pong")
}
