package breeze

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubdomain_RoutesMatchingHost(t *testing.T) {
	r := NewRouter()
	r.Get("/", handlerText("main site"))

	api := r.Subdomain("api")
	api.Get("/ping", handlerText("pong"))

	rr := httptest.NewRecorder()
	req := mustReq(t, http.MethodGet, "/ping")
	req.Host = "api.example.com"
	r.ServeHTTP(rr, req)
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "pong")
}

func TestSubdomain_ApexHostNeverMatchesNamespace(t *testing.T) {
	r := NewRouter()
	r.Get("/ping", handlerText("main"))

	api := r.Subdomain("api")
	api.Get("/ping", handlerText("api"))

	rr := httptest.NewRecorder()
	req := mustReq(t, http.MethodGet, "/ping")
	req.Host = "example.com"
	r.ServeHTTP(rr, req)
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "main")
}

func TestSubdomain_NamedWildcardCapturesLabel(t *testing.T) {
	r := NewRouter()
	tenant := r.Subdomain(":tenant")
	tenant.Get("/", func(c *Ctx) error {
		name, _ := c.Param("tenant")
		return c.Text(http.StatusOK, name)
	})

	rr := httptest.NewRecorder()
	req := mustReq(t, http.MethodGet, "/")
	req.Host = "acme.example.com"
	r.ServeHTTP(rr, req)
	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "acme")
}

func TestSubdomain_StaticBeatsWildcard(t *testing.T) {
	r := NewRouter()

	tenant := r.Subdomain(":tenant")
	tenant.Get("/", handlerText("wildcard"))

	admin := r.Subdomain("admin")
	admin.Get("/", handlerText("static"))

	rr := httptest.NewRecorder()
	req := mustReq(t, http.MethodGet, "/")
	req.Host = "admin.example.com"
	r.ServeHTTP(rr, req)
	ok(t, rr.Body.String(), "static")

	rr = httptest.NewRecorder()
	req = mustReq(t, http.MethodGet, "/")
	req.Host = "other.example.com"
	r.ServeHTTP(rr, req)
	ok(t, rr.Body.String(), "wildcard")
}

func TestSubdomain_LongestMatchWithinSameClassWins(t *testing.T) {
	r := NewRouter()

	api := r.Subdomain("api")
	api.Get("/", handlerText("api"))

	apiEU := r.Subdomain("eu.api")
	apiEU.Get("/", handlerText("api-eu"))

	rr := httptest.NewRecorder()
	req := mustReq(t, http.MethodGet, "/")
	req.Host = "eu.api.example.com"
	r.ServeHTTP(rr, req)
	ok(t, rr.Body.String(), "api-eu")
}

func TestSubdomain_DuplicateStaticPatternPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for a duplicate static subdomain pattern")
		}
	}()
	r := NewRouter()
	r.Subdomain("api")
	r.Subdomain("api")
}

func TestSubdomain_TiedWildcardPatternsPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for two same-length wildcard subdomain patterns")
		}
	}()
	r := NewRouter()
	r.Subdomain(":tenant")
	r.Subdomain(":region")
}

func TestCompileSubdomainLabels_RejectsTailSegment(t *testing.T) {
	if _, err := compileSubdomainLabels("*tail"); err == nil {
		t.Fatal("expected error for tail segment in subdomain pattern")
	}
}

func TestCompileSubdomainLabels_RejectsDuplicateCaptureName(t *testing.T) {
	if _, err := compileSubdomainLabels(":tenant.:tenant"); err == nil {
		t.Fatal("expected error for duplicate capture name")
	}
}
