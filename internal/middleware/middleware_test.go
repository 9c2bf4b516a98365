package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/flowchat/internal/model/persona"
	chatservice "github.com/zhouzirui/flowchat/internal/service/chat"
)

func storeKeyHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, ok := StoreFrom(r.Context())
		if !ok {
			t.Fatal("store missing from context")
		}
		w.Write([]byte(store.Key()))
	})
}

func TestUISessionIssuesCookie(t *testing.T) {
	registry := chatservice.NewRegistry(persona.NewMemoryStore(persona.Seed()), nil)
	handler := UISession(registry, "fc")(storeKeyHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "fc" {
		t.Fatalf("expected fc cookie, got %v", cookies)
	}
	if rec.Body.String() != cookies[0].Value {
		t.Fatalf("store key %q does not match cookie %q", rec.Body.String(), cookies[0].Value)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one store, got %d", registry.Len())
	}
}

func TestUISessionReusesCookie(t *testing.T) {
	registry := chatservice.NewRegistry(persona.NewMemoryStore(persona.Seed()), nil)
	handler := UISession(registry, "fc")(storeKeyHandler(t))
	key := "0f8fad5b-d9cb-469f-a165-70867728950e"

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "fc", Value: key})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Body.String() != key {
			t.Fatalf("expected key %s, got %s", key, rec.Body.String())
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Fatal("valid cookie should not be reissued")
		}
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one store, got %d", registry.Len())
	}
}

func TestUISessionRejectsMalformedCookie(t *testing.T) {
	registry := chatservice.NewRegistry(persona.NewMemoryStore(persona.Seed()), nil)
	handler := UISession(registry, "fc")(storeKeyHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "fc", Value: "../../etc/passwd"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.String() == "../../etc/passwd" {
		t.Fatal("malformed cookie must not become a store key")
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatal("expected a fresh cookie")
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))

	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("preflight should short-circuit, got %d called=%v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing allow-origin header")
	}
}

func TestRequestLoggerWritesToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	out := buf.String()
	for _, want := range []string{"request served", "status=418", "path=/teapot", "method=GET", "request_id="} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %q: %s", want, out)
		}
	}
}

func TestRequestLoggerRecordsPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(chimw.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(buf.String(), "request panicked") || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}
