package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServer_Healthz(t *testing.T) {
	srv := New("", "Camille")
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestServer_Status(t *testing.T) {
	srv := New("", "Camille")
	srv.CallStarted()
	srv.CallStarted()
	srv.CallEnded()

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if body["agent"] != "Camille" {
		t.Errorf("agent = %v", body["agent"])
	}
	if body["active_calls"] != float64(1) {
		t.Errorf("active_calls = %v, want 1", body["active_calls"])
	}
}

func TestServer_ToolDispatch(t *testing.T) {
	srv := New("", "Camille")
	srv.RegisterTool("check_availability", func(ctx context.Context, args map[string]any) map[string]any {
		if args["start_datetime"] != "2025-03-04T10:00:00" {
			t.Errorf("args = %v", args)
		}
		return map[string]any{"available": true}
	})

	body := `{"start_datetime":"2025-03-04T10:00:00","end_datetime":"2025-03-04T10:20:00"}`
	r := httptest.NewRequest(http.MethodPost, "/tools/check_availability", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result["available"] != true {
		t.Errorf("result = %v", result)
	}
}

func TestServer_ToolSchemas(t *testing.T) {
	srv := New("", "Camille")
	r := httptest.NewRequest(http.MethodGet, "/tools", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var schemas []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &schemas); err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 3 {
		t.Fatalf("schemas = %d, want 3", len(schemas))
	}
}

func TestServer_UnknownTool(t *testing.T) {
	srv := New("", "Camille")
	r := httptest.NewRequest(http.MethodPost, "/tools/nope", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServer_ToolUnauthorized(t *testing.T) {
	srv := New("secret", "Camille")
	srv.RegisterTool("check_availability", func(ctx context.Context, args map[string]any) map[string]any {
		return map[string]any{"available": false}
	})

	r := httptest.NewRequest(http.MethodPost, "/tools/check_availability", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r2 := httptest.NewRequest(http.MethodPost, "/tools/check_availability", strings.NewReader("{}"))
	r2.Header.Set("Content-Type", "application/json")
	r2.Header.Set("Authorization", "Bearer secret")
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", w2.Code)
	}
}

func TestAuthOK(t *testing.T) {
	if !authOK(nil, "") {
		t.Fatal("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatal("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatal("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "bearer abc")
	if !authOK(r3, "abc") {
		t.Fatal("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatal("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatal("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatal("expected false with wrong bearer token")
	}
}
