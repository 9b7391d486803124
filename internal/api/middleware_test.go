package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testAPIKey = "test-secret-key-12345"

// mockHandler is a simple handler that records if it was called
func mockHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}), &called
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + testAPIKey, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testAPIKey, http.StatusUnauthorized},
		{"lowercase bearer", "bearer " + testAPIKey, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, called := mockHandler()
			req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(testAPIKey)(handler).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if *called != (tt.want == http.StatusOK) {
				t.Errorf("handler called = %v", *called)
			}
		})
	}
}

func TestAuthMiddleware_EmptyKeyRejectsEverything(t *testing.T) {
	handler, called := mockHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()

	AuthMiddleware("")(handler).ServeHTTP(w, req)

	if *called || w.Code != http.StatusUnauthorized {
		t.Errorf("empty key must not authorize; status = %d", w.Code)
	}
}

func TestAuthMiddleware_ResponseDoesNotLeakKey(t *testing.T) {
	handler, _ := mockHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()

	AuthMiddleware(testAPIKey)(handler).ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), testAPIKey) {
		t.Error("response body contains the API key")
	}
}

func TestIdentityMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	})
	mw := IdentityMiddleware("owner")(next)

	req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
	req.Header.Set(UserIDHeader, "ana")
	mw.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "ana" {
		t.Errorf("user = %q, want ana", seen)
	}

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sync", nil))
	if seen != "owner" {
		t.Errorf("user = %q, want default owner", seen)
	}
}

func TestIdentityMiddleware_RejectsOversizedID(t *testing.T) {
	handler, called := mockHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
	req.Header.Set(UserIDHeader, strings.Repeat("x", 500))
	w := httptest.NewRecorder()

	IdentityMiddleware("owner")(handler).ServeHTTP(w, req)

	if *called || w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	handler, _ := mockHandler()
	limiter := NewRateLimiter(0.001, 2)
	mw := IdentityMiddleware("owner")(limiter.Middleware(handler))

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set(UserIDHeader, user)
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)
		return w.Code
	}

	if do("ana") != 200 || do("ana") != 200 {
		t.Fatal("burst of 2 should pass")
	}
	if code := do("ana"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
	if code := do("bia"); code != 200 {
		t.Errorf("other users have their own bucket; status = %d", code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	w := httptest.NewRecorder()

	RecoveryMiddleware(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic value leaked to client")
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := httptest.NewRecorder()

	LoggingMiddleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}
