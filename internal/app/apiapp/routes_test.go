package apiapp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/config"
)

func newTestHandler(adminToken string) http.Handler {
	r := chi.NewRouter()
	ApplyMiddlewares(r, zap.NewNop())

	cfg := config.Default()
	cfg.Ops.AdminToken = adminToken
	RegisterRoutes(r, Dependencies{
		Logger: zap.NewNop(),
		Config: cfg,
	})
	return r
}

func TestHealthzIsPublic(t *testing.T) {
	handler := newTestHandler("s3cret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
}

func TestOpsRoutesRequireAdminToken(t *testing.T) {
	handler := newTestHandler("s3cret")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/chats/-42/policy"},
		{http.MethodPut, "/v1/chats/-42/policy"},
		{http.MethodGet, "/v1/chats/-42/users/77/warnings"},
		{http.MethodPost, "/v1/chats/-42/users/77/warnings/reset"},
	}

	for _, tc := range paths {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: unexpected status: got %d want %d", tc.method, tc.path, rr.Code, http.StatusUnauthorized)
		}
	}
}
