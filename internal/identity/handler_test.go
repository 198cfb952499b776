package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrack/subtrack/internal/pkg/httputil"
)

type staticValidator map[string]string

func (v staticValidator) ValidateToken(_ context.Context, token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid")
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(staticValidator{"owner-token": "owner", "guest-token": "guest"}))
		NewHandler("owner").RegisterProtectedRoutes(r)
		r.With(httputil.RequireOwner("owner")).Get("/owner-only", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func do(t *testing.T, h http.Handler, path, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Me(t *testing.T) {
	router := newRouter()

	tests := []struct {
		auth string
		want MeResponse
	}{
		{"Bearer owner-token", MeResponse{UserID: "owner", Owner: true}},
		{"bearer guest-token", MeResponse{UserID: "guest", Owner: false}},
	}

	for _, tt := range tests {
		rec := do(t, router, "/me", tt.auth)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data MeResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, tt.want, body.Data)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	router := newRouter()

	for _, auth := range []string{"", "owner-token", "Basic owner-token", "Bearer unknown"} {
		rec := do(t, router, "/me", auth)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "auth %q", auth)
	}
}

func TestRequireOwner(t *testing.T) {
	router := newRouter()

	assert.Equal(t, http.StatusNoContent, do(t, router, "/owner-only", "Bearer owner-token").Code)
	assert.Equal(t, http.StatusForbidden, do(t, router, "/owner-only", "Bearer guest-token").Code)
}

func TestRequireOwner_EmptyOwnerDeniesEveryone(t *testing.T) {
	r := chi.NewRouter()
	r.Use(httputil.AuthMiddleware(staticValidator{"t": ""}))
	r.With(httputil.RequireOwner("")).Get("/x", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ctx := httputil.WithUserID(context.Background(), "someone")
	req = httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	httputil.RequireOwner("")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
