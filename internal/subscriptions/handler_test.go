package subscriptions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/httputil"
	"github.com/subtrack/subtrack/internal/testutil"
)

const openAPISpecPath = "../../api/openapi/openapi.yaml"

type handlerFixture struct {
	repo      *memRepository
	router    http.Handler
	validator *testutil.OpenAPIValidator
}

func newHandlerFixture(t *testing.T, subs ...*domain.Subscription) *handlerFixture {
	t.Helper()
	repo := newMemRepository(subs...)
	handler := NewHandler(newTestService(repo))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(httputil.WithUserID(r.Context(), testUser)))
			})
		})
		handler.RegisterRoutes(r)
	})

	return &handlerFixture{
		repo:      repo,
		router:    r,
		validator: testutil.NewOpenAPIValidator(t, openAPISpecPath),
	}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	f.validator.ValidateRecorded(t, req, rec)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Message
}

func TestHandler_CreateAndGet(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/me/subscriptions", `{
		"name": "Netflix", "price": 29.9, "renewal_date": "2025-12-20",
		"category": "streaming", "description": "4K plan"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Subscription
	decode(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "R$", created.Currency)
	assert.True(t, created.IsActive)
	assert.Equal(t, domain.BillingMonthly, created.BillingPeriod)

	rec = f.do(t, http.MethodGet, "/api/v1/me/subscriptions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Subscription
	decode(t, rec, &got)
	assert.Equal(t, "Netflix", got.Name)
	assert.Equal(t, "29.9", got.Price.String())
}

func TestHandler_Countdown(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/me/subscriptions", `{
		"name": "Domain", "price": 60, "renewal_date": "2025-12-20",
		"category": "software", "billing_period": "annual"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID        string           `json:"id"`
		Countdown domain.Countdown `json:"countdown"`
	}
	decode(t, rec, &created)
	assert.Equal(t, domain.Countdown{TotalDays: 365, RemainingDays: 8}, created.Countdown)

	rec = f.do(t, http.MethodPatch, "/api/v1/me/subscriptions/"+created.ID,
		`{"billing_period": "monthly", "renewal_date": "2025-12-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	assert.Equal(t, domain.Countdown{TotalDays: 30, RemainingDays: 0}, created.Countdown)

	rec = f.do(t, http.MethodGet, "/api/v1/me/subscriptions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []struct {
		Countdown domain.Countdown `json:"countdown"`
	}
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, 30, list[0].Countdown.TotalDays)
}

func TestHandler_Create_Validation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"invalid json", `{`, "invalid json"},
		{"missing name", `{"price": 1, "renewal_date": "2025-12-20", "category": "other"}`, "validation error"},
		{"bad date", `{"name": "x", "price": 1, "renewal_date": "20/12/2025", "category": "other"}`, "validation error"},
		{"unknown category", `{"name": "x", "price": 1, "renewal_date": "2025-12-20", "category": "food"}`, "validation error"},
		{"zero price", `{"name": "x", "price": 0, "renewal_date": "2025-12-20", "category": "other"}`, domain.ErrPriceNotPositive.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/me/subscriptions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, errorMessage(t, rec))
		})
	}
	assert.Empty(t, f.repo.subs)
}

func TestHandler_List(t *testing.T) {
	f := newHandlerFixture(t,
		sub("Netflix", "55.90", domain.CategoryStreaming, day(28)),
		sub("Spotify", "21.90", domain.CategoryMusic, day(14)),
	)

	rec := f.do(t, http.MethodGet, "/api/v1/me/subscriptions?sort=price&order=desc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []domain.Subscription
	decode(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "Netflix", list[0].Name)

	rec = f.do(t, http.MethodGet, "/api/v1/me/subscriptions?status=expiring", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Spotify", list[0].Name)
}

func TestHandler_List_InvalidFilter(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me/subscriptions?status=paused", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Update(t *testing.T) {
	existing := sub("Netflix", "29.90", domain.CategoryStreaming, day(20))
	f := newHandlerFixture(t, existing)

	rec := f.do(t, http.MethodPatch, "/api/v1/me/subscriptions/"+existing.ID,
		`{"price": 39.9, "billing_period": "annual", "is_active": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored := f.repo.subs[existing.ID]
	assert.Equal(t, "Netflix", stored.Name)
	assert.Equal(t, "39.9", stored.Price.String())
	assert.Equal(t, domain.BillingAnnual, stored.BillingPeriod)
	assert.False(t, stored.IsActive)
	assert.Equal(t, day(20), stored.RenewalDate)
}

func TestHandler_NotFound(t *testing.T) {
	f := newHandlerFixture(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := f.do(t, method, "/api/v1/me/subscriptions/4f0c6a52-8d6b-4c8e-9a0e-0a5f3f0d9b11", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := f.do(t, http.MethodPatch, "/api/v1/me/subscriptions/missing", `{"name": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Delete(t *testing.T) {
	existing := sub("Netflix", "29.90", domain.CategoryStreaming, day(20))
	f := newHandlerFixture(t, existing)

	rec := f.do(t, http.MethodDelete, "/api/v1/me/subscriptions/"+existing.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.repo.subs)
}

func TestHandler_Summary(t *testing.T) {
	f := newHandlerFixture(t, sub("Netflix", "30.00", domain.CategoryStreaming, day(20)))

	rec := f.do(t, http.MethodGet, "/api/v1/me/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum domain.Summary
	decode(t, rec, &sum)
	assert.Equal(t, 1, sum.ActiveSubscriptions)
	assert.Equal(t, "360", sum.ProjectedAnnual.String())
}

func TestHandler_Export(t *testing.T) {
	f := newHandlerFixture(t, sub("Netflix", "30.00", domain.CategoryStreaming, day(20)))

	rec := f.do(t, http.MethodGet, "/api/v1/me/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="subtrack-export-2025-12-12.json"`, rec.Header().Get("Content-Disposition"))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me/export?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = f.do(t, http.MethodGet, "/api/v1/me/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Import(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/me/import",
		`[{"id": "1", "name": "Netflix", "price": 29.9, "renewalDate": "2025-12-20", "category": "streaming"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res ImportResult
	decode(t, rec, &res)
	assert.Equal(t, ImportResult{Created: 1}, res)

	rec = f.do(t, http.MethodPost, "/api/v1/me/import", `[{"id": "2"}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/me/import", `"nope"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
