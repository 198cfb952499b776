//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrack/subtrack/internal/testutil"
)

func TestSubscriptions_CRUD(t *testing.T) {
	client := userClient(t, newUserID())

	created := createSubscription(t, client, map[string]interface{}{
		"name":         "  Netflix  ",
		"price":        39.90,
		"renewal_date": inDays(5),
		"category":     "streaming",
		"description":  "family plan",
	})
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Netflix", created.Name)
	assert.Equal(t, "R$", created.Currency)
	assert.Equal(t, "monthly", created.BillingPeriod)
	assert.True(t, created.IsActive)

	resp, err := client.GET("/api/v1/me/subscriptions/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Data subscriptionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &got)
	assert.Equal(t, created.ID, got.Data.ID)
	assert.InDelta(t, 39.90, got.Data.Price, 0.001)
	assert.Equal(t, inDays(5), got.Data.RenewalDate[:10])

	resp, err = client.PATCH("/api/v1/me/subscriptions/"+created.ID, map[string]interface{}{
		"price":          55.90,
		"billing_period": "annual",
		"is_active":      false,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated struct {
		Data subscriptionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &updated)
	assert.InDelta(t, 55.90, updated.Data.Price, 0.001)
	assert.Equal(t, "annual", updated.Data.BillingPeriod)
	assert.False(t, updated.Data.IsActive)
	assert.Equal(t, "Netflix", updated.Data.Name)

	resp, err = client.DELETE("/api/v1/me/subscriptions/" + created.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.GET("/api/v1/me/subscriptions/" + created.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscriptions_Validation(t *testing.T) {
	client := userClient(t, newUserID())

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"price": 10, "renewal_date": inDays(1), "category": "music"}},
		{"zero price", map[string]interface{}{"name": "Spotify", "price": 0, "renewal_date": inDays(1), "category": "music"}},
		{"bad category", map[string]interface{}{"name": "Spotify", "price": 10, "renewal_date": inDays(1), "category": "food"}},
		{"bad date", map[string]interface{}{"name": "Spotify", "price": 10, "renewal_date": "12/01/2025", "category": "music"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/api/v1/me/subscriptions", tt.payload)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSubscriptions_IsolatedPerUser(t *testing.T) {
	alice := userClient(t, newUserID())
	bob := userClient(t, newUserID())

	sub := createSubscription(t, alice, map[string]interface{}{"name": "Alice only"})

	resp, err := bob.GET("/api/v1/me/subscriptions/" + sub.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = bob.DELETE("/api/v1/me/subscriptions/" + sub.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Empty(t, listSubscriptions(t, bob, ""))
	assert.Len(t, listSubscriptions(t, alice, ""), 1)
}

func TestSubscriptions_ListFilters(t *testing.T) {
	client := userClient(t, newUserID())

	createSubscription(t, client, map[string]interface{}{"name": "Spotify", "price": 21.90, "category": "music", "renewal_date": inDays(3)})
	createSubscription(t, client, map[string]interface{}{"name": "Adobe", "price": 120, "category": "software", "renewal_date": inDays(20)})
	createSubscription(t, client, map[string]interface{}{"name": "Old gym", "price": 99, "category": "health", "renewal_date": inDays(40), "is_active": false})

	names := func(subs []subscriptionResponse) []string {
		out := make([]string, 0, len(subs))
		for _, s := range subs {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Spotify", "Adobe", "Old gym"}, names(listSubscriptions(t, client, "")))
	assert.Equal(t, []string{"Spotify"}, names(listSubscriptions(t, client, "?category=music")))
	assert.Equal(t, []string{"Spotify", "Adobe"}, names(listSubscriptions(t, client, "?status=active")))
	assert.Equal(t, []string{"Spotify"}, names(listSubscriptions(t, client, "?status=expiring")))
	assert.Equal(t, []string{"Adobe", "Old gym", "Spotify"}, names(listSubscriptions(t, client, "?sort=price&order=desc")))
	assert.Equal(t, []string{"Adobe"}, names(listSubscriptions(t, client, "?search=ado")))

	resp, err := client.WithoutValidation().GET("/api/v1/me/subscriptions?status=soon")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscriptions_Summary(t *testing.T) {
	client := userClient(t, newUserID())

	createSubscription(t, client, map[string]interface{}{"name": "Netflix", "price": 40, "category": "streaming"})
	createSubscription(t, client, map[string]interface{}{"name": "Domain", "price": 120, "category": "software", "billing_period": "annual"})

	resp, err := client.GET("/api/v1/me/summary")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			TotalSubscriptions  int     `json:"total_subscriptions"`
			ActiveSubscriptions int     `json:"active_subscriptions"`
			MonthlyTotal        float64 `json:"monthly_total"`
			AnnualTotal         float64 `json:"annual_total"`
			ProjectedAnnual     float64 `json:"projected_annual"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	assert.Equal(t, 2, result.Data.TotalSubscriptions)
	assert.Equal(t, 2, result.Data.ActiveSubscriptions)
	assert.InDelta(t, 40, result.Data.MonthlyTotal, 0.001)
	assert.InDelta(t, 120, result.Data.AnnualTotal, 0.001)
	assert.InDelta(t, 600, result.Data.ProjectedAnnual, 0.001)
}

func TestSubscriptions_ExportImport(t *testing.T) {
	source := userClient(t, newUserID())
	createSubscription(t, source, map[string]interface{}{"name": "Netflix", "price": 39.90})
	createSubscription(t, source, map[string]interface{}{"name": "Spotify", "price": 21.90, "category": "music"})

	resp, err := source.GET("/api/v1/me/export?format=json")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "subtrack-export-")
	exported := testutil.ReadBody(t, resp)

	var backup struct {
		Subscriptions []json.RawMessage `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal([]byte(exported), &backup))
	require.Len(t, backup.Subscriptions, 2)

	target := userClient(t, newUserID())
	resp, err = target.PostRaw("/api/v1/me/import", []byte(exported))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Created int `json:"created"`
			Updated int `json:"updated"`
			Skipped int `json:"skipped"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, 2, result.Data.Created)
	assert.Zero(t, result.Data.Skipped)

	imported := listSubscriptions(t, target, "?sort=name")
	require.Len(t, imported, 2)
	assert.Equal(t, "Netflix", imported[0].Name)
	for _, sub := range imported {
		t.Cleanup(func() {
			resp, err := target.WithoutValidation().DELETE("/api/v1/me/subscriptions/" + sub.ID)
			if err == nil {
				_ = resp.Body.Close()
			}
		})
	}

	resp, err = source.WithoutValidation().GET("/api/v1/me/export?format=xlsx")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(testutil.ReadBody(t, resp), "PK"))

	resp, err = target.PostRaw("/api/v1/me/import", []byte(`[{"name":"no id"}]`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAuth_RequiresBearerToken(t *testing.T) {
	anonymous := testutil.NewClient(testServer.URL)

	resp, err := anonymous.GET("/api/v1/me/subscriptions")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged := testutil.NewClient(testServer.URL).AsUser(t, "another-secret", testOwnerID)
	resp, err = forged.GET("/api/v1/me")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	client := testutil.NewClient(testServer.URL)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := client.GET(path)
		require.NoError(t, err)
		assert.Equal(t, "OK", testutil.ReadBody(t, resp))
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
