//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/subtrack/subtrack/internal/testutil"
)

type subscriptionResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	RenewalDate   string  `json:"renewal_date"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	IsActive      bool    `json:"is_active"`
	BillingPeriod string  `json:"billing_period"`
}

// newUserID returns a user id no other test uses.
func newUserID() string {
	return "user-" + uuid.NewString()
}

// inDays returns the UTC date days from today.
func inDays(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format(time.DateOnly)
}

// createSubscription creates a subscription and registers its deletion.
func createSubscription(t *testing.T, client *testutil.Client, payload map[string]interface{}) subscriptionResponse {
	t.Helper()

	if _, ok := payload["category"]; !ok {
		payload["category"] = "streaming"
	}
	if _, ok := payload["renewal_date"]; !ok {
		payload["renewal_date"] = inDays(10)
	}
	if _, ok := payload["price"]; !ok {
		payload["price"] = 19.90
	}

	resp, err := client.POST("/api/v1/me/subscriptions", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data subscriptionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	t.Cleanup(func() {
		resp, err := client.WithoutValidation().DELETE("/api/v1/me/subscriptions/" + result.Data.ID)
		if err == nil {
			_ = resp.Body.Close()
		}
	})

	return result.Data
}

func listSubscriptions(t *testing.T, client *testutil.Client, query string) []subscriptionResponse {
	t.Helper()

	resp, err := client.GET("/api/v1/me/subscriptions" + query)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data []subscriptionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}
