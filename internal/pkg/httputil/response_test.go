package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessAndError(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"n":1}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "subscription not found")
	assert.JSONEq(t, `{"error":{"message":"subscription not found"}}`, rec.Body.String())
}

type createRequest struct {
	Name          string `json:"name" validate:"required,max=5"`
	BillingPeriod string `json:"billing_period" validate:"omitempty,oneof=monthly annual"`
	AlertDays     []int  `json:"alert_days" validate:"max=2"`
}

func TestValidationError_FieldDetails(t *testing.T) {
	err := NewValidator().Struct(createRequest{BillingPeriod: "weekly", AlertDays: []int{1, 2, 3}})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, fmt.Errorf("decode: %w", err))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation error", body.Error.Message)
	assert.ElementsMatch(t, []FieldError{
		{Field: "name", Message: "is required"},
		{Field: "billing_period", Message: "must be one of: monthly, annual"},
		{Field: "alert_days", Message: "must be at most 2 items"},
	}, body.Error.Details)
}

func TestValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, errors.New("bad input"))
	assert.JSONEq(t, `{"error":{"message":"validation error","details":"bad input"}}`, rec.Body.String())
}

func TestHandleError(t *testing.T) {
	errMissing := errors.New("missing")
	mappings := []ErrorMapping{
		{Error: errMissing, Status: http.StatusNotFound},
		{Error: errors.ErrUnsupported, Status: http.StatusConflict, Message: "not available"},
	}

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"mapped uses error text", fmt.Errorf("get: %w", errMissing), http.StatusNotFound, "get: missing"},
		{"mapped with message", errors.ErrUnsupported, http.StatusConflict, "not available"},
		{"timeout", fmt.Errorf("extract: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "request timed out"},
		{"cancelled", context.Canceled, StatusClientClosedRequest, "request cancelled"},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err, mappings)

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":{"message":%q}}`, tt.message), rec.Body.String())
		})
	}
}
