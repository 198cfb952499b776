// Package identity exposes the authenticated user to the web client.
// Accounts live with the external identity provider; this service only
// validates the tokens it issues.
package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/subtrack/subtrack/internal/pkg/httputil"
)

// Handler handles identity HTTP requests.
type Handler struct {
	ownerID string
}

// NewHandler creates a new identity handler. ownerID is the account the
// Telegram bot and the renewal reminders act for.
func NewHandler(ownerID string) *Handler {
	return &Handler{ownerID: ownerID}
}

// MeResponse describes the caller.
type MeResponse struct {
	UserID string `json:"user_id"`
	Owner  bool   `json:"owner"`
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	httputil.Success(w, http.StatusOK, MeResponse{
		UserID: userID,
		Owner:  h.ownerID != "" && userID == h.ownerID,
	})
}
