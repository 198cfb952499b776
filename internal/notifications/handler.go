package notifications

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrAlertNotFound, Status: http.StatusNotFound},
	{Error: ErrPushDisabled, Status: http.StatusConflict},
	{Error: ErrInvalidPushEndpoint, Status: http.StatusBadRequest},
	{Error: ErrNotConfigured, Status: http.StatusConflict, Message: "telegram backup is not configured"},
	{Error: domain.ErrInvalidThreshold, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidAlertDays, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers the owner-only notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me/notification-settings", h.GetSettings)
	r.Put("/me/notification-settings", h.UpdateSettings)

	r.Get("/me/alerts", h.ListAlerts)
	r.Delete("/me/alerts/{id}", h.DismissAlert)

	r.Get("/me/push-subscriptions/public-key", h.PushPublicKey)
	r.Post("/me/push-subscriptions", h.RegisterPush)
	r.Delete("/me/push-subscriptions", h.UnregisterPush)

	r.Post("/me/reminders/check", h.CheckNow)
	r.Post("/me/backup", h.SendBackup)
}

// UpdateSettingsRequest represents request body for updating notification settings.
type UpdateSettingsRequest struct {
	Enabled           *bool `json:"enabled" validate:"required"`
	DaysBeforeRenewal *int  `json:"days_before_renewal" validate:"required,min=0,max=365"`
	AlertDays         []int `json:"alert_days" validate:"omitempty,max=32,dive,min=0,max=365"`
	PushNotifications *bool `json:"push_notifications"`
	ChatNotifications *bool `json:"chat_notifications"`
}

// RegisterPushRequest represents a browser PushSubscription as sent by the
// service worker.
type RegisterPushRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// UnregisterPushRequest identifies the registration to remove.
type UnregisterPushRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// GetSettings handles GET /me/notification-settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /me/notification-settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	current, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	current.Enabled = *req.Enabled
	current.DaysBeforeRenewal = *req.DaysBeforeRenewal
	if req.AlertDays != nil {
		current.AlertDays = req.AlertDays
	}
	if req.PushNotifications != nil {
		current.PushNotifications = *req.PushNotifications
	}
	if req.ChatNotifications != nil {
		current.ChatNotifications = *req.ChatNotifications
	}

	settings, err := h.service.UpdateSettings(r.Context(), current)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, settings)
}

// ListAlerts handles GET /me/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.ListAlerts(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, alerts)
}

// DismissAlert handles DELETE /me/alerts/{id}.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DismissAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PushPublicKey handles GET /me/push-subscriptions/public-key.
func (h *Handler) PushPublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.PushPublicKey()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"public_key": key})
}

// RegisterPush handles POST /me/push-subscriptions.
func (h *Handler) RegisterPush(w http.ResponseWriter, r *http.Request) {
	var req RegisterPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sub := &domain.PushSubscription{
		Endpoint:   req.Endpoint,
		P256dhKey:  req.Keys.P256dh,
		AuthKey:    req.Keys.Auth,
		DeviceName: req.DeviceName,
	}
	if err := h.service.RegisterPush(r.Context(), sub); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, sub)
}

// UnregisterPush handles DELETE /me/push-subscriptions.
func (h *Handler) UnregisterPush(w http.ResponseWriter, r *http.Request) {
	var req UnregisterPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.service.UnregisterPush(r.Context(), req.Endpoint); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckNow handles POST /me/reminders/check.
func (h *Handler) CheckNow(w http.ResponseWriter, r *http.Request) {
	sent, err := h.service.CheckNow(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"sent": sent})
}

// SendBackup handles POST /me/backup.
func (h *Handler) SendBackup(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.SendBackup(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"subscriptions": count})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
