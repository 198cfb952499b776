package subscriptions

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/httputil"
)

// maxImportSize bounds the import request body.
const maxImportSize = 5 << 20

// Handler handles HTTP requests for subscriptions.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers routes for the authenticated user.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me/subscriptions", h.List)
	r.Post("/me/subscriptions", h.Create)
	r.Get("/me/subscriptions/{id}", h.Get)
	r.Patch("/me/subscriptions/{id}", h.Update)
	r.Delete("/me/subscriptions/{id}", h.Delete)
	r.Get("/me/summary", h.Summary)
	r.Get("/me/export", h.Export)
	r.Post("/me/import", h.Import)
}

// CreateSubscriptionRequest represents the request body for creating a subscription.
type CreateSubscriptionRequest struct {
	Name          string          `json:"name" validate:"required,min=1,max=255"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency" validate:"max=8"`
	RenewalDate   string          `json:"renewal_date" validate:"required,datetime=2006-01-02"`
	Category      string          `json:"category" validate:"required,oneof=streaming software music games productivity education health other"`
	Description   string          `json:"description" validate:"max=1000"`
	IsActive      *bool           `json:"is_active"`
	BillingPeriod string          `json:"billing_period" validate:"omitempty,oneof=monthly annual"`
}

// ToDomain converts the request to a domain model.
func (r *CreateSubscriptionRequest) ToDomain() *domain.Subscription {
	date, _ := time.Parse(time.DateOnly, r.RenewalDate)
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &domain.Subscription{
		Name:          r.Name,
		Price:         r.Price,
		Currency:      r.Currency,
		RenewalDate:   date,
		Category:      domain.Category(r.Category),
		Description:   r.Description,
		IsActive:      active,
		BillingPeriod: domain.BillingPeriod(r.BillingPeriod),
	}
}

// SubscriptionResponse is a subscription with its renewal countdown.
type SubscriptionResponse struct {
	*domain.Subscription
	Countdown domain.Countdown `json:"countdown"`
}

func (h *Handler) response(sub *domain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		Subscription: sub,
		Countdown:    sub.RenewalCountdown(h.service.localNow()),
	}
}

func (h *Handler) responses(subs []*domain.Subscription) []SubscriptionResponse {
	out := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, h.response(sub))
	}
	return out
}

// UpdateSubscriptionRequest represents the request body for a partial update.
// Omitted fields keep their current value.
type UpdateSubscriptionRequest struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Price         *decimal.Decimal `json:"price"`
	Currency      *string          `json:"currency" validate:"omitempty,max=8"`
	RenewalDate   *string          `json:"renewal_date" validate:"omitempty,datetime=2006-01-02"`
	Category      *string          `json:"category" validate:"omitempty,oneof=streaming software music games productivity education health other"`
	Description   *string          `json:"description" validate:"omitempty,max=1000"`
	IsActive      *bool            `json:"is_active"`
	BillingPeriod *string          `json:"billing_period" validate:"omitempty,oneof=monthly annual"`
}

// Apply copies the provided fields onto sub.
func (r *UpdateSubscriptionRequest) Apply(sub *domain.Subscription) {
	if r.Name != nil {
		sub.Name = *r.Name
	}
	if r.Price != nil {
		sub.Price = *r.Price
	}
	if r.Currency != nil {
		sub.Currency = *r.Currency
	}
	if r.RenewalDate != nil {
		if date, err := time.Parse(time.DateOnly, *r.RenewalDate); err == nil {
			sub.RenewalDate = date
		}
	}
	if r.Category != nil {
		sub.Category = domain.Category(*r.Category)
	}
	if r.Description != nil {
		sub.Description = *r.Description
	}
	if r.IsActive != nil {
		sub.IsActive = *r.IsActive
	}
	if r.BillingPeriod != nil {
		sub.BillingPeriod = domain.BillingPeriod(*r.BillingPeriod)
	}
}

// List handles GET /me/subscriptions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Search:   q.Get("search"),
		Category: domain.Category(q.Get("category")),
		Status:   Status(q.Get("status")),
		SortBy:   SortField(q.Get("sort")),
		Desc:     q.Get("order") == "desc",
	}

	subs, err := h.service.List(r.Context(), httputil.GetUserID(r.Context()), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.responses(subs))
}

// Create handles POST /me/subscriptions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sub, err := h.service.Create(r.Context(), httputil.GetUserID(r.Context()), req.ToDomain())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, h.response(sub))
}

// Get handles GET /me/subscriptions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.response(sub))
}

// Update handles PATCH /me/subscriptions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	existing, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	req.Apply(existing)

	sub, err := h.service.Update(r.Context(), userID, existing)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.response(sub))
}

// Delete handles DELETE /me/subscriptions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /me/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, sum)
}

// Export handles GET /me/export?format=json|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.Export(r.Context(), httputil.GetUserID(r.Context()), r.URL.Query().Get("format"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// Import handles POST /me/import.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize+1))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) > maxImportSize {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "import too large")
		return
	}

	res, err := h.service.Import(r.Context(), httputil.GetUserID(r.Context()), data)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, res)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSubscriptionNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidFilter, Status: http.StatusBadRequest},
	{Error: ErrUnsupportedFormat, Status: http.StatusBadRequest},
	{Error: ErrInvalidImport, Status: http.StatusBadRequest},
	{Error: ErrNothingToImport, Status: http.StatusUnprocessableEntity},
	{Error: domain.ErrNameRequired, Status: http.StatusBadRequest},
	{Error: domain.ErrNameTooLong, Status: http.StatusBadRequest},
	{Error: domain.ErrPriceNotPositive, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidCategory, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidBillingPeriod, Status: http.StatusBadRequest},
	{Error: domain.ErrRenewalDateRequired, Status: http.StatusBadRequest},
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
