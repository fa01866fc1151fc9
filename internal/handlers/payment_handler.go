package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	mW "github.com/havenstay/backend/internal/middleware"
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"github.com/havenstay/backend/internal/services"
	"go.uber.org/zap"
)

const retryAfterSeconds = "1"

type PaymentHandler struct {
	service   *services.PaymentService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewPaymentHandler(service *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

// Mount registers the guest and staff payment routes. auth must place a
// middleware.Identity on the request context.
func (h *PaymentHandler) Mount(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/bookings/{bookingId}/payments", h.SubmitPayment)
		r.Get("/bookings/{bookingId}/ledger", h.GetLedger)

		r.Route("/admin/payments", func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleStaff, mW.RoleAdmin))

			r.Get("/", h.ListPayments)
			r.Get("/summary", h.Summary)
			r.Get("/{bookingId}", h.GetPayment)
			r.Post("/{bookingId}/approve", h.ApprovePayment)
			r.Post("/{bookingId}/reject", h.RejectPayment)
		})
	})
}

// SubmitPayment records guest payment evidence
// @Summary Submit payment evidence
// @Description Attach a claimed amount and proof to a booking and put it in review
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body services.SubmitPaymentRequest true "Payment evidence"
// @Success 200 {object} reconciliation.Result
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/payments [post]
func (h *PaymentHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	id, ok := mW.IdentityFrom(r.Context())
	if !ok || !id.CanAccessBooking(bookingID) {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	var req services.SubmitPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.SubmitPayment(r.Context(), bookingID, req)
	if err != nil {
		h.sendError(w, r, err, "claimed_amount")
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}

// GetLedger returns the ledger of a booking
// @Summary Get booking ledger
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.LedgerRecord
// @Failure 404 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/ledger [get]
func (h *PaymentHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	id, ok := mW.IdentityFrom(r.Context())
	if !ok || !id.CanAccessBooking(bookingID) {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}
	h.writeLedger(w, r, bookingID)
}

// GetPayment returns one payment for review
// @Summary Get payment detail
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.LedgerRecord
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/payments/{bookingId} [get]
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	h.writeLedger(w, r, chi.URLParam(r, "bookingId"))
}

func (h *PaymentHandler) writeLedger(w http.ResponseWriter, r *http.Request, bookingID string) {
	rec, err := h.service.GetLedger(r.Context(), bookingID)
	if err != nil {
		h.sendError(w, r, err, "")
		return
	}
	services.SendJSON(w, http.StatusOK, rec)
}

// ListPayments lists payments for review
// @Summary List payments
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Param q query string false "Search booking ID or guest name"
// @Param page query int false "Page, 1-based"
// @Param limit query int false "Page size (max 200)"
// @Param sort query string false "Sort column"
// @Param order query string false "asc or desc"
// @Success 200 {object} models.LedgerPage
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/payments [get]
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := services.ListParams{
		Status: strings.ToLower(q.Get("status")),
		Search: q.Get("q"),
		Sort:   q.Get("sort"),
		Order:  strings.ToLower(q.Get("order")),
	}

	var err error
	if params.Page, err = intParam(q.Get("page")); err != nil {
		services.SendErrorResponse(w, "Invalid page", http.StatusBadRequest, nil)
		return
	}
	if params.Limit, err = intParam(q.Get("limit")); err != nil {
		services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&params); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	page, err := h.service.ListLedgers(r.Context(), params)
	if err != nil {
		h.sendError(w, r, err, "")
		return
	}
	services.SendJSON(w, http.StatusOK, page)
}

// Summary returns per-status counts and totals
// @Summary Payment summary
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search booking ID or guest name"
// @Success 200 {object} models.StatusSummary
// @Router /admin/payments/summary [get]
func (h *PaymentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.sendError(w, r, err, "")
		return
	}
	services.SendJSON(w, http.StatusOK, summary)
}

// ApprovePayment approves a pending payment
// @Summary Approve payment
// @Description Apply the collected amount to the ledger; excess is returned as change
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body services.ApprovePaymentRequest false "Collected amount and settlement mode"
// @Success 200 {object} reconciliation.Result
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/payments/{bookingId}/approve [post]
func (h *PaymentHandler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, _ := mW.IdentityFrom(r.Context())

	var req services.ApprovePaymentRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	res, err := h.service.ApprovePayment(r.Context(), chi.URLParam(r, "bookingId"), id.UserID, req)
	if err != nil {
		h.sendError(w, r, err, "collected_amount")
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}

// RejectPayment rejects a pending payment
// @Summary Reject payment
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body services.RejectPaymentRequest true "Rejection reason"
// @Success 200 {object} reconciliation.Result
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payments/{bookingId}/reject [post]
func (h *PaymentHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := mW.IdentityFrom(r.Context())

	var req services.RejectPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RejectPayment(r.Context(), chi.URLParam(r, "bookingId"), id.UserID, req)
	if err != nil {
		h.sendError(w, r, err, "")
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.checkDecoded(w, dst, services.DecodeJSONBody(w, r, dst))
}

// decodeOptional accepts an empty body, whether or not the client sent a
// Content-Length.
func (h *PaymentHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := services.DecodeJSONBody(w, r, dst)
	if errors.Is(err, io.EOF) {
		return true
	}
	return h.checkDecoded(w, dst, err)
}

func (h *PaymentHandler) checkDecoded(w http.ResponseWriter, dst any, err error) bool {
	if err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			services.SendErrorResponse(w, "Invalid amount", http.StatusUnprocessableEntity, nil)
			return false
		}
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// sendError translates ledger errors into HTTP responses. amountField names
// the request field an amount error refers to.
func (h *PaymentHandler) sendError(w http.ResponseWriter, r *http.Request, err error, amountField string) {
	var under *models.UnderpaymentError
	switch {
	case errors.As(err, &under):
		services.SendFieldError(w, "Invalid amount", http.StatusUnprocessableEntity,
			amountField, "Amount must be at least "+under.Required.String())
	case errors.Is(err, money.ErrInvalidAmount):
		services.SendFieldError(w, "Invalid amount", http.StatusUnprocessableEntity,
			amountField, "Amount must not be negative")
	case errors.Is(err, models.ErrBookingNotFound):
		services.SendErrorResponse(w, "Booking not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrInvalidState):
		services.SendErrorResponse(w, "This payment has already been reviewed", http.StatusConflict, nil)
	case errors.Is(err, models.ErrConflict):
		w.Header().Set("Retry-After", retryAfterSeconds)
		services.SendErrorResponse(w, "Please retry", http.StatusConflict, nil)
	case errors.Is(err, models.ErrInvalidReviewer):
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	case errors.Is(err, models.ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		h.logger.Warn("storage unavailable",
			zap.String("path", r.URL.Path), zap.Error(err))
		services.SendErrorResponse(w, "Service temporarily unavailable", http.StatusServiceUnavailable, nil)
	default:
		h.logger.Error("unhandled payment error",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
