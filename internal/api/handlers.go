/**
 * @description
 * This file contains the HTTP handlers for the booking-service API. Handlers
 * decode and validate requests, call into the application service, and map
 * service errors onto HTTP statuses.
 *
 * @notes
 * - All error responses share the {"error": "..."} JSON shape.
 * - Status mapping lives in one place (handleServiceError) so every endpoint
 *   reports the same status for the same failure.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/app"
	"github.com/rentrooms/booking-service/internal/domain"
	"github.com/rentrooms/booking-service/internal/store"
)

// BookingHandlers holds dependencies for the HTTP handlers.
type BookingHandlers struct {
	service       *app.Service
	redeemLimiter *app.RedemptionLimiter
}

// NewBookingHandlers creates a new BookingHandlers instance.
func NewBookingHandlers(service *app.Service, redeemLimiter *app.RedemptionLimiter) *BookingHandlers {
	return &BookingHandlers{service: service, redeemLimiter: redeemLimiter}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleServiceError maps service and store errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidDateRange), errors.Is(err, app.ErrInvalidExtension):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrIncompleteBookingState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrRoomUnavailable), errors.Is(err, app.ErrLinkNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrLinkExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrMilestoneNotFound),
		errors.Is(err, store.ErrPaymentNotFound), errors.Is(err, store.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("level=error component=api msg=\"internal error\" err=%v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// QuoteStayHandler prices a stay without creating anything.
func (h *BookingHandlers) QuoteStayHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomIDs   []uuid.UUID      `json:"room_ids"`
		FromDate  time.Time        `json:"from_date"`
		ToDate    time.Time        `json:"to_date"`
		PriceType domain.PriceType `json:"price_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quote, err := h.service.QuoteStay(r.Context(), req.RoomIDs, req.FromDate, req.ToDate, req.PriceType)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// CreateBookingHandler creates a booking and takes its initial payment.
func (h *BookingHandlers) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBookingHandler returns a booking by id.
func (h *BookingHandlers) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := h.service.GetBooking(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// ExtendBookingHandler moves a booking's end date forward.
func (h *BookingHandlers) ExtendBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var req struct {
		NewToDate     time.Time `json:"new_to_date"`
		PaymentMethod string    `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.service.ExtendBooking(r.Context(), bookingID, req.NewToDate, req.PaymentMethod)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// CancelBookingHandler cancels a booking, optionally recording a refund.
func (h *BookingHandlers) CancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var req struct {
		Reason        string  `json:"reason"`
		RefundAmount  float64 `json:"refund_amount"`
		PaymentMethod string  `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.service.CancelBooking(r.Context(), bookingID, req.Reason, req.RefundAmount, req.PaymentMethod)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// GetMilestonesHandler returns a booking's payment schedule, generating it on
// first access.
func (h *BookingHandlers) GetMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	milestones, err := h.service.GetOrGenerateMilestones(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

// GetPaymentsHandler returns the payment history of a booking.
func (h *BookingHandlers) GetPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	payments, err := h.service.GetBookingPayments(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// GetInvoiceHandler returns the invoice summary of a booking.
func (h *BookingHandlers) GetInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	summary, err := h.service.GetInvoiceSummary(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// IssuePaymentLinkHandler issues (or refreshes) the payment link of a milestone.
func (h *BookingHandlers) IssuePaymentLinkHandler(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := parseIDParam(r, "milestoneID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid milestone id")
		return
	}

	link, err := h.service.IssueOrRefreshPaymentLink(r.Context(), milestoneID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"link":      link,
		"share_url": h.service.ShareURL(link),
	})
}

// RevokePaymentLinkHandler withdraws an active payment link.
func (h *BookingHandlers) RevokePaymentLinkHandler(w http.ResponseWriter, r *http.Request) {
	linkID, err := parseIDParam(r, "linkID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}

	if err := h.service.RevokePaymentLink(r.Context(), linkID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// RedeemPaymentLinkHandler settles a payment link by its public token. This
// endpoint is unauthenticated and therefore rate limited per token and
// caller IP.
func (h *BookingHandlers) RedeemPaymentLinkHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing link token")
		return
	}

	if h.redeemLimiter != nil && !h.redeemLimiter.Allow(r.Context(), "redeem:"+token+":"+clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many redemption attempts")
		return
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	// An empty body is fine; the payment method then defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)

	payment, link, err := h.service.RedeemPaymentLink(r.Context(), token, req.PaymentMethod)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment": payment,
		"link":    link,
	})
}

// SetPaymentStatusHandler applies a provider-reported payment status change.
// Internal-only; reached by the payment gateway webhook relay.
func (h *BookingHandlers) SetPaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := parseIDParam(r, "transactionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req struct {
		Status domain.TransactionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, milestone, err := h.service.SetPaymentStatus(r.Context(), transactionID, req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking":   booking,
		"milestone": milestone,
	})
}

// PublishInvoiceHandler pushes a booking's invoice summary to the
// notification service. Internal-only.
func (h *BookingHandlers) PublishInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	summary, err := h.service.PublishInvoice(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
