/**
 * @description
 * This file sets up the HTTP router for the booking-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BookingRoutes creates and returns a new router for the booking service.
func BookingRoutes(h *BookingHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public payment-link redemption. Unauthenticated on purpose: the opaque
	// token is the capability. Rate limited inside the handler.
	r.Post("/pay/{token}", h.RedeemPaymentLinkHandler)

	// Group routes that require user authentication.
	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(jwksURL))

		r.Post("/bookings/quote", h.QuoteStayHandler)
		r.Post("/bookings", h.CreateBookingHandler)
		r.Get("/bookings/{bookingID}", h.GetBookingHandler)
		r.Post("/bookings/{bookingID}/extend", h.ExtendBookingHandler)
		r.Post("/bookings/{bookingID}/cancel", h.CancelBookingHandler)
		r.Get("/bookings/{bookingID}/milestones", h.GetMilestonesHandler)
		r.Get("/bookings/{bookingID}/payments", h.GetPaymentsHandler)
		r.Get("/bookings/{bookingID}/invoice", h.GetInvoiceHandler)

		r.Post("/milestones/{milestoneID}/payment-link", h.IssuePaymentLinkHandler)
		r.Delete("/payment-links/{linkID}", h.RevokePaymentLinkHandler)
	})

	// Service-to-service routes guarded by the shared internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Patch("/internal/payments/{transactionID}/status", h.SetPaymentStatusHandler)
		r.Post("/internal/bookings/{bookingID}/invoice/publish", h.PublishInvoiceHandler)
	})

	return r
}
