/**
 * @description
 * Invoice summarization. The engine only assembles the data contract; the
 * external notification service renders and delivers the actual invoice, fed
 * either by the GET endpoint or the invoice.ready event.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
	"github.com/rentrooms/booking-service/pkg/rabbitmq"
)

// GetInvoiceSummary assembles the invoice data contract for a booking:
// the booking, its milestones, its payment history, and the money totals.
// Refunds carry negative amounts, so summing completed transactions nets
// them out of total_paid.
func (s *Service) GetInvoiceSummary(ctx context.Context, bookingID uuid.UUID) (*domain.InvoiceSummary, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	milestones, err := s.repo.FindMilestonesByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestones: %w", err)
	}
	payments, err := s.repo.FindPaymentsByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	var paid float64
	for _, p := range payments {
		if p.Status == domain.TransactionCompleted {
			paid += p.Amount
		}
	}
	paid = domain.Round2(paid)

	return &domain.InvoiceSummary{
		Booking:    booking,
		Milestones: milestones,
		Payments:   payments,
		Summary: domain.InvoiceTotals{
			TotalPrice:       booking.TotalAmount,
			TotalPaid:        paid,
			RemainingBalance: domain.Round2(booking.TotalAmount - paid),
		},
	}, nil
}

// PublishInvoice assembles the invoice summary and hands it to the external
// renderer over the event bus.
func (s *Service) PublishInvoice(ctx context.Context, bookingID uuid.UUID) (*domain.InvoiceSummary, error) {
	summary, err := s.GetInvoiceSummary(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rabbitmq.RoutingKeyInvoiceReady, rabbitmq.InvoiceReadyEvent{
		BookingID:   bookingID,
		UserID:      summary.Booking.UserID,
		Summary:     summary.Summary,
		GeneratedAt: time.Now().UTC(),
	})
	return summary, nil
}
