/**
 * @description
 * This file implements the core business logic for the booking-service. The
 * Service struct orchestrates pricing, the booking lifecycle, milestone
 * scheduling, the payment ledger and payment links, delegating persistence to
 * the store.Repository and side channels to the rate catalog client and the
 * event producer.
 *
 * @notes
 * - Multi-entity writes are planned here and applied atomically by composite
 *   repository methods; the service never opens its own transactions.
 * - Event publishing is best effort. A failed publish is logged and never
 *   rolls back a committed booking mutation.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
	"github.com/rentrooms/booking-service/internal/store"
	"github.com/rentrooms/booking-service/pkg/rabbitmq"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidDateRange       = errors.New("to date must be after from date")
	ErrInvalidExtension       = errors.New("extension date must be after current end date")
	ErrRoomUnavailable        = errors.New("one or more rooms are not available for the requested dates")
	ErrIncompleteBookingState = errors.New("booking state is incomplete for milestone generation")
	ErrLinkExpired            = errors.New("payment link has expired")
	ErrLinkNotActive          = errors.New("payment link is not active")
	ErrReconciliation         = errors.New("payment reconciliation failed")
)

// RateCatalog is the client-side contract for the external room rate catalog.
// The second return value is false when the room has no rate configured for
// the requested granularity.
type RateCatalog interface {
	GetRate(ctx context.Context, roomID uuid.UUID, priceType domain.PriceType) (float64, bool, error)
}

// Service provides methods for the core booking and payment business logic.
type Service struct {
	repo   store.Repository
	rates  RateCatalog
	events rabbitmq.Publisher

	linkTTL               time.Duration
	linkShareBaseURL      string
	redistributeRemainder bool
}

// NewService creates a new instance of the core service.
func NewService(repo store.Repository, rates RateCatalog, events rabbitmq.Publisher, linkTTL time.Duration, linkShareBaseURL string, redistributeRemainder bool) *Service {
	return &Service{
		repo:                  repo,
		rates:                 rates,
		events:                events,
		linkTTL:               linkTTL,
		linkShareBaseURL:      linkShareBaseURL,
		redistributeRemainder: redistributeRemainder,
	}
}

// nightsBetween is the stay length in whole days; the checkout day itself is
// not counted.
func nightsBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// CreateBooking prices the stay, verifies room availability, and persists the
// booking together with its initial completed payment (the booking fee, or
// the full total when the caller pays everything up front).
func (s *Service) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*domain.Booking, error) {
	if err := validateCreateBooking(req); err != nil {
		return nil, err
	}

	overlaps, err := s.repo.CountOverlappingBookings(ctx, req.RoomIDs, req.FromDate, req.ToDate)
	if err != nil {
		return nil, fmt.Errorf("availability check: %w", err)
	}
	if overlaps > 0 {
		return nil, ErrRoomUnavailable
	}

	quote, err := s.QuoteStay(ctx, req.RoomIDs, req.FromDate, req.ToDate, req.PriceType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	booking := &domain.Booking{
		ID:            uuid.New(),
		UserID:        req.UserID,
		PackageID:     req.PackageID,
		RoomIDs:       req.RoomIDs,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
		NumberOfDays:  quote.NumberOfDays,
		PriceType:     req.PriceType,
		RentAmount:    quote.RentAmount,
		BookingFee:    quote.BookingFee,
		TotalAmount:   quote.TotalAmount,
		PaymentOption: req.PaymentOption,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentStatePending,
		AutoRenew:     req.AutoRenew,
	}

	payment := &domain.PaymentTransaction{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		UserID:        req.UserID,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.TransactionCompleted,
		Reference:     newPaymentReference(),
		PaidAt:        &now,
	}

	if req.PaymentOption == domain.PaymentOptionFull {
		// Full upfront payment confirms the booking immediately.
		payment.Amount = quote.TotalAmount
		payment.Type = domain.TransactionTypeFullPayment
		booking.Status = domain.BookingConfirmed
		booking.PaymentStatus = domain.PaymentStatePaid
	} else {
		payment.Amount = quote.BookingFee
		payment.Type = domain.TransactionTypeBookingFee
	}

	if err := s.repo.CreateBookingWithPayment(ctx, booking, payment); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.publish(ctx, rabbitmq.RoutingKeyBookingCreated, rabbitmq.BookingCreatedEvent{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		TotalAmount:   booking.TotalAmount,
		PaymentOption: string(booking.PaymentOption),
		CreatedAt:     now,
	})

	log.Printf("level=info component=app msg=\"booking created\" booking_id=%s payment_option=%s total=%.2f",
		booking.ID, booking.PaymentOption, booking.TotalAmount)
	return booking, nil
}

func validateCreateBooking(req domain.CreateBookingRequest) error {
	if len(req.RoomIDs) == 0 {
		return fmt.Errorf("%w: at least one room is required", ErrValidation)
	}
	if req.PaymentMethod == "" {
		return fmt.Errorf("%w: payment_method is required", ErrValidation)
	}
	switch req.PriceType {
	case domain.PriceTypeDay, domain.PriceTypeWeek, domain.PriceTypeMonth:
	default:
		return fmt.Errorf("%w: unknown price_type %q", ErrValidation, req.PriceType)
	}
	switch req.PaymentOption {
	case domain.PaymentOptionBookingOnly, domain.PaymentOptionFull:
	default:
		return fmt.Errorf("%w: unknown payment_option %q", ErrValidation, req.PaymentOption)
	}
	if !req.ToDate.After(req.FromDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// GetBooking returns a booking by id.
func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.repo.FindBookingByID(ctx, bookingID)
}

// GetBookingPayments returns the payment history of a booking, oldest first.
func (s *Service) GetBookingPayments(ctx context.Context, bookingID uuid.UUID) ([]domain.PaymentTransaction, error) {
	if _, err := s.repo.FindBookingByID(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.FindPaymentsByBooking(ctx, bookingID)
}

// ExtendBooking moves a booking's end date forward and records the pending
// charge for the added days. No milestone is scheduled for the extension; the
// charge settles through the ledger like any other transaction.
func (s *Service) ExtendBooking(ctx context.Context, bookingID uuid.UUID, newToDate time.Time, paymentMethod string) (*domain.Booking, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingCancelled {
		return nil, fmt.Errorf("%w: booking is cancelled", ErrValidation)
	}
	if !newToDate.After(booking.ToDate) {
		return nil, ErrInvalidExtension
	}
	if paymentMethod == "" {
		return nil, fmt.Errorf("%w: payment_method is required", ErrValidation)
	}

	extraDays := nightsBetween(booking.ToDate, newToDate)
	extra, err := s.priceRooms(ctx, booking.RoomIDs, booking.PriceType, extraDays)
	if err != nil {
		return nil, err
	}

	payment := &domain.PaymentTransaction{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		Amount:        extra,
		PaymentMethod: paymentMethod,
		Type:          domain.TransactionTypeExtension,
		Status:        domain.TransactionPending,
		Reference:     newPaymentReference(),
	}

	updated, err := s.repo.ExtendBookingWithCharge(ctx, store.ExtendBookingParams{
		BookingID:    booking.ID,
		NewToDate:    newToDate,
		NumberOfDays: booking.NumberOfDays + extraDays,
		ExtraAmount:  extra,
		Payment:      payment,
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleBookingState) {
			return nil, ErrInvalidExtension
		}
		return nil, fmt.Errorf("failed to extend booking: %w", err)
	}

	log.Printf("level=info component=app msg=\"booking extended\" booking_id=%s extra_days=%d extra_amount=%.2f",
		booking.ID, extraDays, extra)
	return updated, nil
}

// CancelBooking marks a booking cancelled, optionally recording a refund up
// to the booking total. Milestones are left in place as historical record.
func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, refundAmount float64, paymentMethod string) (*domain.Booking, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}
	if refundAmount < 0 {
		return nil, fmt.Errorf("%w: refund amount cannot be negative", ErrValidation)
	}

	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if refundAmount > booking.TotalAmount {
		return nil, fmt.Errorf("%w: refund exceeds booking total", ErrValidation)
	}

	now := time.Now().UTC()
	var refund *domain.PaymentTransaction
	if refundAmount > 0 {
		refund = &domain.PaymentTransaction{
			ID:            uuid.New(),
			BookingID:     booking.ID,
			UserID:        booking.UserID,
			Amount:        -domain.Round2(refundAmount),
			PaymentMethod: paymentMethod,
			Type:          domain.TransactionTypeRefund,
			Status:        domain.TransactionCompleted,
			Reference:     newPaymentReference(),
			PaidAt:        &now,
		}
	}

	updated, err := s.repo.CancelBookingWithRefund(ctx, store.CancelBookingParams{
		BookingID:   booking.ID,
		Reason:      reason,
		CancelledAt: now,
		Refund:      refund,
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleBookingState) {
			return nil, fmt.Errorf("%w: booking is already cancelled", ErrValidation)
		}
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	log.Printf("level=info component=app msg=\"booking cancelled\" booking_id=%s refund=%.2f", booking.ID, refundAmount)
	return updated, nil
}

// publish sends an event and logs on failure without propagating the error.
func (s *Service) publish(ctx context.Context, routingKey string, event any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		log.Printf("level=error component=app msg=\"failed to publish event\" routing_key=%s error=%v", routingKey, err)
	}
}

func newPaymentReference() string {
	return "PAY-" + uuid.NewString()
}
