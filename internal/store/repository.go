/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the booking-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @notes
 * - Methods with composite names (CreateBookingWithPayment, ExtendBookingWithCharge,
 *   ApplyPaymentStatus, RedeemLinkAtomic, ...) are transactional boundaries:
 *   every write they perform commits together or not at all.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Booking lifecycle
	CreateBookingWithPayment(ctx context.Context, booking *domain.Booking, payment *domain.PaymentTransaction) error
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	CountOverlappingBookings(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) (int, error)
	ExtendBookingWithCharge(ctx context.Context, params ExtendBookingParams) (*domain.Booking, error)
	CancelBookingWithRefund(ctx context.Context, params CancelBookingParams) (*domain.Booking, error)

	// Milestones
	FindMilestonesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Milestone, error)
	FindMilestoneByID(ctx context.Context, milestoneID uuid.UUID) (*domain.Milestone, error)
	FindEarliestPendingMilestoneByAmount(ctx context.Context, bookingID uuid.UUID, amount float64) (*domain.Milestone, error)
	FindMilestoneByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Milestone, error)
	CreateMilestones(ctx context.Context, bookingID uuid.UUID, milestones []domain.Milestone) error

	// Payment transactions
	FindPaymentByID(ctx context.Context, transactionID uuid.UUID) (*domain.PaymentTransaction, error)
	FindPaymentsByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.PaymentTransaction, error)
	FindCompletedPaymentsByMilestone(ctx context.Context, milestoneID uuid.UUID) ([]domain.PaymentTransaction, error)
	ApplyPaymentStatus(ctx context.Context, params ApplyPaymentStatusParams) (*domain.Booking, *domain.Milestone, error)

	// Payment links
	FindLinkByToken(ctx context.Context, token string) (*domain.PaymentLink, error)
	FindActiveLinkByMilestone(ctx context.Context, milestoneID uuid.UUID) (*domain.PaymentLink, error)
	FindLinksByMilestone(ctx context.Context, milestoneID uuid.UUID) ([]domain.PaymentLink, error)
	CreatePaymentLink(ctx context.Context, link *domain.PaymentLink) error
	RefreshPaymentLink(ctx context.Context, linkID uuid.UUID, amount float64, expiresAt time.Time) (*domain.PaymentLink, error)
	RevokePaymentLink(ctx context.Context, linkID uuid.UUID) error
	RedeemLinkAtomic(ctx context.Context, params RedeemLinkParams) (*domain.PaymentTransaction, *domain.Milestone, *domain.PaymentLink, error)
}

// ExtendBookingParams carries everything the extension transaction writes:
// the new date window plus the pending payment created for the extra charge.
type ExtendBookingParams struct {
	BookingID    uuid.UUID
	NewToDate    time.Time
	NumberOfDays int
	ExtraAmount  float64
	Payment      *domain.PaymentTransaction
}

// CancelBookingParams carries the cancellation write set. Refund is nil when
// the caller did not request one; when present it is a negative-amount,
// completed refund transaction.
type CancelBookingParams struct {
	BookingID   uuid.UUID
	Reason      string
	CancelledAt time.Time
	Refund      *domain.PaymentTransaction
}

// ApplyPaymentStatusParams is the full write set of a ledger status change,
// planned by the application layer and applied atomically by the repository.
// After the writes the repository recomputes the booking's payment status
// from its post-write aggregates, unless OverridePaymentState forces one
// (used for explicit payment failure events).
type ApplyPaymentStatusParams struct {
	TransactionID uuid.UUID
	BookingID     uuid.UUID
	Status        domain.TransactionStatus
	PaidAt        *time.Time

	// Milestone settlement. MilestoneID is nil when no milestone matched the
	// transaction; MilestonePaid selects settle vs reset.
	MilestoneID   *uuid.UUID
	MilestonePaid bool
	PaymentMethod string
	Reference     string

	// Side effects preserving the single-active-settlement and
	// single-active-link invariants.
	CancelTransactionIDs []uuid.UUID
	CompleteLinkIDs      []uuid.UUID
	ExpireLinkIDs        []uuid.UUID

	OverridePaymentState *domain.PaymentState
}

// RedeemLinkParams is the write set of a link redemption: the link flips to
// completed, the prebuilt completed payment is inserted, the bound milestone
// (if any) is settled, and competing settlements are cancelled.
type RedeemLinkParams struct {
	LinkID               uuid.UUID
	PaidAt               time.Time
	Payment              *domain.PaymentTransaction
	MilestoneID          *uuid.UUID
	CancelTransactionIDs []uuid.UUID
}
