/**
 * @description
 * This file defines the core domain models for the booking-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `float64` (NUMERIC(12,2) in the database) because the
 *   rate tables and the installment division are specified in decimal currency
 *   units, including their rounding behavior.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PriceType selects which rate column is read for a room and how the
// installment count of a booking is derived.
type PriceType string

const (
	PriceTypeDay   PriceType = "Day"
	PriceTypeWeek  PriceType = "Week"
	PriceTypeMonth PriceType = "Month"
)

// PaymentOption controls how much money is taken when a booking is created.
type PaymentOption string

const (
	PaymentOptionBookingOnly PaymentOption = "booking_only"
	PaymentOptionFull        PaymentOption = "full"
)

// BookingStatus is the lifecycle state of a booking.
// pending -> confirmed -> {cancelled, completed}; confirmed is also directly
// reachable from creation when full payment is taken up front.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// PaymentState is the aggregate payment status of a booking, recomputed from
// the sum of completed payments and the per-milestone paid flags.
type PaymentState string

const (
	PaymentStatePending       PaymentState = "pending"
	PaymentStatePartiallyPaid PaymentState = "partially_paid"
	PaymentStatePaid          PaymentState = "paid"
	PaymentStateFailed        PaymentState = "failed"
)

// MilestoneStatus is the settlement state of a single scheduled obligation.
type MilestoneStatus string

const (
	MilestonePending MilestoneStatus = "pending"
	MilestonePaid    MilestoneStatus = "paid"
)

// TransactionStatus is the state of an actual money movement record.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionRefunded  TransactionStatus = "refunded"
)

// TransactionType categorizes why a payment transaction exists.
type TransactionType string

const (
	TransactionTypeBookingFee  TransactionType = "booking_fee"
	TransactionTypeFullPayment TransactionType = "full_payment"
	TransactionTypeExtension   TransactionType = "extension"
	TransactionTypeMilestone   TransactionType = "milestone"
	TransactionTypeRefund      TransactionType = "refund"
)

// LinkStatus is the state of a single-use payment link.
type LinkStatus string

const (
	LinkActive    LinkStatus = "active"
	LinkCompleted LinkStatus = "completed"
	LinkExpired   LinkStatus = "expired"
	LinkRevoked   LinkStatus = "revoked"
)

// Booking represents a reservation of one or more rooms in a package for a
// date range. This struct maps directly to the `bookings` table.
type Booking struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              uuid.UUID     `json:"user_id"`
	PackageID           uuid.UUID     `json:"package_id"`
	RoomIDs             []uuid.UUID   `json:"room_ids"`
	FromDate            time.Time     `json:"from_date"`
	ToDate              time.Time     `json:"to_date"`
	NumberOfDays        int           `json:"number_of_days"`
	PriceType           PriceType     `json:"price_type"`
	RentAmount          float64       `json:"rent_amount"`
	BookingFee          float64       `json:"booking_fee"`
	TotalAmount         float64       `json:"total_amount"` // always rent_amount + booking_fee
	PaymentOption       PaymentOption `json:"payment_option"`
	Status              BookingStatus `json:"status"`
	PaymentStatus       PaymentState  `json:"payment_status"`
	CancellationReason  *string       `json:"cancellation_reason,omitempty"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty"`
	AutoRenew           bool          `json:"auto_renew"`
	NextRenewalDate     *time.Time    `json:"next_renewal_date,omitempty"`
	MilestonesScheduled bool          `json:"milestones_scheduled"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Milestone is one scheduled payment obligation belonging to a booking:
// sequence 0 is the booking fee, 1..N are the periodic rent installments.
type Milestone struct {
	ID             uuid.UUID       `json:"id"`
	BookingID      uuid.UUID       `json:"booking_id"`
	Sequence       int             `json:"sequence"`
	PriceType      PriceType       `json:"price_type"`
	DueDate        time.Time       `json:"due_date"`
	Amount         float64         `json:"amount"`
	IsBookingFee   bool            `json:"is_booking_fee"`
	PaymentStatus  MilestoneStatus `json:"payment_status"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod  *string         `json:"payment_method,omitempty"`
	TransactionRef *string         `json:"transaction_ref,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PaymentTransaction is an actual money movement record. A transaction need
// not map to a pre-existing milestone (extension charges carry none), and a
// negative amount records a refund.
type PaymentTransaction struct {
	ID            uuid.UUID         `json:"id"`
	BookingID     uuid.UUID         `json:"booking_id"`
	UserID        uuid.UUID         `json:"user_id"`
	MilestoneID   *uuid.UUID        `json:"milestone_id,omitempty"`
	Amount        float64           `json:"amount"`
	PaymentMethod string            `json:"payment_method"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Reference     string            `json:"reference"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// PaymentLink is a single-use, amount-fixed, expiring redemption capability
// bound to one booking and at most one milestone.
type PaymentLink struct {
	ID          uuid.UUID  `json:"id"`
	Token       string     `json:"token"`
	UserID      uuid.UUID  `json:"user_id"`
	BookingID   uuid.UUID  `json:"booking_id"`
	MilestoneID *uuid.UUID `json:"milestone_id,omitempty"`
	Amount      float64    `json:"amount"`
	Status      LinkStatus `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RoomLineItem is one row of a price quote breakdown. Rooms with no rate for
// the requested granularity stay in the breakdown as zero-priced items.
type RoomLineItem struct {
	RoomID    uuid.UUID `json:"room_id"`
	Rate      float64   `json:"rate"`
	LineTotal float64   `json:"line_total"`
	Priced    bool      `json:"priced"`
}

// PriceQuote is the result of pricing a stay; it has no side effects and is
// recomputed on every booking creation.
type PriceQuote struct {
	RentAmount   float64        `json:"rent_amount"`
	BookingFee   float64        `json:"booking_fee"`
	TotalAmount  float64        `json:"total_amount"`
	NumberOfDays int            `json:"number_of_days"`
	LineItems    []RoomLineItem `json:"line_items"`
}

// CreateBookingRequest is the DTO for incoming booking creation calls.
type CreateBookingRequest struct {
	UserID        uuid.UUID     `json:"user_id"`
	PackageID     uuid.UUID     `json:"package_id"`
	RoomIDs       []uuid.UUID   `json:"room_ids"`
	FromDate      time.Time     `json:"from_date"`
	ToDate        time.Time     `json:"to_date"`
	PriceType     PriceType     `json:"price_type"`
	PaymentOption PaymentOption `json:"payment_option"`
	PaymentMethod string        `json:"payment_method"`
	AutoRenew     bool          `json:"auto_renew"`
}

// InvoiceTotals is the flat money summary consumed by the invoice renderer.
type InvoiceTotals struct {
	TotalPrice       float64 `json:"total_price"`
	TotalPaid        float64 `json:"total_paid"`
	RemainingBalance float64 `json:"remaining_balance"`
}

// InvoiceSummary is the full data contract handed to the external
// notification/invoice renderer; this core never formats or delivers it.
type InvoiceSummary struct {
	Booking    *Booking             `json:"booking"`
	Milestones []Milestone          `json:"milestones"`
	Payments   []PaymentTransaction `json:"payments"`
	Summary    InvoiceTotals        `json:"summary"`
}
