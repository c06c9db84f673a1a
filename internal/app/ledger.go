/**
 * @description
 * The payment ledger: transitions a payment transaction's status and keeps
 * every dependent record consistent in the same database transaction. This is
 * the single write path through which milestones get settled or reset and the
 * booking's aggregate payment status is recomputed.
 *
 * @notes
 * - Milestone resolution prefers the transaction's direct milestone
 *   reference. Transactions imported from the previous billing system carry
 *   none, so the ledger falls back to the earliest-due pending milestone of
 *   the same booking with an equal amount.
 * - At most one completed transaction may settle a milestone. Marking a
 *   transaction Paid cancels any other completed transaction already recorded
 *   against the milestone.
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

// SetPaymentStatus applies a payment status change reported by the payment
// provider (or an operator) and reconciles the booking. It returns the
// reconciled booking and the milestone the change settled or reset, if any.
func (s *Service) SetPaymentStatus(ctx context.Context, transactionID uuid.UUID, target domain.TransactionStatus) (*domain.Booking, *domain.Milestone, error) {
	payment, err := s.repo.FindPaymentByID(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}

	var params store.ApplyPaymentStatusParams
	switch target {
	case domain.TransactionCompleted:
		params, err = s.planSettlement(ctx, payment)
	case domain.TransactionPending:
		params, err = s.planReset(ctx, payment, domain.TransactionPending, nil)
	case domain.TransactionFailed:
		failed := domain.PaymentStateFailed
		params, err = s.planReset(ctx, payment, domain.TransactionFailed, &failed)
	case domain.TransactionCancelled:
		params, err = s.planReset(ctx, payment, domain.TransactionCancelled, nil)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported target status %q", ErrValidation, target)
	}
	if err != nil {
		return nil, nil, err
	}

	booking, milestone, err := s.repo.ApplyPaymentStatus(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrBookingNotFound) || errors.Is(err, store.ErrPaymentNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrReconciliation, err)
	}

	if target == domain.TransactionCompleted {
		s.publishSettlement(ctx, booking, milestone, payment)
	}

	log.Printf("level=info component=app msg=\"payment status applied\" transaction_id=%s status=%s booking_payment_status=%s",
		transactionID, target, booking.PaymentStatus)
	return booking, milestone, nil
}

func (s *Service) publishSettlement(ctx context.Context, booking *domain.Booking, milestone *domain.Milestone, payment *domain.PaymentTransaction) {
	event := rabbitmq.PaymentSettledEvent{
		BookingID:            booking.ID,
		TransactionID:        payment.ID,
		Amount:               payment.Amount,
		BookingPaymentStatus: string(booking.PaymentStatus),
		SettledAt:            time.Now().UTC(),
	}
	if milestone != nil {
		event.MilestoneID = &milestone.ID
	}
	s.publish(ctx, rabbitmq.RoutingKeyPaymentSettled, event)
}

// planSettlement builds the write set for marking a transaction completed:
// settle the resolved milestone, cancel competing completed transactions on
// it, and complete its active payment link.
func (s *Service) planSettlement(ctx context.Context, payment *domain.PaymentTransaction) (store.ApplyPaymentStatusParams, error) {
	now := time.Now().UTC()
	params := store.ApplyPaymentStatusParams{
		TransactionID: payment.ID,
		BookingID:     payment.BookingID,
		Status:        domain.TransactionCompleted,
		PaidAt:        &now,
		PaymentMethod: payment.PaymentMethod,
		Reference:     payment.Reference,
	}

	milestone, err := s.resolveMilestone(ctx, payment)
	if err != nil {
		return params, err
	}
	if milestone == nil {
		return params, nil
	}

	params.MilestoneID = &milestone.ID
	params.MilestonePaid = true

	competing, err := s.repo.FindCompletedPaymentsByMilestone(ctx, milestone.ID)
	if err != nil {
		return params, fmt.Errorf("failed to load competing settlements: %w", err)
	}
	for _, other := range competing {
		if other.ID != payment.ID {
			params.CancelTransactionIDs = append(params.CancelTransactionIDs, other.ID)
		}
	}

	link, err := s.repo.FindActiveLinkByMilestone(ctx, milestone.ID)
	if err != nil && !errors.Is(err, store.ErrLinkNotFound) {
		return params, fmt.Errorf("failed to load milestone link: %w", err)
	}
	if link != nil {
		params.CompleteLinkIDs = append(params.CompleteLinkIDs, link.ID)
	}
	return params, nil
}

// planReset builds the write set for moving a transaction out of completed:
// the milestone it settled reverts to pending and its still-active links are
// expired so a stale link cannot collect money for a reopened obligation.
func (s *Service) planReset(ctx context.Context, payment *domain.PaymentTransaction, target domain.TransactionStatus, override *domain.PaymentState) (store.ApplyPaymentStatusParams, error) {
	params := store.ApplyPaymentStatusParams{
		TransactionID:        payment.ID,
		BookingID:            payment.BookingID,
		Status:               target,
		OverridePaymentState: override,
	}

	milestone, err := s.settledMilestone(ctx, payment)
	if err != nil {
		return params, err
	}
	if milestone == nil {
		return params, nil
	}

	params.MilestoneID = &milestone.ID
	params.MilestonePaid = false

	links, err := s.repo.FindLinksByMilestone(ctx, milestone.ID)
	if err != nil {
		return params, fmt.Errorf("failed to load milestone links: %w", err)
	}
	for _, l := range links {
		if l.Status == domain.LinkActive {
			params.ExpireLinkIDs = append(params.ExpireLinkIDs, l.ID)
		}
	}
	return params, nil
}

// resolveMilestone finds the milestone a settling transaction pays for:
// direct reference first, then the earliest-due pending milestone of the
// booking with an equal amount. A nil milestone is legitimate; extension
// charges have none.
func (s *Service) resolveMilestone(ctx context.Context, payment *domain.PaymentTransaction) (*domain.Milestone, error) {
	if payment.MilestoneID != nil {
		milestone, err := s.repo.FindMilestoneByID(ctx, *payment.MilestoneID)
		if err != nil {
			if errors.Is(err, store.ErrMilestoneNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return milestone, nil
	}

	milestone, err := s.repo.FindEarliestPendingMilestoneByAmount(ctx, payment.BookingID, payment.Amount)
	if err != nil {
		if errors.Is(err, store.ErrMilestoneNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return milestone, nil
}

// settledMilestone finds the milestone this transaction previously settled,
// by the milestone's payment back-reference.
func (s *Service) settledMilestone(ctx context.Context, payment *domain.PaymentTransaction) (*domain.Milestone, error) {
	milestone, err := s.repo.FindMilestoneByPaymentID(ctx, payment.ID)
	if err != nil {
		if errors.Is(err, store.ErrMilestoneNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return milestone, nil
}
