/**
 * @description
 * Payment links: shareable, single-use, amount-fixed redemption capabilities
 * bound to a milestone. A milestone has at most one active link at a time;
 * re-issuing refreshes that link in place instead of minting a second one, so
 * a previously shared URL keeps working.
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
)

// IssueOrRefreshPaymentLink returns a live payment link for a pending
// milestone, creating one with a fresh opaque token or refreshing the
// existing active link's amount and expiry.
func (s *Service) IssueOrRefreshPaymentLink(ctx context.Context, milestoneID uuid.UUID) (*domain.PaymentLink, error) {
	milestone, err := s.repo.FindMilestoneByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.PaymentStatus == domain.MilestonePaid {
		return nil, fmt.Errorf("%w: milestone is already paid", ErrValidation)
	}

	expiresAt := time.Now().UTC().Add(s.linkTTL)

	existing, err := s.repo.FindActiveLinkByMilestone(ctx, milestoneID)
	if err != nil && !errors.Is(err, store.ErrLinkNotFound) {
		return nil, fmt.Errorf("failed to look up active link: %w", err)
	}
	if existing != nil {
		refreshed, err := s.repo.RefreshPaymentLink(ctx, existing.ID, milestone.Amount, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh payment link: %w", err)
		}
		log.Printf("level=info component=app msg=\"payment link refreshed\" link_id=%s milestone_id=%s", refreshed.ID, milestoneID)
		return refreshed, nil
	}

	booking, err := s.repo.FindBookingByID(ctx, milestone.BookingID)
	if err != nil {
		return nil, err
	}

	link := &domain.PaymentLink{
		ID:          uuid.New(),
		Token:       uuid.NewString(),
		UserID:      booking.UserID,
		BookingID:   booking.ID,
		MilestoneID: &milestone.ID,
		Amount:      milestone.Amount,
		Status:      domain.LinkActive,
		ExpiresAt:   expiresAt,
	}
	if err := s.repo.CreatePaymentLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create payment link: %w", err)
	}

	log.Printf("level=info component=app msg=\"payment link issued\" link_id=%s milestone_id=%s amount=%.2f",
		link.ID, milestoneID, link.Amount)
	return link, nil
}

// ShareURL is the public redemption URL of a link.
func (s *Service) ShareURL(link *domain.PaymentLink) string {
	return s.linkShareBaseURL + "/pay/" + link.Token
}

// RevokePaymentLink withdraws an active link by administrative action.
func (s *Service) RevokePaymentLink(ctx context.Context, linkID uuid.UUID) error {
	if err := s.repo.RevokePaymentLink(ctx, linkID); err != nil {
		if errors.Is(err, store.ErrLinkNotActive) {
			return ErrLinkNotActive
		}
		return err
	}
	return nil
}

// RedeemPaymentLink settles a payment link by its token: a completed payment
// is recorded, the bound milestone is marked paid, and the link flips to
// completed, all in one transaction. Either the whole redemption happens or
// none of it does.
func (s *Service) RedeemPaymentLink(ctx context.Context, token, paymentMethod string) (*domain.PaymentTransaction, *domain.PaymentLink, error) {
	link, err := s.repo.FindLinkByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if link.Status != domain.LinkActive {
		return nil, nil, ErrLinkNotActive
	}
	now := time.Now().UTC()
	if now.After(link.ExpiresAt) {
		return nil, nil, ErrLinkExpired
	}
	if paymentMethod == "" {
		paymentMethod = "payment_link"
	}

	payment := &domain.PaymentTransaction{
		ID:            uuid.New(),
		BookingID:     link.BookingID,
		UserID:        link.UserID,
		MilestoneID:   link.MilestoneID,
		Amount:        link.Amount,
		PaymentMethod: paymentMethod,
		Type:          domain.TransactionTypeMilestone,
		Status:        domain.TransactionCompleted,
		Reference:     newPaymentReference(),
		PaidAt:        &now,
	}

	var cancelIDs []uuid.UUID
	if link.MilestoneID != nil {
		competing, err := s.repo.FindCompletedPaymentsByMilestone(ctx, *link.MilestoneID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load competing settlements: %w", err)
		}
		for _, other := range competing {
			cancelIDs = append(cancelIDs, other.ID)
		}
	}

	settled, milestone, completedLink, err := s.repo.RedeemLinkAtomic(ctx, store.RedeemLinkParams{
		LinkID:               link.ID,
		PaidAt:               now,
		Payment:              payment,
		MilestoneID:          link.MilestoneID,
		CancelTransactionIDs: cancelIDs,
	})
	if err != nil {
		if errors.Is(err, store.ErrLinkNotActive) {
			return nil, nil, ErrLinkNotActive
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrReconciliation, err)
	}

	booking, err := s.repo.FindBookingByID(ctx, link.BookingID)
	if err == nil {
		s.publishSettlement(ctx, booking, milestone, settled)
	}

	log.Printf("level=info component=app msg=\"payment link redeemed\" link_id=%s booking_id=%s amount=%.2f",
		link.ID, link.BookingID, link.Amount)
	return settled, completedLink, nil
}
