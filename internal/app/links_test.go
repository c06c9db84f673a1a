package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
	"github.com/rentrooms/booking-service/internal/store"
)

type linkRepoStub struct {
	store.Repository

	booking    *domain.Booking
	milestone  *domain.Milestone
	activeLink *domain.PaymentLink
	tokenLink  *domain.PaymentLink
	competing  []domain.PaymentTransaction

	createdLink   *domain.PaymentLink
	refreshCalled bool
	refreshedID   uuid.UUID
	refreshAmount float64
	refreshExpiry time.Time
	redeemCalled  bool
	redeemParams  store.RedeemLinkParams
	redeemErr     error
	revokeCalled  bool
	revokeErr     error
}

func (s *linkRepoStub) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	if s.booking == nil {
		return nil, store.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *linkRepoStub) FindMilestoneByID(ctx context.Context, milestoneID uuid.UUID) (*domain.Milestone, error) {
	if s.milestone == nil {
		return nil, store.ErrMilestoneNotFound
	}
	return s.milestone, nil
}

func (s *linkRepoStub) FindActiveLinkByMilestone(ctx context.Context, milestoneID uuid.UUID) (*domain.PaymentLink, error) {
	if s.activeLink == nil {
		return nil, store.ErrLinkNotFound
	}
	return s.activeLink, nil
}

func (s *linkRepoStub) FindLinkByToken(ctx context.Context, token string) (*domain.PaymentLink, error) {
	if s.tokenLink == nil {
		return nil, store.ErrLinkNotFound
	}
	return s.tokenLink, nil
}

func (s *linkRepoStub) FindCompletedPaymentsByMilestone(ctx context.Context, milestoneID uuid.UUID) ([]domain.PaymentTransaction, error) {
	return s.competing, nil
}

func (s *linkRepoStub) CreatePaymentLink(ctx context.Context, link *domain.PaymentLink) error {
	s.createdLink = link
	return nil
}

func (s *linkRepoStub) RefreshPaymentLink(ctx context.Context, linkID uuid.UUID, amount float64, expiresAt time.Time) (*domain.PaymentLink, error) {
	s.refreshCalled = true
	s.refreshedID = linkID
	s.refreshAmount = amount
	s.refreshExpiry = expiresAt
	refreshed := *s.activeLink
	refreshed.Amount = amount
	refreshed.ExpiresAt = expiresAt
	return &refreshed, nil
}

func (s *linkRepoStub) RevokePaymentLink(ctx context.Context, linkID uuid.UUID) error {
	s.revokeCalled = true
	return s.revokeErr
}

func (s *linkRepoStub) RedeemLinkAtomic(ctx context.Context, params store.RedeemLinkParams) (*domain.PaymentTransaction, *domain.Milestone, *domain.PaymentLink, error) {
	s.redeemCalled = true
	s.redeemParams = params
	if s.redeemErr != nil {
		return nil, nil, nil, s.redeemErr
	}
	completed := *s.tokenLink
	completed.Status = domain.LinkCompleted
	completed.PaidAt = &params.PaidAt
	return params.Payment, s.milestone, &completed, nil
}

func linkFixture() *linkRepoStub {
	bookingID := uuid.New()
	milestoneID := uuid.New()
	return &linkRepoStub{
		booking: &domain.Booking{ID: bookingID, UserID: uuid.New(), TotalAmount: 990},
		milestone: &domain.Milestone{
			ID:        milestoneID,
			BookingID: bookingID,
			Amount:    300,
		},
	}
}

func TestIssuePaymentLink_CreatesLinkWithOpaqueToken(t *testing.T) {
	repo := linkFixture()
	svc := newTestService(repo, &rateCatalogStub{})

	link, err := svc.IssueOrRefreshPaymentLink(context.Background(), repo.milestone.ID)
	if err != nil {
		t.Fatalf("IssueOrRefreshPaymentLink returned error: %v", err)
	}

	if repo.createdLink == nil {
		t.Fatal("expected a new link to be persisted")
	}
	if link.Token == "" {
		t.Fatal("expected an opaque token")
	}
	if link.Status != domain.LinkActive {
		t.Fatalf("new links must be active, got %s", link.Status)
	}
	if link.Amount != repo.milestone.Amount {
		t.Fatalf("link amount must match the milestone, got %f", link.Amount)
	}
	if link.MilestoneID == nil || *link.MilestoneID != repo.milestone.ID {
		t.Fatal("expected the link to be bound to the milestone")
	}
	wantExpiry := time.Now().UTC().Add(7 * 24 * time.Hour)
	if diff := link.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expected a 7-day expiry, got %s", link.ExpiresAt)
	}
	if got := svc.ShareURL(link); got != "https://rentrooms.app/pay/"+link.Token {
		t.Fatalf("unexpected share url %q", got)
	}
}

func TestIssuePaymentLink_RefreshesExistingActiveLinkInPlace(t *testing.T) {
	repo := linkFixture()
	repo.activeLink = &domain.PaymentLink{
		ID:          uuid.New(),
		Token:       "existing-token",
		MilestoneID: &repo.milestone.ID,
		Amount:      250,
		Status:      domain.LinkActive,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	svc := newTestService(repo, &rateCatalogStub{})

	link, err := svc.IssueOrRefreshPaymentLink(context.Background(), repo.milestone.ID)
	if err != nil {
		t.Fatalf("IssueOrRefreshPaymentLink returned error: %v", err)
	}

	if !repo.refreshCalled {
		t.Fatal("expected the existing link to be refreshed")
	}
	if repo.createdLink != nil {
		t.Fatal("re-issuing must not mint a second link for the milestone")
	}
	if repo.refreshedID != repo.activeLink.ID {
		t.Fatal("expected the active link to be the one refreshed")
	}
	if link.Token != "existing-token" {
		t.Fatal("the shared token must survive a refresh")
	}
	if link.Amount != repo.milestone.Amount {
		t.Fatalf("expected the refreshed amount to track the milestone, got %f", link.Amount)
	}
}

func TestIssuePaymentLink_RejectsPaidMilestone(t *testing.T) {
	repo := linkFixture()
	repo.milestone.PaymentStatus = domain.MilestonePaid
	svc := newTestService(repo, &rateCatalogStub{})

	_, err := svc.IssueOrRefreshPaymentLink(context.Background(), repo.milestone.ID)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for paid milestone, got %v", err)
	}
}

func TestRedeemPaymentLink_SettlesEverythingInOneWriteSet(t *testing.T) {
	repo := linkFixture()
	repo.tokenLink = &domain.PaymentLink{
		ID:          uuid.New(),
		Token:       "tok",
		UserID:      repo.booking.UserID,
		BookingID:   repo.booking.ID,
		MilestoneID: &repo.milestone.ID,
		Amount:      300,
		Status:      domain.LinkActive,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	stale := domain.PaymentTransaction{ID: uuid.New(), Status: domain.TransactionCompleted}
	repo.competing = []domain.PaymentTransaction{stale}
	svc := newTestService(repo, &rateCatalogStub{})

	payment, link, err := svc.RedeemPaymentLink(context.Background(), "tok", "card")
	if err != nil {
		t.Fatalf("RedeemPaymentLink returned error: %v", err)
	}

	if !repo.redeemCalled {
		t.Fatal("expected the atomic redemption to run")
	}
	if payment.Status != domain.TransactionCompleted || payment.Amount != 300 {
		t.Fatalf("expected a completed payment of 300, got %s/%f", payment.Status, payment.Amount)
	}
	if payment.MilestoneID == nil || *payment.MilestoneID != repo.milestone.ID {
		t.Fatal("expected the payment to reference the link's milestone")
	}
	if link.Status != domain.LinkCompleted {
		t.Fatalf("expected the link to complete, got %s", link.Status)
	}
	if len(repo.redeemParams.CancelTransactionIDs) != 1 || repo.redeemParams.CancelTransactionIDs[0] != stale.ID {
		t.Fatal("expected the stale settlement to be cancelled in the same write set")
	}
}

func TestRedeemPaymentLink_RejectsExpiredAndInactiveLinks(t *testing.T) {
	repo := linkFixture()
	repo.tokenLink = &domain.PaymentLink{
		ID:        uuid.New(),
		Token:     "tok",
		BookingID: repo.booking.ID,
		Status:    domain.LinkActive,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := newTestService(repo, &rateCatalogStub{})

	if _, _, err := svc.RedeemPaymentLink(context.Background(), "tok", ""); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
	if repo.redeemCalled {
		t.Fatal("an expired link must not reach the store")
	}

	repo.tokenLink.Status = domain.LinkCompleted
	repo.tokenLink.ExpiresAt = time.Now().UTC().Add(time.Hour)
	if _, _, err := svc.RedeemPaymentLink(context.Background(), "tok", ""); !errors.Is(err, ErrLinkNotActive) {
		t.Fatalf("expected ErrLinkNotActive, got %v", err)
	}
}

func TestRedeemPaymentLink_UnknownTokenIsNotFound(t *testing.T) {
	repo := linkFixture()
	svc := newTestService(repo, &rateCatalogStub{})

	_, _, err := svc.RedeemPaymentLink(context.Background(), "nope", "")
	if !errors.Is(err, store.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestRedeemPaymentLink_LostRaceSurfacesAsNotActive(t *testing.T) {
	repo := linkFixture()
	repo.tokenLink = &domain.PaymentLink{
		ID:        uuid.New(),
		Token:     "tok",
		BookingID: repo.booking.ID,
		Status:    domain.LinkActive,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	repo.redeemErr = store.ErrLinkNotActive
	svc := newTestService(repo, &rateCatalogStub{})

	_, _, err := svc.RedeemPaymentLink(context.Background(), "tok", "")
	if !errors.Is(err, ErrLinkNotActive) {
		t.Fatalf("expected ErrLinkNotActive when losing the redemption race, got %v", err)
	}
}

func TestRevokePaymentLink_MapsInactiveError(t *testing.T) {
	repo := linkFixture()
	repo.revokeErr = store.ErrLinkNotActive
	svc := newTestService(repo, &rateCatalogStub{})

	if err := svc.RevokePaymentLink(context.Background(), uuid.New()); !errors.Is(err, ErrLinkNotActive) {
		t.Fatalf("expected ErrLinkNotActive, got %v", err)
	}
	if !repo.revokeCalled {
		t.Fatal("expected the revoke to reach the store")
	}
}
