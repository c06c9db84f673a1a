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

type lifecycleRepoStub struct {
	store.Repository

	booking  *domain.Booking
	overlaps int

	createdBooking *domain.Booking
	createdPayment *domain.PaymentTransaction

	extendCalled bool
	extendParams store.ExtendBookingParams

	cancelCalled bool
	cancelParams store.CancelBookingParams
}

func (s *lifecycleRepoStub) CountOverlappingBookings(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) (int, error) {
	return s.overlaps, nil
}

func (s *lifecycleRepoStub) CreateBookingWithPayment(ctx context.Context, booking *domain.Booking, payment *domain.PaymentTransaction) error {
	s.createdBooking = booking
	s.createdPayment = payment
	return nil
}

func (s *lifecycleRepoStub) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	if s.booking == nil {
		return nil, store.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *lifecycleRepoStub) ExtendBookingWithCharge(ctx context.Context, params store.ExtendBookingParams) (*domain.Booking, error) {
	s.extendCalled = true
	s.extendParams = params
	updated := *s.booking
	updated.ToDate = params.NewToDate
	updated.NumberOfDays = params.NumberOfDays
	updated.RentAmount += params.ExtraAmount
	updated.TotalAmount += params.ExtraAmount
	return &updated, nil
}

func (s *lifecycleRepoStub) CancelBookingWithRefund(ctx context.Context, params store.CancelBookingParams) (*domain.Booking, error) {
	s.cancelCalled = true
	s.cancelParams = params
	updated := *s.booking
	updated.Status = domain.BookingCancelled
	updated.CancellationReason = &params.Reason
	updated.CancelledAt = &params.CancelledAt
	return &updated, nil
}

func validCreateRequest(roomID uuid.UUID) domain.CreateBookingRequest {
	return domain.CreateBookingRequest{
		UserID:        uuid.New(),
		PackageID:     uuid.New(),
		RoomIDs:       []uuid.UUID{roomID},
		FromDate:      date(2025, 4, 1),
		ToDate:        date(2025, 4, 11),
		PriceType:     domain.PriceTypeDay,
		PaymentOption: domain.PaymentOptionBookingOnly,
		PaymentMethod: "card",
	}
}

func TestCreateBooking_RejectsOverlappingRooms(t *testing.T) {
	roomID := uuid.New()
	repo := &lifecycleRepoStub{overlaps: 1}
	svc := newTestService(repo, &rateCatalogStub{rates: map[uuid.UUID]float64{roomID: 10}})

	_, err := svc.CreateBooking(context.Background(), validCreateRequest(roomID))
	if !errors.Is(err, ErrRoomUnavailable) {
		t.Fatalf("expected ErrRoomUnavailable, got %v", err)
	}
	if repo.createdBooking != nil {
		t.Fatal("no booking should be persisted when rooms overlap")
	}
}

func TestCreateBooking_BookingOnlyTakesFeeAndStaysPending(t *testing.T) {
	roomID := uuid.New()
	repo := &lifecycleRepoStub{}
	svc := newTestService(repo, &rateCatalogStub{rates: map[uuid.UUID]float64{roomID: 10}})

	// 10 nights at 10/day: rent 100, fee 10, total 110.
	booking, err := svc.CreateBooking(context.Background(), validCreateRequest(roomID))
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}

	if booking.Status != domain.BookingPending {
		t.Fatalf("expected pending booking, got %s", booking.Status)
	}
	if booking.PaymentStatus != domain.PaymentStatePending {
		t.Fatalf("expected pending payment status, got %s", booking.PaymentStatus)
	}
	if booking.TotalAmount != booking.RentAmount+booking.BookingFee {
		t.Fatalf("total invariant broken: %f != %f + %f", booking.TotalAmount, booking.RentAmount, booking.BookingFee)
	}
	if repo.createdPayment == nil {
		t.Fatal("expected an initial payment to be persisted")
	}
	if repo.createdPayment.Type != domain.TransactionTypeBookingFee {
		t.Fatalf("expected booking_fee payment, got %s", repo.createdPayment.Type)
	}
	if repo.createdPayment.Amount != 10 {
		t.Fatalf("expected fee payment of 10, got %f", repo.createdPayment.Amount)
	}
	if repo.createdPayment.Status != domain.TransactionCompleted {
		t.Fatalf("expected completed fee payment, got %s", repo.createdPayment.Status)
	}
}

func TestCreateBooking_FullPaymentConfirmsImmediately(t *testing.T) {
	roomID := uuid.New()
	repo := &lifecycleRepoStub{}
	svc := newTestService(repo, &rateCatalogStub{rates: map[uuid.UUID]float64{roomID: 10}})

	req := validCreateRequest(roomID)
	req.PaymentOption = domain.PaymentOptionFull

	booking, err := svc.CreateBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}

	if booking.Status != domain.BookingConfirmed {
		t.Fatalf("expected confirmed booking, got %s", booking.Status)
	}
	if booking.PaymentStatus != domain.PaymentStatePaid {
		t.Fatalf("expected paid payment status, got %s", booking.PaymentStatus)
	}
	if repo.createdPayment.Type != domain.TransactionTypeFullPayment {
		t.Fatalf("expected full_payment transaction, got %s", repo.createdPayment.Type)
	}
	if repo.createdPayment.Amount != booking.TotalAmount {
		t.Fatalf("expected payment of the full total %f, got %f", booking.TotalAmount, repo.createdPayment.Amount)
	}
}

func TestCreateBooking_ValidatesRequest(t *testing.T) {
	roomID := uuid.New()
	svc := newTestService(&lifecycleRepoStub{}, &rateCatalogStub{rates: map[uuid.UUID]float64{roomID: 10}})

	cases := []struct {
		name   string
		mutate func(*domain.CreateBookingRequest)
		want   error
	}{
		{"no rooms", func(r *domain.CreateBookingRequest) { r.RoomIDs = nil }, ErrValidation},
		{"no payment method", func(r *domain.CreateBookingRequest) { r.PaymentMethod = "" }, ErrValidation},
		{"bad price type", func(r *domain.CreateBookingRequest) { r.PriceType = "Hourly" }, ErrValidation},
		{"bad payment option", func(r *domain.CreateBookingRequest) { r.PaymentOption = "layaway" }, ErrValidation},
		{"same-day range", func(r *domain.CreateBookingRequest) { r.ToDate = r.FromDate }, ErrInvalidDateRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest(roomID)
			tc.mutate(&req)
			if _, err := svc.CreateBooking(context.Background(), req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestExtendBooking_ChargesRateTimesExtraDays(t *testing.T) {
	roomID := uuid.New()
	repo := &lifecycleRepoStub{booking: &domain.Booking{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		RoomIDs:       []uuid.UUID{roomID},
		FromDate:      date(2025, 4, 1),
		ToDate:        date(2025, 4, 11),
		NumberOfDays:  10,
		PriceType:     domain.PriceTypeDay,
		RentAmount:    200,
		BookingFee:    20,
		TotalAmount:   220,
		Status:        domain.BookingConfirmed,
		PaymentStatus: domain.PaymentStatePaid,
	}}
	svc := newTestService(repo, &rateCatalogStub{rates: map[uuid.UUID]float64{roomID: 20}})

	// 14 extra days at 20/day.
	updated, err := svc.ExtendBooking(context.Background(), repo.booking.ID, date(2025, 4, 25), "card")
	if err != nil {
		t.Fatalf("ExtendBooking returned error: %v", err)
	}

	if repo.extendParams.ExtraAmount != 280 {
		t.Fatalf("expected extra charge 280, got %f", repo.extendParams.ExtraAmount)
	}
	if repo.extendParams.NumberOfDays != 24 {
		t.Fatalf("expected 24 total days, got %d", repo.extendParams.NumberOfDays)
	}
	if updated.TotalAmount != 500 {
		t.Fatalf("expected total 500 after extension, got %f", updated.TotalAmount)
	}
	if updated.TotalAmount != updated.RentAmount+updated.BookingFee {
		t.Fatalf("total invariant broken after extension: %f != %f + %f",
			updated.TotalAmount, updated.RentAmount, updated.BookingFee)
	}

	payment := repo.extendParams.Payment
	if payment == nil {
		t.Fatal("expected an extension payment")
	}
	if payment.Type != domain.TransactionTypeExtension {
		t.Fatalf("expected extension transaction, got %s", payment.Type)
	}
	if payment.Status != domain.TransactionPending {
		t.Fatalf("extension charge must start pending, got %s", payment.Status)
	}
	if payment.MilestoneID != nil {
		t.Fatal("extension charges carry no milestone reference")
	}
}

func TestExtendBooking_RejectsNonForwardDate(t *testing.T) {
	repo := &lifecycleRepoStub{booking: &domain.Booking{
		ID:       uuid.New(),
		RoomIDs:  []uuid.UUID{uuid.New()},
		FromDate: date(2025, 4, 1),
		ToDate:   date(2025, 4, 11),
		Status:   domain.BookingConfirmed,
	}}
	svc := newTestService(repo, &rateCatalogStub{})

	for _, to := range []time.Time{date(2025, 4, 11), date(2025, 4, 5)} {
		if _, err := svc.ExtendBooking(context.Background(), repo.booking.ID, to, "card"); !errors.Is(err, ErrInvalidExtension) {
			t.Fatalf("expected ErrInvalidExtension for %s, got %v", to, err)
		}
	}
	if repo.extendCalled {
		t.Fatal("no extension should be persisted for an invalid date")
	}
}

func TestCancelBooking_FullRefundRecordedAsNegativeCompletedTransaction(t *testing.T) {
	repo := &lifecycleRepoStub{booking: &domain.Booking{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		TotalAmount: 330,
		Status:      domain.BookingConfirmed,
	}}
	svc := newTestService(repo, &rateCatalogStub{})

	booking, err := svc.CancelBooking(context.Background(), repo.booking.ID, "guest request", 330, "card")
	if err != nil {
		t.Fatalf("CancelBooking returned error: %v", err)
	}

	if booking.Status != domain.BookingCancelled {
		t.Fatalf("expected cancelled booking, got %s", booking.Status)
	}
	if booking.CancellationReason == nil || *booking.CancellationReason != "guest request" {
		t.Fatal("expected the cancellation reason to be recorded")
	}

	refund := repo.cancelParams.Refund
	if refund == nil {
		t.Fatal("expected a refund transaction")
	}
	if refund.Amount != -330 {
		t.Fatalf("expected refund amount -330, got %f", refund.Amount)
	}
	if refund.Type != domain.TransactionTypeRefund || refund.Status != domain.TransactionCompleted {
		t.Fatalf("expected completed refund transaction, got %s/%s", refund.Type, refund.Status)
	}
}

func TestCancelBooking_Validation(t *testing.T) {
	repo := &lifecycleRepoStub{booking: &domain.Booking{ID: uuid.New(), TotalAmount: 100}}
	svc := newTestService(repo, &rateCatalogStub{})

	if _, err := svc.CancelBooking(context.Background(), repo.booking.ID, "", 0, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing reason, got %v", err)
	}
	if _, err := svc.CancelBooking(context.Background(), repo.booking.ID, "r", 150, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for refund above total, got %v", err)
	}
	if repo.cancelCalled {
		t.Fatal("no cancellation should be persisted on validation failure")
	}

	if _, err := svc.CancelBooking(context.Background(), repo.booking.ID, "no refund", 0, ""); err != nil {
		t.Fatalf("cancel without refund should succeed, got %v", err)
	}
	if repo.cancelParams.Refund != nil {
		t.Fatal("zero refund must not create a refund transaction")
	}
}
