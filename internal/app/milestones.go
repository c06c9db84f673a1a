/**
 * @description
 * Milestone scheduling. A booking's payment schedule is generated lazily on
 * first access and persisted all-or-nothing; whether a booking has a schedule
 * is tracked by an explicit flag on the booking row rather than inferred from
 * the milestone count.
 *
 * @notes
 * - Installments divide the rent evenly and round each installment to two
 *   decimals. The rounding remainder is NOT redistributed by default, so the
 *   milestone sum may drift from the booking total by up to count/2 minor
 *   units. RedistributeRemainder folds the drift into the last installment.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
	"github.com/rentrooms/booking-service/internal/store"
)

// GetOrGenerateMilestones returns a booking's payment schedule, generating
// and persisting it on first access. Generation is idempotent: a concurrent
// first access yields the same single schedule.
func (s *Service) GetOrGenerateMilestones(ctx context.Context, bookingID uuid.UUID) ([]domain.Milestone, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.MilestonesScheduled {
		return s.repo.FindMilestonesByBooking(ctx, bookingID)
	}

	if booking.TotalAmount <= 0 || booking.NumberOfDays <= 0 || !booking.ToDate.After(booking.FromDate) {
		return nil, ErrIncompleteBookingState
	}

	schedule := buildMilestoneSchedule(booking, s.redistributeRemainder)
	if err := s.repo.CreateMilestones(ctx, bookingID, schedule); err != nil {
		if errors.Is(err, store.ErrMilestonesAlreadyScheduled) {
			// Lost the generation race; the winner's schedule is the schedule.
			return s.repo.FindMilestonesByBooking(ctx, bookingID)
		}
		return nil, fmt.Errorf("failed to persist milestone schedule: %w", err)
	}

	log.Printf("level=info component=app msg=\"milestone schedule generated\" booking_id=%s installments=%d",
		bookingID, len(schedule)-1)
	return schedule, nil
}

// buildMilestoneSchedule produces the fee milestone followed by the periodic
// rent installments. Sequence 0 is the booking fee, due at move-in.
func buildMilestoneSchedule(booking *domain.Booking, redistribute bool) []domain.Milestone {
	count := periodsBetween(booking.FromDate, booking.ToDate, booking.PriceType)
	installment := domain.Round2(booking.RentAmount / float64(count))

	milestones := make([]domain.Milestone, 0, count+1)
	milestones = append(milestones, domain.Milestone{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		Sequence:      0,
		PriceType:     booking.PriceType,
		DueDate:       booking.FromDate,
		Amount:        booking.BookingFee,
		IsBookingFee:  true,
		PaymentStatus: domain.MilestonePending,
	})

	for i := 1; i <= count; i++ {
		amount := installment
		if redistribute && i == count {
			amount = domain.Round2(booking.RentAmount - installment*float64(count-1))
		}
		milestones = append(milestones, domain.Milestone{
			ID:            uuid.New(),
			BookingID:     booking.ID,
			Sequence:      i,
			PriceType:     booking.PriceType,
			DueDate:       periodDueDate(booking.FromDate, booking.PriceType, i-1),
			Amount:        amount,
			PaymentStatus: domain.MilestonePending,
		})
	}
	return milestones
}

// periodsBetween counts billing periods in [from, to) for a granularity:
// whole calendar months, ceil(days/7) weeks, or days. Never less than 1.
func periodsBetween(from, to time.Time, priceType domain.PriceType) int {
	days := nightsBetween(from, to)
	var periods int
	switch priceType {
	case domain.PriceTypeMonth:
		for from.AddDate(0, periods+1, 0).Before(to) || from.AddDate(0, periods+1, 0).Equal(to) {
			periods++
		}
	case domain.PriceTypeWeek:
		periods = int(math.Ceil(float64(days) / 7))
	default:
		periods = days
	}
	if periods < 1 {
		periods = 1
	}
	return periods
}

// periodDueDate is the start of the nth billing period after move-in.
func periodDueDate(from time.Time, priceType domain.PriceType, n int) time.Time {
	switch priceType {
	case domain.PriceTypeMonth:
		return from.AddDate(0, n, 0)
	case domain.PriceTypeWeek:
		return from.AddDate(0, 0, 7*n)
	default:
		return from.AddDate(0, 0, n)
	}
}
