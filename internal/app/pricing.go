/**
 * @description
 * Stay pricing. Quoting is pure: it reads rates from the rate catalog and
 * computes a breakdown without touching the database, so a quote can be
 * recomputed on every booking creation.
 *
 * @notes
 * - A room without a configured rate for the requested granularity stays in
 *   the breakdown as a zero-priced line item rather than failing the quote.
 *   Compatibility behavior carried over from the previous billing system.
 * - The per-room line total is rate * number_of_days for every granularity.
 *   Weekly and monthly rates are treated as day rates here; callers that want
 *   calendar-period totals price per period via the milestone schedule.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
)

// BookingFeeRate is the flat service fee charged on top of rent.
const BookingFeeRate = 0.10

// QuoteStay prices a stay for a set of rooms over [from, to) at the given
// rate granularity.
func (s *Service) QuoteStay(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time, priceType domain.PriceType) (*domain.PriceQuote, error) {
	if !to.After(from) {
		return nil, ErrInvalidDateRange
	}
	days := nightsBetween(from, to)

	var rent float64
	lineItems := make([]domain.RoomLineItem, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		rate, ok, err := s.rates.GetRate(ctx, roomID, priceType)
		if err != nil {
			return nil, fmt.Errorf("rate lookup for room %s: %w", roomID, err)
		}
		item := domain.RoomLineItem{RoomID: roomID, Priced: ok}
		if ok {
			item.Rate = rate
			item.LineTotal = domain.Round2(rate * float64(days))
		}
		rent += item.LineTotal
		lineItems = append(lineItems, item)
	}

	rent = domain.Round2(rent)
	fee := domain.Round2(rent * BookingFeeRate)
	return &domain.PriceQuote{
		RentAmount:   rent,
		BookingFee:   fee,
		TotalAmount:  domain.Round2(rent + fee),
		NumberOfDays: days,
		LineItems:    lineItems,
	}, nil
}

// priceRooms sums rate * days across rooms without the fee overlay. Used by
// extensions, which charge rent only.
func (s *Service) priceRooms(ctx context.Context, roomIDs []uuid.UUID, priceType domain.PriceType, days int) (float64, error) {
	var total float64
	for _, roomID := range roomIDs {
		rate, ok, err := s.rates.GetRate(ctx, roomID, priceType)
		if err != nil {
			return 0, fmt.Errorf("rate lookup for room %s: %w", roomID, err)
		}
		if !ok {
			continue
		}
		total += domain.Round2(rate * float64(days))
	}
	return domain.Round2(total), nil
}
