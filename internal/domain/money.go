/**
 * @description
 * Shared money arithmetic for the booking engine. Both the application layer
 * and the Postgres repository (which recomputes the booking payment status
 * inside its transactions) depend on these helpers, so they live in the
 * domain package.
 */

package domain

import "math"

// MoneyTolerance is the rounding tolerance used when comparing summed
// installment amounts against a booking total. The installment division does
// not redistribute its rounding remainder, so milestone sums may drift from
// the total by a few minor units.
const MoneyTolerance = 0.01

// Round2 rounds a currency amount to two decimal places.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ReconcilePaymentStatus derives a booking's aggregate payment status from
// the sum of its completed payment amounts and its milestone paid counts.
// The status is "paid" only when the monetary sum covers the total AND every
// existing milestone is individually marked paid; a booking with no
// milestones generated yet satisfies the milestone condition vacuously.
func ReconcilePaymentStatus(totalAmount, completedSum float64, milestonesPaid, milestonesTotal int) PaymentState {
	covered := completedSum >= totalAmount-MoneyTolerance
	allMilestonesPaid := milestonesPaid == milestonesTotal

	switch {
	case covered && allMilestonesPaid:
		return PaymentStatePaid
	case completedSum > 0:
		return PaymentStatePartiallyPaid
	default:
		return PaymentStatePending
	}
}
