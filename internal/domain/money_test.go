package domain

import "testing"

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{33.333333, 33.33},
		{33.335, 33.34},
		{9.999, 10.00},
		{-33.335, -33.33},
		{0, 0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Fatalf("Round2(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

func TestReconcilePaymentStatus(t *testing.T) {
	cases := []struct {
		name            string
		total           float64
		completedSum    float64
		milestonesPaid  int
		milestonesTotal int
		want            PaymentState
	}{
		{"nothing paid", 990, 0, 0, 4, PaymentStatePending},
		{"partial money", 990, 90, 1, 4, PaymentStatePartiallyPaid},
		{"covered but milestone open", 990, 990, 3, 4, PaymentStatePartiallyPaid},
		{"covered and all milestones paid", 990, 990, 4, 4, PaymentStatePaid},
		{"covered within tolerance", 990, 989.99, 4, 4, PaymentStatePaid},
		{"just outside tolerance", 990, 989.97, 4, 4, PaymentStatePartiallyPaid},
		{"no milestones generated yet, fully paid", 110, 110, 0, 0, PaymentStatePaid},
		{"no milestones generated yet, fee only", 110, 10, 0, 0, PaymentStatePartiallyPaid},
		{"refund nets the sum back to zero", 110, 0, 0, 0, PaymentStatePending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ReconcilePaymentStatus(tc.total, tc.completedSum, tc.milestonesPaid, tc.milestonesTotal)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
