/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * owned by this core: bookings, booking_milestones, payment_transactions and
 * payment_links.
 *
 * @notes
 * - Every composite operation runs inside a single pgx transaction and locks the
 *   booking row with FOR UPDATE first, so concurrent mutations of the same
 *   booking are serialized at the data store.
 * - After any payment-affecting write the booking's payment_status is recomputed
 *   inside the same transaction from the post-write aggregates.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentrooms/booking-service/internal/domain"
)

var (
	ErrBookingNotFound            = errors.New("booking not found")
	ErrMilestoneNotFound          = errors.New("milestone not found")
	ErrPaymentNotFound            = errors.New("payment transaction not found")
	ErrLinkNotFound               = errors.New("payment link not found")
	ErrLinkNotActive              = errors.New("payment link is not active")
	ErrMilestonesAlreadyScheduled = errors.New("milestones already scheduled for booking")
	ErrStaleBookingState          = errors.New("booking state changed concurrently")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const bookingColumns = `
	id, user_id, package_id, room_ids, from_date, to_date, number_of_days,
	price_type, rent_amount, booking_fee, total_amount, payment_option,
	status, payment_status, cancellation_reason, cancelled_at,
	auto_renew, next_renewal_date, milestones_scheduled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.PackageID, &b.RoomIDs, &b.FromDate, &b.ToDate, &b.NumberOfDays,
		&b.PriceType, &b.RentAmount, &b.BookingFee, &b.TotalAmount, &b.PaymentOption,
		&b.Status, &b.PaymentStatus, &b.CancellationReason, &b.CancelledAt,
		&b.AutoRenew, &b.NextRenewalDate, &b.MilestonesScheduled, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

const milestoneColumns = `
	id, booking_id, sequence, price_type, due_date, amount, is_booking_fee,
	payment_status, payment_id, paid_at, payment_method, transaction_ref,
	created_at, updated_at`

func scanMilestone(row rowScanner) (*domain.Milestone, error) {
	var m domain.Milestone
	err := row.Scan(
		&m.ID, &m.BookingID, &m.Sequence, &m.PriceType, &m.DueDate, &m.Amount, &m.IsBookingFee,
		&m.PaymentStatus, &m.PaymentID, &m.PaidAt, &m.PaymentMethod, &m.TransactionRef,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMilestoneNotFound
		}
		return nil, err
	}
	return &m, nil
}

const paymentColumns = `
	id, booking_id, user_id, milestone_id, amount, payment_method, type,
	status, reference, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (*domain.PaymentTransaction, error) {
	var p domain.PaymentTransaction
	err := row.Scan(
		&p.ID, &p.BookingID, &p.UserID, &p.MilestoneID, &p.Amount, &p.PaymentMethod, &p.Type,
		&p.Status, &p.Reference, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

const linkColumns = `
	id, token, user_id, booking_id, milestone_id, amount, status,
	expires_at, paid_at, created_at, updated_at`

func scanLink(row rowScanner) (*domain.PaymentLink, error) {
	var l domain.PaymentLink
	err := row.Scan(
		&l.ID, &l.Token, &l.UserID, &l.BookingID, &l.MilestoneID, &l.Amount, &l.Status,
		&l.ExpiresAt, &l.PaidAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &l, nil
}

// FindBookingByID retrieves a booking by its id.
func (r *PostgresRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

// CountOverlappingBookings counts non-cancelled bookings that hold any of the
// given rooms in a window overlapping [from, to). The overlap test is
// existing.from < new.to AND existing.to > new.from.
func (r *PostgresRepository) CountOverlappingBookings(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE room_ids && $1
		  AND status <> 'cancelled'
		  AND from_date < $3
		  AND to_date > $2
	`
	err := r.db.QueryRow(ctx, query, roomIDs, from, to).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateBookingWithPayment inserts a booking together with its first payment
// transaction in one transaction.
func (r *PostgresRepository) CreateBookingWithPayment(ctx context.Context, booking *domain.Booking, payment *domain.PaymentTransaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	bookingQuery := `
		INSERT INTO bookings (
			id, user_id, package_id, room_ids, from_date, to_date, number_of_days,
			price_type, rent_amount, booking_fee, total_amount, payment_option,
			status, payment_status, auto_renew, next_renewal_date, milestones_scheduled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if _, err := tx.Exec(ctx, bookingQuery,
		booking.ID, booking.UserID, booking.PackageID, booking.RoomIDs,
		booking.FromDate, booking.ToDate, booking.NumberOfDays,
		booking.PriceType, booking.RentAmount, booking.BookingFee, booking.TotalAmount,
		booking.PaymentOption, booking.Status, booking.PaymentStatus,
		booking.AutoRenew, booking.NextRenewalDate, booking.MilestonesScheduled,
	); err != nil {
		return err
	}

	if err := insertPaymentTx(ctx, tx, payment); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertPaymentTx(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			id, booking_id, user_id, milestone_id, amount, payment_method,
			type, status, reference, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Exec(ctx, query,
		p.ID, p.BookingID, p.UserID, p.MilestoneID, p.Amount, p.PaymentMethod,
		p.Type, p.Status, p.Reference, p.PaidAt,
	)
	return err
}

// ExtendBookingWithCharge moves a booking's to_date forward and records the
// pending extension charge in one transaction. The booking row is locked and
// the new date re-validated under the lock so a racing extension or
// cancellation cannot slip through.
func (r *PostgresRepository) ExtendBookingWithCharge(ctx context.Context, params ExtendBookingParams) (*domain.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var currentTo time.Time
	var status domain.BookingStatus
	err = tx.QueryRow(ctx, `SELECT to_date, status FROM bookings WHERE id = $1 FOR UPDATE`, params.BookingID).
		Scan(&currentTo, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if status == domain.BookingCancelled || !params.NewToDate.After(currentTo) {
		return nil, ErrStaleBookingState
	}

	updateQuery := `
		UPDATE bookings
		SET to_date = $2,
		    number_of_days = $3,
		    rent_amount = rent_amount + $4,
		    total_amount = total_amount + $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	booking, err := scanBooking(tx.QueryRow(ctx, updateQuery,
		params.BookingID, params.NewToDate, params.NumberOfDays, params.ExtraAmount))
	if err != nil {
		return nil, err
	}

	if err := insertPaymentTx(ctx, tx, params.Payment); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return booking, nil
}

// CancelBookingWithRefund marks a booking cancelled and optionally records a
// refund transaction in the same transaction. Milestones are left untouched
// as historical record.
func (r *PostgresRepository) CancelBookingWithRefund(ctx context.Context, params CancelBookingParams) (*domain.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var status domain.BookingStatus
	err = tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, params.BookingID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if status == domain.BookingCancelled {
		return nil, ErrStaleBookingState
	}

	updateQuery := `
		UPDATE bookings
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    cancelled_at = $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	booking, err := scanBooking(tx.QueryRow(ctx, updateQuery, params.BookingID, params.Reason, params.CancelledAt))
	if err != nil {
		return nil, err
	}

	if params.Refund != nil {
		if err := insertPaymentTx(ctx, tx, params.Refund); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return booking, nil
}

// FindMilestonesByBooking returns a booking's milestones ordered by sequence.
func (r *PostgresRepository) FindMilestonesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM booking_milestones WHERE booking_id = $1 ORDER BY sequence`
	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

// FindMilestoneByID retrieves a single milestone.
func (r *PostgresRepository) FindMilestoneByID(ctx context.Context, milestoneID uuid.UUID) (*domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM booking_milestones WHERE id = $1`
	return scanMilestone(r.db.QueryRow(ctx, query, milestoneID))
}

// FindEarliestPendingMilestoneByAmount is the compatibility fallback for
// legacy transactions without a milestone reference: the earliest-due, still
// pending milestone of the booking with an equal amount.
func (r *PostgresRepository) FindEarliestPendingMilestoneByAmount(ctx context.Context, bookingID uuid.UUID, amount float64) (*domain.Milestone, error) {
	query := `
		SELECT ` + milestoneColumns + `
		FROM booking_milestones
		WHERE booking_id = $1
		  AND payment_status = 'pending'
		  AND amount = $2
		ORDER BY due_date, sequence
		LIMIT 1
	`
	return scanMilestone(r.db.QueryRow(ctx, query, bookingID, amount))
}

// FindMilestoneByPaymentID retrieves the milestone settled by a given payment
// transaction, via the milestone's payment back-reference.
func (r *PostgresRepository) FindMilestoneByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM booking_milestones WHERE payment_id = $1`
	return scanMilestone(r.db.QueryRow(ctx, query, paymentID))
}

// CreateMilestones persists the full milestone schedule of a booking in one
// transaction, guarded by the booking's milestones_scheduled flag under a row
// lock so concurrent first-access generates the set exactly once.
func (r *PostgresRepository) CreateMilestones(ctx context.Context, bookingID uuid.UUID, milestones []domain.Milestone) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var scheduled bool
	err = tx.QueryRow(ctx, `SELECT milestones_scheduled FROM bookings WHERE id = $1 FOR UPDATE`, bookingID).Scan(&scheduled)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrBookingNotFound
		}
		return err
	}
	if scheduled {
		return ErrMilestonesAlreadyScheduled
	}

	insertQuery := `
		INSERT INTO booking_milestones (
			id, booking_id, sequence, price_type, due_date, amount,
			is_booking_fee, payment_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, m := range milestones {
		if _, err := tx.Exec(ctx, insertQuery,
			m.ID, m.BookingID, m.Sequence, m.PriceType, m.DueDate, m.Amount,
			m.IsBookingFee, m.PaymentStatus,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE bookings SET milestones_scheduled = TRUE, updated_at = NOW() WHERE id = $1`, bookingID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindPaymentByID retrieves a payment transaction by its id.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, transactionID uuid.UUID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, transactionID))
}

// FindPaymentsByBooking returns all payment transactions of a booking, oldest first.
func (r *PostgresRepository) FindPaymentsByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE booking_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// FindCompletedPaymentsByMilestone returns the completed transactions
// currently recorded against a milestone. The single-active-settlement
// invariant keeps this at most one, but the ledger reads the full set so it
// can cancel strays.
func (r *PostgresRepository) FindCompletedPaymentsByMilestone(ctx context.Context, milestoneID uuid.UUID) ([]domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE milestone_id = $1 AND status = 'completed'`
	rows, err := r.db.Query(ctx, query, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// ApplyPaymentStatus applies a planned ledger status change: the transaction
// itself, the milestone settlement or reset, competing transaction
// cancellations, link transitions, and the booking-level payment status
// recomputation, all inside one transaction.
func (r *PostgresRepository) ApplyPaymentStatus(ctx context.Context, params ApplyPaymentStatusParams) (*domain.Booking, *domain.Milestone, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent status changes touching the same booking.
	var bookingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM bookings WHERE id = $1 FOR UPDATE`, params.BookingID).Scan(&bookingID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, ErrBookingNotFound
		}
		return nil, nil, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE payment_transactions SET status = $2, paid_at = $3, updated_at = NOW() WHERE id = $1`,
		params.TransactionID, params.Status, params.PaidAt)
	if err != nil {
		return nil, nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil, ErrPaymentNotFound
	}

	for _, id := range params.CancelTransactionIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_transactions SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, id); err != nil {
			return nil, nil, err
		}
	}

	var milestone *domain.Milestone
	if params.MilestoneID != nil {
		if params.MilestonePaid {
			query := `
				UPDATE booking_milestones
				SET payment_status = 'paid',
				    payment_id = $2,
				    paid_at = $3,
				    payment_method = $4,
				    transaction_ref = $5,
				    updated_at = NOW()
				WHERE id = $1
				RETURNING ` + milestoneColumns
			milestone, err = scanMilestone(tx.QueryRow(ctx, query,
				*params.MilestoneID, params.TransactionID, params.PaidAt, params.PaymentMethod, params.Reference))
		} else {
			query := `
				UPDATE booking_milestones
				SET payment_status = 'pending',
				    payment_id = NULL,
				    paid_at = NULL,
				    payment_method = NULL,
				    transaction_ref = NULL,
				    updated_at = NOW()
				WHERE id = $1
				RETURNING ` + milestoneColumns
			milestone, err = scanMilestone(tx.QueryRow(ctx, query, *params.MilestoneID))
		}
		if err != nil {
			return nil, nil, err
		}
	}

	for _, id := range params.CompleteLinkIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_links SET status = 'completed', paid_at = $2, updated_at = NOW() WHERE id = $1`,
			id, params.PaidAt); err != nil {
			return nil, nil, err
		}
	}
	for _, id := range params.ExpireLinkIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_links SET status = 'expired', updated_at = NOW() WHERE id = $1`, id); err != nil {
			return nil, nil, err
		}
	}

	booking, err := reconcileBookingTx(ctx, tx, params.BookingID, params.OverridePaymentState)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return booking, milestone, nil
}

// reconcileBookingTx recomputes a booking's payment_status from the sum of
// its completed payment amounts and its milestone paid counts, inside the
// caller's transaction.
func reconcileBookingTx(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, override *domain.PaymentState) (*domain.Booking, error) {
	var state domain.PaymentState
	if override != nil {
		state = *override
	} else {
		var totalAmount, completedSum float64
		var milestonesTotal, milestonesPaid int

		err := tx.QueryRow(ctx, `
			SELECT b.total_amount,
			       COALESCE((SELECT SUM(amount) FROM payment_transactions WHERE booking_id = b.id AND status = 'completed'), 0),
			       (SELECT COUNT(*) FROM booking_milestones WHERE booking_id = b.id),
			       (SELECT COUNT(*) FROM booking_milestones WHERE booking_id = b.id AND payment_status = 'paid')
			FROM bookings b
			WHERE b.id = $1
		`, bookingID).Scan(&totalAmount, &completedSum, &milestonesTotal, &milestonesPaid)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrBookingNotFound
			}
			return nil, err
		}

		state = domain.ReconcilePaymentStatus(totalAmount, completedSum, milestonesPaid, milestonesTotal)
	}

	query := `UPDATE bookings SET payment_status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + bookingColumns
	return scanBooking(tx.QueryRow(ctx, query, bookingID, state))
}

// FindLinkByToken retrieves a payment link by its opaque token.
func (r *PostgresRepository) FindLinkByToken(ctx context.Context, token string) (*domain.PaymentLink, error) {
	query := `SELECT ` + linkColumns + ` FROM payment_links WHERE token = $1`
	return scanLink(r.db.QueryRow(ctx, query, token))
}

// FindActiveLinkByMilestone returns the single active link bound to a
// milestone, if one exists.
func (r *PostgresRepository) FindActiveLinkByMilestone(ctx context.Context, milestoneID uuid.UUID) (*domain.PaymentLink, error) {
	query := `SELECT ` + linkColumns + ` FROM payment_links WHERE milestone_id = $1 AND status = 'active' LIMIT 1`
	return scanLink(r.db.QueryRow(ctx, query, milestoneID))
}

// FindLinksByMilestone returns every link ever issued for a milestone.
func (r *PostgresRepository) FindLinksByMilestone(ctx context.Context, milestoneID uuid.UUID) ([]domain.PaymentLink, error) {
	query := `SELECT ` + linkColumns + ` FROM payment_links WHERE milestone_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.PaymentLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// CreatePaymentLink inserts a new payment link.
func (r *PostgresRepository) CreatePaymentLink(ctx context.Context, link *domain.PaymentLink) error {
	query := `
		INSERT INTO payment_links (
			id, token, user_id, booking_id, milestone_id, amount, status, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		link.ID, link.Token, link.UserID, link.BookingID, link.MilestoneID,
		link.Amount, link.Status, link.ExpiresAt,
	)
	return err
}

// RefreshPaymentLink updates an active link's amount and expiry in place
// (update-not-duplicate semantics for re-issuing).
func (r *PostgresRepository) RefreshPaymentLink(ctx context.Context, linkID uuid.UUID, amount float64, expiresAt time.Time) (*domain.PaymentLink, error) {
	query := `
		UPDATE payment_links
		SET amount = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + linkColumns
	link, err := scanLink(r.db.QueryRow(ctx, query, linkID, amount, expiresAt))
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return nil, ErrLinkNotActive
		}
		return nil, err
	}
	return link, nil
}

// RevokePaymentLink transitions a link to revoked by administrative action.
func (r *PostgresRepository) RevokePaymentLink(ctx context.Context, linkID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payment_links SET status = 'revoked', updated_at = NOW() WHERE id = $1 AND status = 'active'`, linkID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotActive
	}
	return nil
}

// RedeemLinkAtomic settles a payment link: the link flips to completed, the
// prebuilt completed payment transaction is inserted, the bound milestone is
// marked paid, competing settlements are cancelled, and the booking payment
// status is recomputed. One transaction; the link's active status is
// re-verified under the booking row lock so double redemption is impossible.
func (r *PostgresRepository) RedeemLinkAtomic(ctx context.Context, params RedeemLinkParams) (*domain.PaymentTransaction, *domain.Milestone, *domain.PaymentLink, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	defer tx.Rollback(ctx)

	var bookingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM bookings WHERE id = $1 FOR UPDATE`, params.Payment.BookingID).Scan(&bookingID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, nil, ErrBookingNotFound
		}
		return nil, nil, nil, err
	}

	linkQuery := `
		UPDATE payment_links
		SET status = 'completed', paid_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + linkColumns
	link, err := scanLink(tx.QueryRow(ctx, linkQuery, params.LinkID, params.PaidAt))
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return nil, nil, nil, ErrLinkNotActive
		}
		return nil, nil, nil, err
	}

	if err := insertPaymentTx(ctx, tx, params.Payment); err != nil {
		return nil, nil, nil, fmt.Errorf("insert redemption payment: %w", err)
	}

	for _, id := range params.CancelTransactionIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_transactions SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, id); err != nil {
			return nil, nil, nil, err
		}
	}

	var milestone *domain.Milestone
	if params.MilestoneID != nil {
		query := `
			UPDATE booking_milestones
			SET payment_status = 'paid',
			    payment_id = $2,
			    paid_at = $3,
			    payment_method = $4,
			    transaction_ref = $5,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING ` + milestoneColumns
		milestone, err = scanMilestone(tx.QueryRow(ctx, query,
			*params.MilestoneID, params.Payment.ID, params.PaidAt, params.Payment.PaymentMethod, params.Payment.Reference))
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if _, err := reconcileBookingTx(ctx, tx, params.Payment.BookingID, nil); err != nil {
		return nil, nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, nil, err
	}
	return params.Payment, milestone, link, nil
}
