package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chemsus-backend/internal/models"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// CreatePaymentTx inserts the payment and moves the order from PENDING to
// VERIFYING in one transaction. The unique index on payments(order_id) is
// the duplicate gate: when two submissions race past the pre-check, the
// losing insert comes back as ErrDuplicatePayment.
func (s *Store) CreatePaymentTx(ctx context.Context, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO payments
			(order_id, provider, payment_ref, amount, currency, status, receipt_path,
			 rating, feedback, customername, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, payment, query,
		payment.OrderID, payment.Provider, payment.PaymentRef, payment.Amount,
		payment.Currency, payment.Status, payment.ReceiptPath,
		payment.Rating, payment.Feedback, payment.CustomerName, payment.Email, payment.Phone)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`,
		models.OrderPaymentVerifying, payment.OrderID); err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}

	return tx.Commit()
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByOrderID retrieves the payment recorded for an order, if any
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// DecidePaymentTx applies an administrator verdict to the payment and its
// order as one atomic pair. A reader never sees the two disagree.
func (s *Store) DecidePaymentTx(ctx context.Context, paymentID int64, verdict, orderPaymentStatus, paymentMode string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID, `
		UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2
		RETURNING order_id`, verdict, paymentID)
	if err == sql.ErrNoRows {
		return 0, ErrPaymentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update payment status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, paymentmode = $2, updated_at = NOW() WHERE id = $3`,
		orderPaymentStatus, paymentMode, orderID); err != nil {
		return 0, fmt.Errorf("failed to sync order payment status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return orderID, nil
}

// ListPayments retrieves all payments joined with their orders (admin listing)
func (s *Store) ListPayments(ctx context.Context) ([]models.AdminPaymentRow, error) {
	var rows []models.AdminPaymentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.*,
		       o.productname AS order_productname,
		       o.totalprice AS order_totalprice,
		       o.payment_status AS order_payment_status
		FROM payments p
		LEFT JOIN orders o ON o.id = p.order_id
		ORDER BY p.id DESC`)
	return rows, err
}

// DeletePayment removes a payment row. The receipt artifact must be
// released by the caller first.
func (s *Store) DeletePayment(ctx context.Context, paymentID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = $1", paymentID)
	return err
}
