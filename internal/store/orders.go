package store

import (
	"context"
	"database/sql"
	"fmt"

	"chemsus-backend/internal/models"
)

// CreateOrderWithItems inserts the order, all its line snapshots and marks
// the OTP session consumed in one transaction. Either everything commits or
// nothing does; a session another request spent first aborts the whole unit
// with ErrSessionConflict.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem, sessionID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders
			(customername, email, phone, companyname, address, city, region, pincode, country,
			 productname, quantity, unitprice, totalprice, payment_status, paymentmode, order_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, orderQuery,
		order.CustomerName, order.Email, order.Phone, order.CompanyName,
		order.Address, order.City, order.Region, order.Pincode, order.Country,
		order.ProductName, order.Quantity, order.UnitPrice, order.TotalPrice,
		order.PaymentStatus, order.PaymentMode, order.OrderStatus); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items
			(order_id, shop_item_id, product_name, pack_size, unit_price, quantity, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.GetContext(ctx, &items[i].ID, itemQuery,
			items[i].OrderID, items[i].ShopItemID, items[i].ProductName, items[i].PackSize,
			items[i].UnitPrice, items[i].Quantity, items[i].TotalPrice); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE email_otp_sessions
		SET used_at = NOW(), order_id = $1, updated_at = NOW()
		WHERE id = $2 AND verified_at IS NOT NULL AND used_at IS NULL AND token_expires_at > NOW()`,
		order.ID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to consume otp session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionConflict
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all line snapshots for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrders retrieves all orders, newest first (admin listing)
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY id DESC")
	return orders, err
}

// GetReceiptPathsByOrder returns receipt artifact refs for an order's payments
func (s *Store) GetReceiptPathsByOrder(ctx context.Context, orderID int64) ([]string, error) {
	var paths []string
	err := s.db.SelectContext(ctx, &paths,
		"SELECT receipt_path FROM payments WHERE order_id = $1 AND receipt_path <> ''", orderID)
	return paths, err
}

// DeleteOrderCascade removes an order with its items and payments in one
// transaction. Receipt artifacts must be released by the caller first.
func (s *Store) DeleteOrderCascade(ctx context.Context, orderID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE order_id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete order items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	return tx.Commit()
}
