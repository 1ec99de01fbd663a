package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chemsus-backend/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Sentinel errors surfaced to the service layer. Anything else coming out of
// this package is a storage failure.
var (
	ErrShopItemNotFound = errors.New("shop item not found")
	ErrPackNotFound     = errors.New("pack not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrSessionNotFound  = errors.New("otp session not found")
	ErrSessionConflict  = errors.New("otp session not in expected state")
	ErrDuplicatePayment = errors.New("payment already exists for order")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetShopItemByID retrieves a catalog item regardless of active flag
func (s *Store) GetShopItemByID(ctx context.Context, id int64) (*models.ShopItem, error) {
	var item models.ShopItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM shop_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrShopItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetActiveShopItems retrieves the public catalog listing
func (s *Store) GetActiveShopItems(ctx context.Context) ([]models.ShopItem, error) {
	var items []models.ShopItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM shop_items WHERE is_active = TRUE ORDER BY sort_order ASC, id ASC")
	return items, err
}

// GetPackPrice retrieves one pack variant of a catalog item
func (s *Store) GetPackPrice(ctx context.Context, shopItemID int64, packSize string) (*models.PackPrice, error) {
	var pack models.PackPrice
	err := s.db.GetContext(ctx, &pack,
		"SELECT * FROM pack_pricing WHERE shop_item_id = $1 AND pack_size = $2", shopItemID, packSize)
	if err == sql.ErrNoRows {
		return nil, ErrPackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pack, nil
}

// GetActivePackPrices retrieves the active pack variants of a catalog item
func (s *Store) GetActivePackPrices(ctx context.Context, shopItemID int64) ([]models.PackPrice, error) {
	var packs []models.PackPrice
	err := s.db.SelectContext(ctx, &packs,
		"SELECT * FROM pack_pricing WHERE shop_item_id = $1 AND is_active = TRUE ORDER BY sort_order ASC, id ASC",
		shopItemID)
	return packs, err
}
