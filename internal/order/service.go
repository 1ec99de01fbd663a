package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chemsus-backend/internal/catalog"
	"chemsus-backend/internal/models"
	"chemsus-backend/internal/otp"
	"chemsus-backend/internal/store"
	"chemsus-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrValidation covers malformed or missing input, rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrOTP covers a missing, expired or already-consumed verification token.
	ErrOTP = errors.New("email verification failed")
)

const defaultCountry = "India"

// Store is the slice of the database the ledger writes through.
type Store interface {
	GetConsumableSession(ctx context.Context, email, token string) (*models.OtpSession, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem, sessionID int64) error
}

// PriceResolver is the sole authority for unit prices (see internal/catalog).
type PriceResolver interface {
	Resolve(ctx context.Context, shopItemID int64, packSize string) (*catalog.ResolvedPrice, error)
}

// EventPublisher publishes order lifecycle events, best-effort.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// Service is the order ledger: it validates contact data, prices lines
// through the catalog and commits order + items + OTP consumption as one
// unit.
type Service struct {
	store     Store
	resolver  PriceResolver
	publisher EventPublisher
	logger    *zap.Logger
}

// NewService creates the order ledger. publisher may be nil.
func NewService(st Store, resolver PriceResolver, publisher EventPublisher) *Service {
	return &Service{
		store:     st,
		resolver:  resolver,
		publisher: publisher,
		logger:    util.NamedLogger("order"),
	}
}

// LineRequest references a catalog item; the client never supplies a price.
type LineRequest struct {
	ShopItemID int64
	PackSize   string
	Quantity   float64
}

// CreateRequest is the normalized order submission.
type CreateRequest struct {
	CustomerName string
	Email        string
	Phone        string
	CompanyName  string
	Address      string
	City         string
	Region       string
	Pincode      string
	Country      string

	// Items is the cart. When empty, Legacy describes a single line.
	Items  []LineRequest
	Legacy *LineRequest

	VerificationToken string
}

// CreateResult is returned after the order commits.
type CreateResult struct {
	OrderID int64
}

// Create validates, prices and persists an order, consuming the
// verification token exactly once.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	ctx, span := util.StartSpan(ctx, "order.Create")
	defer span.End()

	email, err := s.validateContact(req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	lines := req.Items
	if len(lines) == 0 && req.Legacy != nil {
		lines = []LineRequest{*req.Legacy}
	}
	if len(lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: order has no items", ErrValidation)
	}

	items, totalPrice, totalQty, err := s.priceLines(ctx, lines)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	if req.VerificationToken == "" {
		util.OrdersFailedTotal.WithLabelValues("otp").Inc()
		return nil, fmt.Errorf("%w: verification token required", ErrOTP)
	}
	sess, err := s.store.GetConsumableSession(ctx, email, req.VerificationToken)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			util.OrdersFailedTotal.WithLabelValues("otp").Inc()
			return nil, fmt.Errorf("%w: token invalid, expired or already used", ErrOTP)
		}
		return nil, fmt.Errorf("failed to look up verification token: %w", err)
	}

	ord := &models.Order{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Email:         email,
		Phone:         strings.TrimSpace(req.Phone),
		CompanyName:   strings.TrimSpace(req.CompanyName),
		Address:       strings.TrimSpace(req.Address),
		City:          strings.TrimSpace(req.City),
		Region:        strings.TrimSpace(req.Region),
		Pincode:       strings.TrimSpace(req.Pincode),
		Country:       defaultString(req.Country, defaultCountry),
		ProductName:   displayName(items),
		Quantity:      totalQty,
		UnitPrice:     totalPrice / totalQty, // display artifact, never used for money checks
		TotalPrice:    totalPrice,
		PaymentStatus: models.OrderPaymentPending,
		PaymentMode:   models.OrderPaymentPending,
		OrderStatus:   models.OrderStatusProcessing,
	}

	if err := s.store.CreateOrderWithItems(ctx, ord, items, sess.ID); err != nil {
		if errors.Is(err, store.ErrSessionConflict) {
			util.OrdersFailedTotal.WithLabelValues("otp").Inc()
			return nil, fmt.Errorf("%w: token already used", ErrOTP)
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", ord.ID),
		zap.Float64("total_price", ord.TotalPrice),
		zap.Int("lines", len(items)))

	s.publishCreated(ctx, ord, items)

	return &CreateResult{OrderID: ord.ID}, nil
}

func (s *Service) validateContact(req *CreateRequest) (string, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return "", fmt.Errorf("%w: customer name required", ErrValidation)
	}
	email, err := otp.NormalizeEmail(req.Email)
	if err != nil {
		return "", fmt.Errorf("%w: invalid email", ErrValidation)
	}
	digits := 0
	for _, r := range req.Phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return "", fmt.Errorf("%w: phone must contain 7-15 digits", ErrValidation)
	}
	return email, nil
}

// priceLines resolves every line through the catalog or rejects the whole
// order. No partial orders.
func (s *Service) priceLines(ctx context.Context, lines []LineRequest) ([]models.OrderItem, float64, float64, error) {
	items := make([]models.OrderItem, 0, len(lines))
	var totalPrice, totalQty float64

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, 0, 0, fmt.Errorf("%w: quantity must be positive for item %d", ErrValidation, line.ShopItemID)
		}
		resolved, err := s.resolver.Resolve(ctx, line.ShopItemID, line.PackSize)
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidReference) {
				return nil, 0, 0, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			return nil, 0, 0, fmt.Errorf("failed to resolve price: %w", err)
		}

		lineTotal := resolved.UnitPrice * line.Quantity
		items = append(items, models.OrderItem{
			ShopItemID:  line.ShopItemID,
			ProductName: resolved.ProductName,
			PackSize:    line.PackSize,
			UnitPrice:   resolved.UnitPrice,
			Quantity:    line.Quantity,
			TotalPrice:  lineTotal,
		})
		totalPrice += lineTotal
		totalQty += line.Quantity
	}
	return items, totalPrice, totalQty, nil
}

func (s *Service) publishCreated(ctx context.Context, ord *models.Order, items []models.OrderItem) {
	if s.publisher == nil {
		return
	}

	snapshots := make([]models.OrderItemSnapshot, 0, len(items))
	for _, it := range items {
		snapshots = append(snapshots, models.OrderItemSnapshot{
			ShopItemID: it.ShopItemID,
			PackSize:   it.PackSize,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
			TotalPrice: it.TotalPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:      ord.ID,
		CustomerName: ord.CustomerName,
		Email:        ord.Email,
		ProductName:  ord.ProductName,
		TotalPrice:   ord.TotalPrice,
		Items:        snapshots,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

// displayName derives the human-readable product label for an order.
func displayName(items []models.OrderItem) string {
	if len(items) == 1 {
		if items[0].PackSize != "" {
			return fmt.Sprintf("%s (%s)", items[0].ProductName, items[0].PackSize)
		}
		return items[0].ProductName
	}
	return fmt.Sprintf("%d item(s) from Cart", len(items))
}

func defaultString(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
