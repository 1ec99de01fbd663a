package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"chemsus-backend/internal/models"
	"chemsus-backend/internal/store"
	"chemsus-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicate       = errors.New("payment already submitted for order")
	ErrAmountMismatch  = errors.New("amount does not match order total")
	ErrBadVerdict      = errors.New("verdict must be SUCCESS or FAILED")
)

// amountEpsilon bounds acceptable rounding drift between the claimed amount
// and the order total.
const amountEpsilon = 0.01

const maxFeedbackLen = 2000

// Store is the slice of the database the state machine drives.
type Store interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	CreatePaymentTx(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	DecidePaymentTx(ctx context.Context, paymentID int64, verdict, orderPaymentStatus, paymentMode string) (int64, error)
	GetReceiptPathsByOrder(ctx context.Context, orderID int64) ([]string, error)
	DeleteOrderCascade(ctx context.Context, orderID int64) error
	DeletePayment(ctx context.Context, paymentID int64) error
}

// ArtifactStore holds receipt files outside the database.
type ArtifactStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Release(ref string) error
}

// EventPublisher publishes payment lifecycle events, best-effort.
type EventPublisher interface {
	PublishReceiptSubmitted(ctx context.Context, event *models.ReceiptSubmittedEvent) error
	PublishPaymentDecided(ctx context.Context, event *models.PaymentDecidedEvent) error
}

// Service reconciles manually uploaded receipts against orders:
// PENDING → VERIFYING on submission, then PAID or FAILED on the
// administrator's verdict.
type Service struct {
	store     Store
	artifacts ArtifactStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewService creates the payment state machine. publisher may be nil.
func NewService(st Store, artifacts ArtifactStore, publisher EventPublisher) *Service {
	return &Service{
		store:     st,
		artifacts: artifacts,
		publisher: publisher,
		logger:    util.NamedLogger("payment"),
	}
}

// SubmitRequest is one receipt upload.
type SubmitRequest struct {
	OrderID  int64
	Amount   float64
	Rating   int
	Feedback string
	FileName string
	File     io.Reader
}

// SubmitResult is returned once the receipt is recorded.
type SubmitResult struct {
	PaymentID  int64
	ReceiptRef string
}

// SubmitReceipt records at most one receipt per order and moves the order
// to VERIFYING. The payments(order_id) unique index settles races; the
// pre-check only exists to answer cheaply.
func (s *Service) SubmitReceipt(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "payment.SubmitReceipt")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			util.ReceiptsRejectedTotal.WithLabelValues("order_not_found").Inc()
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	existing, err := s.store.GetPaymentByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payment: %w", err)
	}
	if existing != nil {
		util.ReceiptsRejectedTotal.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicate
	}

	if math.Abs(req.Amount-order.TotalPrice) > amountEpsilon {
		util.ReceiptsRejectedTotal.WithLabelValues("amount_mismatch").Inc()
		return nil, fmt.Errorf("%w: claimed %.2f, order total %.2f",
			ErrAmountMismatch, req.Amount, order.TotalPrice)
	}

	ref, err := s.artifacts.Save(req.FileName, req.File)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt artifact: %w", err)
	}

	feedback := req.Feedback
	if len(feedback) > maxFeedbackLen {
		feedback = feedback[:maxFeedbackLen]
	}

	payment := &models.Payment{
		OrderID:      req.OrderID,
		Provider:     models.PaymentProvider,
		Currency:     models.PaymentCurrency,
		Amount:       req.Amount,
		Status:       models.PaymentStatusPending,
		ReceiptPath:  ref,
		Rating:       req.Rating,
		Feedback:     feedback,
		CustomerName: order.CustomerName,
		Email:        order.Email,
		Phone:        order.Phone,
	}

	if err := s.store.CreatePaymentTx(ctx, payment); err != nil {
		// The insert lost; the artifact is orphaned otherwise.
		if relErr := s.artifacts.Release(ref); relErr != nil {
			s.logger.Warn("Failed to release receipt artifact after insert failure",
				zap.String("ref", ref), zap.Error(relErr))
		}
		if errors.Is(err, store.ErrDuplicatePayment) {
			util.ReceiptsRejectedTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	util.ReceiptsSubmittedTotal.Inc()
	s.logger.Info("Receipt submitted",
		zap.Int64("order_id", req.OrderID),
		zap.Int64("payment_id", payment.ID),
		zap.Float64("amount", req.Amount))

	if s.publisher != nil {
		event := &models.ReceiptSubmittedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeReceiptSubmitted,
				Timestamp: time.Now(),
			},
			OrderID:    req.OrderID,
			PaymentID:  payment.ID,
			Amount:     req.Amount,
			ReceiptRef: ref,
		}
		if err := s.publisher.PublishReceiptSubmitted(ctx, event); err != nil {
			s.logger.Error("Failed to publish ReceiptSubmitted event", zap.Error(err))
		}
	}

	return &SubmitResult{PaymentID: payment.ID, ReceiptRef: ref}, nil
}

// DecideResult reports the synchronized pair after a verdict.
type DecideResult struct {
	PaymentID   int64
	Status      string
	OrderID     int64
	OrderStatus string
}

// Decide applies the administrator verdict to payment and order together.
func (s *Service) Decide(ctx context.Context, paymentID int64, verdict string) (*DecideResult, error) {
	ctx, span := util.StartSpan(ctx, "payment.Decide")
	defer span.End()

	var orderStatus, paymentMode string
	switch verdict {
	case models.PaymentStatusSuccess:
		orderStatus = models.OrderPaymentPaid
		paymentMode = models.PaymentProvider
	case models.PaymentStatusFailed:
		orderStatus = models.OrderPaymentFailed
		paymentMode = models.PaymentStatusFailed
	default:
		return nil, ErrBadVerdict
	}

	orderID, err := s.store.DecidePaymentTx(ctx, paymentID, verdict, orderStatus, paymentMode)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to apply verdict: %w", err)
	}

	util.PaymentsDecidedTotal.WithLabelValues(verdict).Inc()
	s.logger.Info("Payment decided",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", orderID),
		zap.String("status", verdict))

	if s.publisher != nil {
		event := &models.PaymentDecidedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentDecided,
				Timestamp: time.Now(),
			},
			OrderID:     orderID,
			PaymentID:   paymentID,
			Status:      verdict,
			OrderStatus: orderStatus,
		}
		if err := s.publisher.PublishPaymentDecided(ctx, event); err != nil {
			s.logger.Error("Failed to publish PaymentDecided event", zap.Error(err))
		}
	}

	return &DecideResult{
		PaymentID:   paymentID,
		Status:      verdict,
		OrderID:     orderID,
		OrderStatus: orderStatus,
	}, nil
}

// DeleteOrder removes an order with its payments, releasing receipt
// artifacts first. Release failures are logged, never fatal.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "payment.DeleteOrder")
	defer span.End()

	refs, err := s.store.GetReceiptPathsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to list receipt artifacts: %w", err)
	}
	for _, ref := range refs {
		if err := s.artifacts.Release(ref); err != nil {
			s.logger.Warn("Failed to release receipt artifact",
				zap.Int64("order_id", orderID),
				zap.String("ref", ref),
				zap.Error(err))
		}
	}

	if err := s.store.DeleteOrderCascade(ctx, orderID); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	s.logger.Info("Order deleted", zap.Int64("order_id", orderID))
	return nil
}

// DeletePayment removes a payment row and releases its artifact. Deleting
// an absent payment is a no-op.
func (s *Service) DeletePayment(ctx context.Context, paymentID int64) error {
	ctx, span := util.StartSpan(ctx, "payment.DeletePayment")
	defer span.End()

	payment, err := s.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up payment: %w", err)
	}

	if err := s.artifacts.Release(payment.ReceiptPath); err != nil {
		s.logger.Warn("Failed to release receipt artifact",
			zap.Int64("payment_id", paymentID),
			zap.String("ref", payment.ReceiptPath),
			zap.Error(err))
	}

	if err := s.store.DeletePayment(ctx, paymentID); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	s.logger.Info("Payment deleted", zap.Int64("payment_id", paymentID))
	return nil
}
