package models

import "time"

// ShopItem is a sellable catalog entry. The catalog is authored elsewhere;
// this service only reads it.
type ShopItem struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Subtitle  string    `db:"subtitle" json:"subtitle"`
	Price     float64   `db:"price" json:"price"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PackPrice is a per-pack price variant of a shop item.
type PackPrice struct {
	ID         int64     `db:"id" json:"id"`
	ShopItemID int64     `db:"shop_item_id" json:"shop_item_id"`
	PackSize   string    `db:"pack_size" json:"pack_size"`
	OurPrice   float64   `db:"our_price" json:"our_price"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	SortOrder  int       `db:"sort_order" json:"sort_order"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// OtpSession is one email verification challenge. A session is "active"
// while it is neither verified nor used nor expired; the resend cooldown is
// driven by the most recent active session per email.
type OtpSession struct {
	ID                int64      `db:"id" json:"id"`
	ChallengeID       string     `db:"challenge_id" json:"challenge_id"`
	Email             string     `db:"email" json:"email"`
	OtpHash           string     `db:"otp_hash" json:"-"`
	Attempts          int        `db:"attempts" json:"attempts"`
	MaxAttempts       int        `db:"max_attempts" json:"max_attempts"`
	ExpiresAt         time.Time  `db:"expires_at" json:"expires_at"`
	CooldownUntil     time.Time  `db:"cooldown_until" json:"cooldown_until"`
	VerifiedAt        *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerificationToken *string    `db:"verification_token" json:"-"`
	TokenExpiresAt    *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	UsedAt            *time.Time `db:"used_at" json:"used_at,omitempty"`
	OrderID           *int64     `db:"order_id" json:"order_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Order is a placed customer order. PaymentStatus is owned by the payment
// state machine after creation; OrderStatus belongs to fulfillment.
type Order struct {
	ID            int64     `db:"id" json:"id"`
	CustomerName  string    `db:"customername" json:"customername"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone"`
	CompanyName   string    `db:"companyname" json:"companyName"`
	Address       string    `db:"address" json:"address"`
	City          string    `db:"city" json:"city"`
	Region        string    `db:"region" json:"region"`
	Pincode       string    `db:"pincode" json:"pincode"`
	Country       string    `db:"country" json:"country"`
	ProductName   string    `db:"productname" json:"productname"`
	Quantity      float64   `db:"quantity" json:"quantity"`
	UnitPrice     float64   `db:"unitprice" json:"unitprice"`
	TotalPrice    float64   `db:"totalprice" json:"totalprice"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	PaymentMode   string    `db:"paymentmode" json:"paymentmode"`
	OrderStatus   string    `db:"order_status" json:"order_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable line snapshot taken from the catalog at order
// time. Prices here never change after insert.
type OrderItem struct {
	ID          int64     `db:"id" json:"id"`
	OrderID     int64     `db:"order_id" json:"order_id"`
	ShopItemID  int64     `db:"shop_item_id" json:"shop_item_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	PackSize    string    `db:"pack_size" json:"pack_size"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	Quantity    float64   `db:"quantity" json:"quantity"`
	TotalPrice  float64   `db:"total_price" json:"total_price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Payment records one manually uploaded receipt for an order. At most one
// payment exists per order, enforced by a unique index on order_id.
type Payment struct {
	ID           int64     `db:"id" json:"id"`
	OrderID      int64     `db:"order_id" json:"order_id"`
	Provider     string    `db:"provider" json:"provider"`
	PaymentRef   string    `db:"payment_ref" json:"payment_ref"`
	Amount       float64   `db:"amount" json:"amount"`
	Currency     string    `db:"currency" json:"currency"`
	Status       string    `db:"status" json:"status"`
	ReceiptPath  string    `db:"receipt_path" json:"receipt_path"`
	Rating       int       `db:"rating" json:"rating"`
	Feedback     string    `db:"feedback" json:"feedback"`
	CustomerName string    `db:"customername" json:"customername"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AdminPaymentRow is a payment joined with its order for admin listings.
type AdminPaymentRow struct {
	Payment
	OrderProductName   *string  `db:"order_productname" json:"productname,omitempty"`
	OrderTotalPrice    *float64 `db:"order_totalprice" json:"totalprice,omitempty"`
	OrderPaymentStatus *string  `db:"order_payment_status" json:"order_payment_status,omitempty"`
}

// Order payment statuses (orders.payment_status)
const (
	OrderPaymentPending   = "PENDING"
	OrderPaymentVerifying = "VERIFYING"
	OrderPaymentPaid      = "PAID"
	OrderPaymentFailed    = "FAILED"
)

// Payment statuses (payments.status)
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// Initial fulfillment status for new orders; fulfillment owns it afterwards.
const OrderStatusProcessing = "Processing"

// Default payment provider/currency recorded with receipts.
const (
	PaymentProvider = "UPI"
	PaymentCurrency = "INR"
)
