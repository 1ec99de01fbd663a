package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chemsus-backend/internal/catalog"
	"chemsus-backend/internal/models"
	"chemsus-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	prices map[string]catalog.ResolvedPrice // key "itemID/packSize"
}

func (f *fakeResolver) Resolve(_ context.Context, shopItemID int64, packSize string) (*catalog.ResolvedPrice, error) {
	p, ok := f.prices[fmt.Sprintf("%d/%s", shopItemID, packSize)]
	if !ok {
		return nil, fmt.Errorf("%w: item %d", catalog.ErrInvalidReference, shopItemID)
	}
	return &p, nil
}

type fakeLedgerStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]*models.OtpSession // keyed email|token
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		sessions: map[string]*models.OtpSession{},
		orders:   map[int64]*models.Order{},
		items:    map[int64][]models.OrderItem{},
	}
}

func (f *fakeLedgerStore) addSession(email, token string) *models.OtpSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	expiry := now.Add(15 * time.Minute)
	sess := &models.OtpSession{
		ID:                int64(len(f.sessions) + 1),
		Email:             email,
		VerifiedAt:        &now,
		VerificationToken: &token,
		TokenExpiresAt:    &expiry,
	}
	f.sessions[email+"|"+token] = sess
	return sess
}

func (f *fakeLedgerStore) GetConsumableSession(_ context.Context, email, token string) (*models.OtpSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[email+"|"+token]
	if !ok || sess.UsedAt != nil || time.Now().After(*sess.TokenExpiresAt) {
		return nil, store.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeLedgerStore) CreateOrderWithItems(_ context.Context, order *models.Order, items []models.OrderItem, sessionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sess *models.OtpSession
	for _, s := range f.sessions {
		if s.ID == sessionID {
			sess = s
			break
		}
	}
	if sess == nil || sess.UsedAt != nil {
		return store.ErrSessionConflict
	}

	f.nextID++
	order.ID = f.nextID
	cp := *order
	f.orders[order.ID] = &cp
	for i := range items {
		items[i].OrderID = order.ID
	}
	f.items[order.ID] = append([]models.OrderItem(nil), items...)

	now := time.Now()
	sess.UsedAt = &now
	sess.OrderID = &order.ID
	return nil
}

func testService() (*Service, *fakeLedgerStore) {
	st := newFakeLedgerStore()
	resolver := &fakeResolver{prices: map[string]catalog.ResolvedPrice{
		"1/":     {ProductName: "Sodium Thiosulfate", UnitPrice: 450},
		"1/500g": {ProductName: "Sodium Thiosulfate", UnitPrice: 800},
		"2/":     {ProductName: "Citric Acid", UnitPrice: 300},
	}}
	return NewService(st, resolver, nil), st
}

func validRequest(token string) *CreateRequest {
	return &CreateRequest{
		CustomerName:      "Asha Rao",
		Email:             "asha@example.com",
		Phone:             "+91 98765 43210",
		Items:             []LineRequest{{ShopItemID: 1, PackSize: "500g", Quantity: 2}},
		VerificationToken: token,
	}
}

func TestCreateOrderSnapshotsCatalogPrices(t *testing.T) {
	svc, st := testService()
	st.addSession("asha@example.com", "tok-1")

	req := validRequest("tok-1")
	req.Items = []LineRequest{
		{ShopItemID: 1, PackSize: "500g", Quantity: 2},
		{ShopItemID: 2, Quantity: 3},
	}

	result, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	ord := st.orders[result.OrderID]
	items := st.items[result.OrderID]
	require.Len(t, items, 2)

	// Unit prices come from the catalog, totals add up exactly.
	assert.Equal(t, 800.0, items[0].UnitPrice)
	assert.Equal(t, 300.0, items[1].UnitPrice)
	var sum float64
	for _, it := range items {
		assert.Equal(t, it.UnitPrice*it.Quantity, it.TotalPrice)
		sum += it.TotalPrice
	}
	assert.Equal(t, sum, ord.TotalPrice)
	assert.Equal(t, 2500.0, ord.TotalPrice)
	assert.Equal(t, 5.0, ord.Quantity)
	assert.Equal(t, ord.TotalPrice/ord.Quantity, ord.UnitPrice)
	assert.Equal(t, "2 item(s) from Cart", ord.ProductName)
	assert.Equal(t, models.OrderPaymentPending, ord.PaymentStatus)
	assert.Equal(t, models.OrderStatusProcessing, ord.OrderStatus)
	assert.Equal(t, "India", ord.Country)
}

func TestCreateOrderConsumesTokenOnce(t *testing.T) {
	svc, st := testService()
	st.addSession("asha@example.com", "tok-1")

	_, err := svc.Create(context.Background(), validRequest("tok-1"))
	require.NoError(t, err)

	// The same token can never buy a second order.
	_, err = svc.Create(context.Background(), validRequest("tok-1"))
	assert.ErrorIs(t, err, ErrOTP)
}

func TestCreateOrderRequiresValidToken(t *testing.T) {
	svc, _ := testService()

	_, err := svc.Create(context.Background(), validRequest("unknown-token"))
	assert.ErrorIs(t, err, ErrOTP)

	req := validRequest("")
	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrOTP)
}

func TestCreateOrderTokenBoundToEmail(t *testing.T) {
	svc, st := testService()
	st.addSession("asha@example.com", "tok-1")

	req := validRequest("tok-1")
	req.Email = "other@example.com"
	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrOTP)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, st := testService()
	st.addSession("asha@example.com", "tok-1")

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing name", func(r *CreateRequest) { r.CustomerName = " " }},
		{"bad email", func(r *CreateRequest) { r.Email = "nope" }},
		{"short phone", func(r *CreateRequest) { r.Phone = "12345" }},
		{"no items", func(r *CreateRequest) { r.Items = nil }},
		{"zero quantity", func(r *CreateRequest) { r.Items[0].Quantity = 0 }},
		{"unknown item", func(r *CreateRequest) { r.Items[0].ShopItemID = 99 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("tok-1")
			tc.mutate(req)
			_, err := svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	// None of the rejections may have consumed the token.
	_, err := svc.Create(context.Background(), validRequest("tok-1"))
	assert.NoError(t, err)
}

func TestCreateOrderRejectsWholeCartOnOneBadLine(t *testing.T) {
	svc, st := testService()
	st.addSession("asha@example.com", "tok-1")

	req := validRequest("tok-1")
	req.Items = []LineRequest{
		{ShopItemID: 1, Quantity: 1},
		{ShopItemID: 99, Quantity: 1},
	}
	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, st.orders)
}

func TestCreateOrderLegacyLine(t *testing.T) {
	svc, st := testService()
	st.addSession("asha@example.com", "tok-1")

	req := validRequest("tok-1")
	req.Items = nil
	req.Legacy = &LineRequest{ShopItemID: 1, PackSize: "500g", Quantity: 1}

	result, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	ord := st.orders[result.OrderID]
	assert.Equal(t, "Sodium Thiosulfate (500g)", ord.ProductName)
	assert.Equal(t, 800.0, ord.TotalPrice)
}
