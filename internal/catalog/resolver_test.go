package catalog

import (
	"context"
	"testing"

	"chemsus-backend/internal/models"
	"chemsus-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogStore struct {
	items map[int64]*models.ShopItem
	packs map[int64]map[string]*models.PackPrice
}

func (f *fakeCatalogStore) GetShopItemByID(_ context.Context, id int64) (*models.ShopItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, store.ErrShopItemNotFound
	}
	return item, nil
}

func (f *fakeCatalogStore) GetPackPrice(_ context.Context, shopItemID int64, packSize string) (*models.PackPrice, error) {
	pack, ok := f.packs[shopItemID][packSize]
	if !ok {
		return nil, store.ErrPackNotFound
	}
	return pack, nil
}

func (f *fakeCatalogStore) GetActiveShopItems(_ context.Context) ([]models.ShopItem, error) {
	var items []models.ShopItem
	for _, item := range f.items {
		if item.IsActive {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (f *fakeCatalogStore) GetActivePackPrices(_ context.Context, shopItemID int64) ([]models.PackPrice, error) {
	var packs []models.PackPrice
	for _, pack := range f.packs[shopItemID] {
		if pack.IsActive {
			packs = append(packs, *pack)
		}
	}
	return packs, nil
}

func testCatalog() *fakeCatalogStore {
	return &fakeCatalogStore{
		items: map[int64]*models.ShopItem{
			1: {ID: 1, Name: "Sodium Thiosulfate", Price: 450, IsActive: true},
			2: {ID: 2, Name: "Retired Reagent", Price: 100, IsActive: false},
			3: {ID: 3, Name: "Quote Only", Price: 0, IsActive: true},
		},
		packs: map[int64]map[string]*models.PackPrice{
			1: {
				"500g": {ID: 10, ShopItemID: 1, PackSize: "500g", OurPrice: 800, IsActive: true},
				"1kg":  {ID: 11, ShopItemID: 1, PackSize: "1kg", OurPrice: 1500, IsActive: false},
				"5kg":  {ID: 12, ShopItemID: 1, PackSize: "5kg", OurPrice: 0, IsActive: true},
			},
		},
	}
}

func TestResolveBasePrice(t *testing.T) {
	r := NewResolver(testCatalog(), nil)

	resolved, err := r.Resolve(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Sodium Thiosulfate", resolved.ProductName)
	assert.Equal(t, 450.0, resolved.UnitPrice)
}

func TestResolvePackPrice(t *testing.T) {
	r := NewResolver(testCatalog(), nil)

	resolved, err := r.Resolve(context.Background(), 1, "500g")
	require.NoError(t, err)
	assert.Equal(t, 800.0, resolved.UnitPrice)
}

func TestResolveRejectsBadReferences(t *testing.T) {
	r := NewResolver(testCatalog(), nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		itemID   int64
		packSize string
	}{
		{"unknown item", 99, ""},
		{"inactive item", 2, ""},
		{"zero base price", 3, ""},
		{"unknown pack", 1, "10kg"},
		{"inactive pack", 1, "1kg"},
		{"zero-priced pack", 1, "5kg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tc.itemID, tc.packSize)
			assert.ErrorIs(t, err, ErrInvalidReference)
		})
	}
}

func TestListActive(t *testing.T) {
	r := NewResolver(testCatalog(), nil)

	listed, err := r.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 2) // inactive item excluded

	for _, item := range listed {
		if item.ID == 1 {
			assert.Len(t, item.Packs, 2) // inactive pack excluded
		}
	}
}
