package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chemsus-backend/internal/models"
	"chemsus-backend/internal/store"
	"chemsus-backend/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidReference marks an (item, pack) reference that cannot price an
// order line: unknown, inactive, or carrying a non-positive price.
var ErrInvalidReference = errors.New("invalid catalog reference")

const cacheTTL = 30 * time.Second

// Store is the slice of the database the resolver reads.
type Store interface {
	GetShopItemByID(ctx context.Context, id int64) (*models.ShopItem, error)
	GetPackPrice(ctx context.Context, shopItemID int64, packSize string) (*models.PackPrice, error)
	GetActiveShopItems(ctx context.Context) ([]models.ShopItem, error)
	GetActivePackPrices(ctx context.Context, shopItemID int64) ([]models.PackPrice, error)
}

// Cache is an optional read-through cache for catalog rows.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ResolvedPrice is the authoritative answer for one order line reference.
type ResolvedPrice struct {
	ProductName string
	UnitPrice   float64
}

// ListedItem is a catalog item with its active pack variants, for the
// public shop listing.
type ListedItem struct {
	models.ShopItem
	Packs []models.PackPrice `json:"packs"`
}

// Resolver is the only source of truth for money amounts entering an
// order. Client-supplied prices are never consulted.
type Resolver struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewResolver creates a price resolver. cache may be nil.
func NewResolver(st Store, cache Cache) *Resolver {
	return &Resolver{
		store:  st,
		cache:  cache,
		logger: util.NamedLogger("catalog"),
	}
}

// Resolve maps (shopItemID, packSize) to a product name and unit price.
// packSize may be empty, in which case the item's base price applies.
func (r *Resolver) Resolve(ctx context.Context, shopItemID int64, packSize string) (*ResolvedPrice, error) {
	item, err := r.getItem(ctx, shopItemID)
	if err != nil {
		if errors.Is(err, store.ErrShopItemNotFound) {
			return nil, fmt.Errorf("%w: item %d not found", ErrInvalidReference, shopItemID)
		}
		return nil, err
	}
	if !item.IsActive {
		return nil, fmt.Errorf("%w: item %d is inactive", ErrInvalidReference, shopItemID)
	}

	if packSize != "" {
		pack, err := r.getPack(ctx, shopItemID, packSize)
		if err != nil {
			if errors.Is(err, store.ErrPackNotFound) {
				return nil, fmt.Errorf("%w: pack %q not found for item %d", ErrInvalidReference, packSize, shopItemID)
			}
			return nil, err
		}
		if !pack.IsActive || pack.OurPrice <= 0 {
			return nil, fmt.Errorf("%w: pack %q of item %d is not purchasable", ErrInvalidReference, packSize, shopItemID)
		}
		return &ResolvedPrice{ProductName: item.Name, UnitPrice: pack.OurPrice}, nil
	}

	if item.Price <= 0 {
		return nil, fmt.Errorf("%w: item %d has no base price", ErrInvalidReference, shopItemID)
	}
	return &ResolvedPrice{ProductName: item.Name, UnitPrice: item.Price}, nil
}

// ListActive returns the public catalog: active items with active packs.
func (r *Resolver) ListActive(ctx context.Context) ([]ListedItem, error) {
	items, err := r.store.GetActiveShopItems(ctx)
	if err != nil {
		return nil, err
	}

	listed := make([]ListedItem, 0, len(items))
	for _, item := range items {
		packs, err := r.store.GetActivePackPrices(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		listed = append(listed, ListedItem{ShopItem: item, Packs: packs})
	}
	return listed, nil
}

func (r *Resolver) getItem(ctx context.Context, id int64) (*models.ShopItem, error) {
	key := fmt.Sprintf("catalog:item:%d", id)

	if r.cache != nil {
		var cached models.ShopItem
		hit, err := r.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			r.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			util.CatalogCacheHits.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		util.CatalogCacheHits.WithLabelValues("miss").Inc()
	}

	item, err := r.store.GetShopItemByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, key, item, cacheTTL); err != nil {
			r.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return item, nil
}

func (r *Resolver) getPack(ctx context.Context, shopItemID int64, packSize string) (*models.PackPrice, error) {
	key := fmt.Sprintf("catalog:pack:%d:%s", shopItemID, packSize)

	if r.cache != nil {
		var cached models.PackPrice
		hit, err := r.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			r.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			util.CatalogCacheHits.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		util.CatalogCacheHits.WithLabelValues("miss").Inc()
	}

	pack, err := r.store.GetPackPrice(ctx, shopItemID, packSize)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, key, pack, cacheTTL); err != nil {
			r.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return pack, nil
}
