package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStockWouldGoNegative is returned by ApplyStockDelta when the delta would
// drive the available quantity below zero. No write happens in that case.
var ErrStockWouldGoNegative = errors.New("stock would go negative")

// StockSummary is the available-quantity counter per
// (business, location, product, variant). It is mutated only through
// ApplyStockDelta, under a row lock, inside the caller's transaction.
type StockSummary struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	LocationId   int             `gorm:"index;not null" json:"location_id"`
	ProductId    int             `gorm:"index;not null" json:"product_id"`
	VariantId    int             `gorm:"index;not null;default:0" json:"variant_id"`
	AvailableQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_qty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func FirstOrCreateStockSummary(tx *gorm.DB, businessId string, locationId int, productId int, variantId int) (*StockSummary, error) {
	stockSummary := StockSummary{
		BusinessId: businessId,
		LocationId: locationId,
		ProductId:  productId,
		VariantId:  variantId,
	}
	// FirstOrCreate will try to find a record matching the conditions, and if
	// it doesn't find one, it will create a new record. The UPDATE lock holds
	// the row until the surrounding transaction commits or rolls back.
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND location_id = ? AND product_id = ? AND variant_id = ?",
			businessId, locationId, productId, variantId).
		FirstOrCreate(&stockSummary)
	if result.Error != nil {
		return nil, result.Error
	}

	return &stockSummary, nil
}

// ApplyStockDelta moves available quantity for one key by a signed delta and
// appends the matching movement row, as one unit inside tx. The read, the
// floor-at-zero check and the write happen under the same row lock; callers
// never split them across round trips.
//
// Returns the quantity after the delta. When the delta would go below zero it
// returns the CURRENT quantity and ErrStockWouldGoNegative, and writes nothing.
func ApplyStockDelta(tx *gorm.DB, businessId string, locationId int, productId int, variantId int,
	delta decimal.Decimal, reason StockMovementReason, description string, transferId int, transferItemId int) (decimal.Decimal, error) {

	stockSummary, err := FirstOrCreateStockSummary(tx, businessId, locationId, productId, variantId)
	if err != nil {
		return decimal.Zero, err
	}

	newQty := stockSummary.AvailableQty.Add(delta)
	if newQty.IsNegative() {
		return stockSummary.AvailableQty, ErrStockWouldGoNegative
	}

	if err := tx.Exec("UPDATE stock_summaries SET available_qty = available_qty + ? WHERE id = ?",
		delta, stockSummary.ID).Error; err != nil {
		return decimal.Zero, err
	}

	movement := StockMovement{
		BusinessId:     businessId,
		LocationId:     locationId,
		ProductId:      productId,
		VariantId:      variantId,
		Qty:            delta,
		Reason:         reason,
		Description:    description,
		TransferId:     transferId,
		TransferItemId: transferItemId,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return decimal.Zero, err
	}

	return newQty, nil
}

// GetAvailableQty reads the current available quantity without locking.
// Transition decisions must never be based on this read alone; it exists for
// dashboards and validation messages.
func GetAvailableQty(ctx context.Context, businessId string, locationId int, productId int, variantId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var stockSummary StockSummary
	err := db.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND product_id = ? AND variant_id = ?",
			businessId, locationId, productId, variantId).
		First(&stockSummary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return stockSummary.AvailableQty, nil
}

const availableStocksCacheTTL = 60 * time.Second

func availableStocksCacheKey(businessId string, locationId int) string {
	return fmt.Sprintf("stocks:%s:%d", businessId, locationId)
}

// InvalidateStockCache drops the cached stock listing for the given
// locations. The workflow calls it after any commit that moved stock.
func InvalidateStockCache(businessId string, locationIds ...int) {
	keys := make([]string, 0, len(locationIds))
	for _, locationId := range locationIds {
		keys = append(keys, availableStocksCacheKey(businessId, locationId))
	}
	_ = config.RemoveRedisKey(keys...)
}

func GetAvailableStocks(ctx context.Context, locationId int) ([]*StockSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	// check if location exists and belongs to the business
	if err := utils.ValidateResourceId[Location](ctx, businessId, locationId); err != nil {
		return nil, errors.New("location not found")
	}

	cacheKey := availableStocksCacheKey(businessId, locationId)
	var cached []*StockSummary
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	var stockSummaries []*StockSummary
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("location_id = ?", locationId).
		Not("available_qty = 0").
		Find(&stockSummaries).Error; err != nil {
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, stockSummaries, availableStocksCacheTTL)
	return stockSummaries, nil
}

// RebuildStockSummaries re-derives stock_summaries from the movement ledger
// for one business. Used by cmd/stock-rebuild after manual data repairs.
func RebuildStockSummaries(tx *gorm.DB, businessId string) (int, error) {
	type keyTotal struct {
		LocationId int
		ProductId  int
		VariantId  int
		Total      decimal.Decimal
	}

	var totals []keyTotal
	if err := tx.Model(&StockMovement{}).
		Select("location_id, product_id, variant_id, SUM(qty) AS total").
		Where("business_id = ?", businessId).
		Group("location_id, product_id, variant_id").
		Scan(&totals).Error; err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, t := range totals {
		stockSummary, err := FirstOrCreateStockSummary(tx, businessId, t.LocationId, t.ProductId, t.VariantId)
		if err != nil {
			return rebuilt, err
		}
		if stockSummary.AvailableQty.Equal(t.Total) {
			continue
		}
		if err := tx.Model(&StockSummary{}).
			Where("id = ?", stockSummary.ID).
			Update("available_qty", t.Total).Error; err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	return rebuilt, nil
}
