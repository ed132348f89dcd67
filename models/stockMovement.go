package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockMovement is one append-only row in the stock ledger. The available
// quantity in stock_summaries must always equal the sum of movements for the
// same key; cmd/stock-rebuild re-derives summaries from this table.
type StockMovement struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	BusinessId     string              `gorm:"index;not null" json:"business_id"`
	LocationId     int                 `gorm:"index;not null" json:"location_id"`
	ProductId      int                 `gorm:"index;not null" json:"product_id"`
	VariantId      int                 `gorm:"index;not null;default:0" json:"variant_id"`
	Qty            decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"qty"`
	Reason         StockMovementReason `gorm:"size:20;not null;index" json:"reason"`
	Description    string              `gorm:"size:100;not null" json:"description"`
	TransferId     int                 `gorm:"index;default:0" json:"transfer_id"`
	TransferItemId int                 `gorm:"default:0" json:"transfer_item_id"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
}
