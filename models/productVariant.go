package models

import "time"

// ProductVariant is one sellable variation of a product. A transfer item with
// VariantId == 0 refers to the base product itself.
type ProductVariant struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	ProductId  int       `gorm:"index;not null" json:"product_id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	Sku        string    `gorm:"size:100" json:"sku"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductVariant struct {
	Name string `json:"name" binding:"required"`
	Sku  string `json:"sku"`
}
