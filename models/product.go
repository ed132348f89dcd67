package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
)

type Product struct {
	ID         int              `gorm:"primary_key" json:"id"`
	BusinessId string           `gorm:"index;not null" json:"business_id"`
	Name       string           `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku        string           `gorm:"size:100" json:"sku"`
	Barcode    string           `gorm:"size:100" json:"barcode"`
	IsTracked  *bool            `gorm:"not null;default:true" json:"is_tracked"`
	IsActive   *bool            `gorm:"not null;default:true" json:"is_active"`
	Variants   []ProductVariant `gorm:"foreignKey:ProductId" json:"variants"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name      string              `json:"name" binding:"required"`
	Sku       string              `json:"sku"`
	Barcode   string              `json:"barcode"`
	IsTracked *bool               `json:"is_tracked"`
	Variants  []NewProductVariant `json:"variants"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Product](ctx, businessId, "sku", input.Sku, 0); err != nil {
		return nil, err
	}

	var variants []ProductVariant
	for _, v := range input.Variants {
		variants = append(variants, ProductVariant{
			BusinessId: businessId,
			Name:       v.Name,
			Sku:        v.Sku,
		})
	}

	product := Product{
		BusinessId: businessId,
		Name:       input.Name,
		Sku:        input.Sku,
		Barcode:    input.Barcode,
		IsTracked:  input.IsTracked,
		Variants:   variants,
	}
	if product.IsTracked == nil {
		product.IsTracked = utils.NewTrue()
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return utils.FetchModel[Product](ctx, businessId, id, "Variants")
}

// IsTrackedProduct reports whether the product (and, when variantId > 0, the
// variant) exists, belongs to the business and has inventory tracking on.
func IsTrackedProduct(ctx context.Context, businessId string, productId int, variantId int) bool {
	count, err := utils.ResourceCountWhere[Product](ctx, businessId, "id = ? AND is_tracked = 1", productId)
	if err != nil || count <= 0 {
		return false
	}
	if variantId > 0 {
		count, err = utils.ResourceCountWhere[ProductVariant](ctx, businessId, "id = ? AND product_id = ?", variantId, productId)
		if err != nil || count <= 0 {
			return false
		}
	}
	return true
}
