package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transfer is a request to move stock between two locations of one business.
// Status and item quantities are only ever changed together, through the
// workflow package, under a version compare-and-swap.
type Transfer struct {
	ID              int              `gorm:"primary_key" json:"id"`
	BusinessId      string           `gorm:"index;not null;index:uniq_transfer_number,unique" json:"business_id"`
	TransferNumber  string           `gorm:"size:100;not null;index:uniq_transfer_number,unique" json:"transfer_number"`
	FromLocationId  int              `gorm:"index;not null" json:"from_location_id" binding:"required"`
	ToLocationId    int              `gorm:"index;not null" json:"to_location_id" binding:"required"`
	CurrentStatus   TransferStatus   `gorm:"size:20;not null;index" json:"current_status"`
	Priority        TransferPriority `gorm:"size:10;not null;default:normal" json:"priority"`
	RequestNotes    string           `gorm:"type:text" json:"request_notes"`
	ApprovalNotes   string           `gorm:"type:text" json:"approval_notes"`
	RejectionReason string           `gorm:"type:text" json:"rejection_reason"`
	RequestedAt     time.Time        `gorm:"not null" json:"requested_at"`
	ApprovedAt      *time.Time       `json:"approved_at"`
	ShippedAt       *time.Time       `json:"shipped_at"`
	ReceivedAt      *time.Time       `json:"received_at"`
	ExpiresAt       *time.Time       `gorm:"index" json:"expires_at"`
	Version         int              `gorm:"not null;default:1" json:"version"`
	Items           []TransferItem   `gorm:"foreignKey:TransferId" json:"items"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransferItem is one product/variant line of a transfer. VariantId == 0
// means the base product. QuantityReceived accumulates across partial
// receipts; the other quantities are stamped once by their transition.
type TransferItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	TransferId        int             `gorm:"index;not null" json:"transfer_id"`
	ProductId         int             `gorm:"index;not null" json:"product_id"`
	VariantId         int             `gorm:"index;not null;default:0" json:"variant_id"`
	QuantityRequested decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_requested"`
	QuantityApproved  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_approved"`
	QuantityShipped   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_shipped"`
	QuantityReceived  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_received"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransfer struct {
	TransferNumber string            `json:"transfer_number"`
	FromLocationId int               `json:"from_location_id" binding:"required"`
	ToLocationId   int               `json:"to_location_id" binding:"required"`
	Priority       TransferPriority  `json:"priority"`
	RequestNotes   string            `json:"request_notes"`
	Items          []NewTransferItem `json:"items" binding:"required"`
}

type NewTransferItem struct {
	ProductId         int             `json:"product_id" binding:"required"`
	VariantId         int             `json:"variant_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested" binding:"required"`
}

type TransfersConnection struct {
	Edges    []*TransfersEdge `json:"edges"`
	PageInfo *PageInfo        `json:"pageInfo"`
}

type TransfersEdge Edge[Transfer]

func (obj Transfer) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj Transfer) GetCursor() string {
	return obj.CreatedAt.String()
}

// RemainingToReceive is the shipped quantity not yet received.
func (item TransferItem) RemainingToReceive() decimal.Decimal {
	return item.QuantityShipped.Sub(item.QuantityReceived)
}

// IsFullyReceived reports whether every shipped unit has arrived.
func (item TransferItem) IsFullyReceived() bool {
	return item.QuantityReceived.Equal(item.QuantityShipped)
}

// CheckQuantityChain verifies received <= shipped <= approved <= requested for
// the stages the transfer has passed through.
func (item TransferItem) CheckQuantityChain(status TransferStatus) error {
	if !item.QuantityRequested.IsPositive() {
		return errors.New("quantity requested must be positive")
	}
	switch status {
	case TransferStatusPending, TransferStatusRejected, TransferStatusCancelled, TransferStatusExpired:
		return nil
	}
	if item.QuantityApproved.GreaterThan(item.QuantityRequested) {
		return errors.New("quantity approved exceeds requested")
	}
	if status == TransferStatusApproved {
		return nil
	}
	if item.QuantityShipped.GreaterThan(item.QuantityApproved) {
		return errors.New("quantity shipped exceeds approved")
	}
	if item.QuantityReceived.GreaterThan(item.QuantityShipped) {
		return errors.New("quantity received exceeds shipped")
	}
	if item.QuantityReceived.IsNegative() {
		return errors.New("quantity received is negative")
	}
	return nil
}

func GetTransfer(ctx context.Context, id int) (*Transfer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return utils.FetchModel[Transfer](ctx, businessId, id, "Items")
}

// GetTransferForUpdate loads a transfer with its items under a row lock, for
// use inside a workflow transaction.
func GetTransferForUpdate(tx *gorm.DB, businessId string, id int) (*Transfer, error) {
	var transfer Transfer
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&transfer, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := tx.Where("transfer_id = ?", transfer.ID).Order("id").Find(&transfer.Items).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

type TransferFilter struct {
	LocationId int
	Role       TransferLocationRole
	Statuses   []TransferStatus
}

func PaginateTransfers(
	ctx context.Context, limit *int, after *string,
	filter *TransferFilter,
) (*TransfersConnection, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)

	if filter != nil {
		if filter.LocationId > 0 {
			switch filter.Role {
			case TransferLocationRoleSource:
				dbCtx.Where("from_location_id = ?", filter.LocationId)
			case TransferLocationRoleDestination:
				dbCtx.Where("to_location_id = ?", filter.LocationId)
			default:
				dbCtx.Where("from_location_id = ? OR to_location_id = ?", filter.LocationId, filter.LocationId)
			}
		}
		if len(filter.Statuses) > 0 {
			dbCtx.Where("current_status IN ?", filter.Statuses)
		}
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Transfer](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var transfersConnection TransfersConnection
	transfersConnection.PageInfo = pageInfo
	for _, edge := range edges {
		transfersEdge := TransfersEdge(edge)
		transfersConnection.Edges = append(transfersConnection.Edges, &transfersEdge)
	}

	// Attach items for the page.
	for _, edge := range transfersConnection.Edges {
		if edge.Node == nil {
			continue
		}
		if err := db.WithContext(ctx).
			Where("transfer_id = ?", edge.Node.ID).
			Order("id").
			Find(&edge.Node.Items).Error; err != nil {
			return nil, err
		}
	}

	return &transfersConnection, nil
}
