package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

// History is the audit trail. One row per workflow action against a transfer.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type"`
	Before        string    `gorm:"size:30" json:"before"`
	After         string    `gorm:"size:30" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateTransferHistory appends an audit row inside the caller's transaction.
func CreateTransferHistory(ctx context.Context, tx *gorm.DB, businessId string,
	actionType string, transferId int, before TransferStatus, after TransferStatus, description string) error {

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	if userName == "" {
		// API callers only carry the login name from the token claim.
		userName, _ = utils.GetUsernameFromContext(ctx)
	}

	history := History{
		BusinessId:    businessId,
		ActionType:    actionType,
		Before:        string(before),
		After:         string(after),
		Description:   description,
		ReferenceID:   transferId,
		ReferenceType: "transfers",
		UserId:        userId,
		UserName:      userName,
	}
	return tx.Create(&history).Error
}

func ListTransferHistories(ctx context.Context, transferId int) ([]*History, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	var histories []*History
	if err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, "transfers", transferId).
		Order("created_at DESC, id DESC").
		Find(&histories).Error; err != nil {
		return nil, err
	}
	return histories, nil
}
