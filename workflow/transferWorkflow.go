package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const transferWorkflowModule = "transferWorkflow.go"

const defaultTransferExpiryDays = 7

// ApprovedQuantity sets the approved quantity for one transfer item. Every
// item of the transfer must be covered; quantities are never inferred.
type ApprovedQuantity struct {
	ItemId   int             `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReceivedQuantity records arrival of stock for one transfer item. Items
// without an entry receive nothing in this receipt.
type ReceivedQuantity struct {
	ItemId   int             `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

func transferExpiryDays() int {
	if raw := os.Getenv("TRANSFER_EXPIRY_DAYS"); raw != "" {
		if days, err := strconv.Atoi(raw); err == nil && days > 0 {
			return days
		}
	}
	return defaultTransferExpiryDays
}

func generateTransferNumber() string {
	return "TRF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func requireBusinessId(ctx context.Context) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errInvalidInput("business id is required")
	}
	return businessId, nil
}

// checkActingLocation verifies the caller acts for the required location.
// Admin users bypass the check.
func checkActingLocation(ctx context.Context, transferId int, requiredLocationId int, side string) error {
	if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok && isAdmin {
		return nil
	}
	locationId, ok := utils.GetLocationIdFromContext(ctx)
	if !ok || locationId != requiredLocationId {
		return errForbiddenLocation(transferId,
			fmt.Sprintf("only the %s location may perform this action", side))
	}
	return nil
}

// debugLog emits workflow traces when DEBUG_TRANSFER_WORKFLOW is set.
func debugLog(functionName string, fields logrus.Fields) {
	if !config.DebugTransferWorkflow() {
		return
	}
	logger := config.GetLogger()
	logger.WithFields(fields).Info(transferWorkflowModule + ": " + functionName)
}

// RequestTransfer creates a pending transfer between two locations of the
// caller's business. Stock is not touched until approval.
func RequestTransfer(ctx context.Context, input *models.NewTransfer) (*models.Transfer, error) {
	businessId, err := requireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if input == nil || len(input.Items) == 0 {
		return nil, errInvalidInput("a transfer needs at least one item")
	}
	if input.FromLocationId == input.ToLocationId {
		return nil, errInvalidInput("source and destination locations must differ")
	}

	priority, perr := models.ParseTransferPriority(string(input.Priority))
	if perr != nil {
		return nil, errInvalidInput("unknown priority %q", input.Priority)
	}

	for _, locationId := range []int{input.FromLocationId, input.ToLocationId} {
		location, lerr := models.GetLocation(ctx, locationId)
		if lerr != nil {
			if errors.Is(lerr, utils.ErrorRecordNotFound) {
				return nil, errInvalidInput("location %d does not exist", locationId)
			}
			return nil, lerr
		}
		if location.IsActive != nil && !*location.IsActive {
			return nil, errInvalidInput("location %q is inactive", location.Name)
		}
	}

	if isAdmin, ok := utils.GetIsAdminFromContext(ctx); !ok || !isAdmin {
		if locationId, ok := utils.GetLocationIdFromContext(ctx); ok &&
			locationId != input.FromLocationId && locationId != input.ToLocationId {
			return nil, errForbiddenLocation(0, "caller's location is not part of this transfer")
		}
	}

	productIds := make([]int, 0, len(input.Items))
	for _, line := range input.Items {
		productIds = append(productIds, line.ProductId)
	}
	if err := utils.ValidateResourcesId[models.Product](ctx, businessId, productIds); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errInvalidInput("one or more products do not exist")
		}
		return nil, err
	}

	seen := make(map[[2]int]bool, len(input.Items))
	items := make([]models.TransferItem, 0, len(input.Items))
	for _, line := range input.Items {
		if !line.QuantityRequested.IsPositive() {
			return nil, errInvalidInput("quantity requested for product %d must be positive", line.ProductId)
		}
		key := [2]int{line.ProductId, line.VariantId}
		if seen[key] {
			return nil, errInvalidInput("duplicate line for product %d variant %d", line.ProductId, line.VariantId)
		}
		seen[key] = true

		if config.RequireTrackedProducts() &&
			!models.IsTrackedProduct(ctx, businessId, line.ProductId, line.VariantId) {
			return nil, errInvalidInput("product %d variant %d is not stock-tracked", line.ProductId, line.VariantId)
		}

		items = append(items, models.TransferItem{
			ProductId:         line.ProductId,
			VariantId:         line.VariantId,
			QuantityRequested: line.QuantityRequested,
		})
	}

	transferNumber := strings.TrimSpace(input.TransferNumber)
	if transferNumber == "" {
		transferNumber = generateTransferNumber()
	}

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, transferExpiryDays())
	transfer := models.Transfer{
		BusinessId:     businessId,
		TransferNumber: transferNumber,
		FromLocationId: input.FromLocationId,
		ToLocationId:   input.ToLocationId,
		CurrentStatus:  models.TransferStatusPending,
		Priority:       priority,
		RequestNotes:   input.RequestNotes,
		RequestedAt:    now,
		ExpiresAt:      &expiresAt,
		Items:          items,
	}

	db := config.GetDB()
	logger := config.GetLogger()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Create(&transfer).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyErr(err) {
			return nil, errInvalidInput("transfer number %q already exists", transferNumber)
		}
		config.LogError(logger, transferWorkflowModule, "RequestTransfer", "Create transfer", transferNumber, err)
		return nil, err
	}

	description := fmt.Sprintf("Requested %s from location %d to location %d",
		transfer.TransferNumber, transfer.FromLocationId, transfer.ToLocationId)
	if err := models.CreateTransferHistory(ctx, tx, businessId, string(ActionRequest),
		transfer.ID, "", models.TransferStatusPending, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	debugLog("RequestTransfer", logrus.Fields{
		"transferId":     transfer.ID,
		"transferNumber": transfer.TransferNumber,
		"items":          len(transfer.Items),
	})
	return &transfer, nil
}

// ApproveTransfer moves a pending transfer to approved and decrements the
// source location's stock by the approved quantities, atomically. Every item
// must be covered by quantities; approving an item at zero drops it from the
// shipment without deleting the line.
func ApproveTransfer(ctx context.Context, transferId int, version int,
	quantities []ApprovedQuantity, notes string) (*models.Transfer, error) {

	businessId, err := requireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.BusinessLock(ctx, businessId, "stock", transferWorkflowModule, "ApproveTransfer"); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	transfer, err := models.GetTransferForUpdate(tx, businessId, transferId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errNotFound(transferId)
		}
		return nil, err
	}
	if transfer.Version != version {
		tx.Rollback()
		return nil, errConflict(transferId)
	}
	if err := checkActingLocation(ctx, transferId, transfer.ToLocationId, "destination"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if !CanApply(transfer.CurrentStatus, ActionApprove) {
		tx.Rollback()
		return nil, errInvalidTransition(transferId, string(transfer.CurrentStatus), ActionApprove)
	}

	approvedByItem := make(map[int]decimal.Decimal, len(quantities))
	for _, q := range quantities {
		if _, dup := approvedByItem[q.ItemId]; dup {
			tx.Rollback()
			return nil, errInvalidInput("duplicate approved quantity for item %d", q.ItemId)
		}
		approvedByItem[q.ItemId] = q.Quantity
	}
	if len(approvedByItem) != len(transfer.Items) {
		tx.Rollback()
		return nil, errInvalidInput("approved quantities must cover every transfer item")
	}

	for _, item := range transfer.Items {
		quantity, ok := approvedByItem[item.ID]
		if !ok {
			tx.Rollback()
			return nil, errInvalidInput("missing approved quantity for item %d", item.ID)
		}
		if quantity.IsNegative() {
			tx.Rollback()
			return nil, errInvalidInput("approved quantity for item %d is negative", item.ID)
		}
		if quantity.GreaterThan(item.QuantityRequested) {
			tx.Rollback()
			return nil, errInvalidInput("approved quantity %s for item %d exceeds requested %s",
				quantity, item.ID, item.QuantityRequested)
		}

		if quantity.IsPositive() {
			description := fmt.Sprintf("Transfer out %s", transfer.TransferNumber)
			_, serr := models.ApplyStockDelta(tx, businessId, transfer.FromLocationId,
				item.ProductId, item.VariantId, quantity.Neg(),
				models.StockMovementReasonTransfer, description, transfer.ID, item.ID)
			if serr != nil {
				tx.Rollback()
				if errors.Is(serr, models.ErrStockWouldGoNegative) {
					available, _ := models.GetAvailableQty(ctx, businessId, transfer.FromLocationId,
						item.ProductId, item.VariantId)
					return nil, errInsufficientStock(transferId, item.ID, item.ProductId, item.VariantId,
						quantity, available)
				}
				config.LogError(logger, transferWorkflowModule, "ApproveTransfer", "Apply stock delta", item.ID, serr)
				return nil, serr
			}
		}

		if err := tx.Model(&models.TransferItem{}).
			Where("id = ?", item.ID).
			Update("quantity_approved", quantity).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		applied := item
		applied.QuantityApproved = quantity
		if err := applied.CheckQuantityChain(models.TransferStatusApproved); err != nil {
			tx.Rollback()
			return nil, errInvalidInput("item %d: %s", item.ID, err.Error())
		}
	}

	now := time.Now().UTC()
	result := tx.Model(&models.Transfer{}).
		Where("id = ? AND version = ?", transferId, version).
		Updates(map[string]any{
			"current_status": models.TransferStatusApproved,
			"approval_notes": notes,
			"approved_at":    now,
			"version":        version + 1,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, errConflict(transferId)
	}

	if err := models.CreateTransferHistory(ctx, tx, businessId, string(ActionApprove),
		transferId, models.TransferStatusPending, models.TransferStatusApproved,
		fmt.Sprintf("Approved %s", transfer.TransferNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	models.InvalidateStockCache(businessId, transfer.FromLocationId)

	debugLog("ApproveTransfer", logrus.Fields{"transferId": transferId, "version": version + 1})
	return models.GetTransfer(ctx, transferId)
}

// RejectTransfer declines a pending transfer. A reason is mandatory; stock is
// untouched because nothing was reserved yet.
func RejectTransfer(ctx context.Context, transferId int, version int, reason string) (*models.Transfer, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errInvalidInput("a rejection reason is required")
	}
	return applyPlainTransition(ctx, transferId, version, ActionReject, func(transfer *models.Transfer) error {
		return checkActingLocation(ctx, transferId, transfer.ToLocationId, "destination")
	}, func(transfer *models.Transfer) map[string]any {
		return map[string]any{
			"current_status":   models.TransferStatusRejected,
			"rejection_reason": reason,
		}
	}, models.TransferStatusRejected, reason)
}

// MarkTransferInTransit records that the approved quantities left the source
// location. Shipped quantities are stamped from the approved ones.
func MarkTransferInTransit(ctx context.Context, transferId int, version int) (*models.Transfer, error) {
	businessId, err := requireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	transfer, err := models.GetTransferForUpdate(tx, businessId, transferId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errNotFound(transferId)
		}
		return nil, err
	}
	if transfer.Version != version {
		tx.Rollback()
		return nil, errConflict(transferId)
	}
	if err := checkActingLocation(ctx, transferId, transfer.FromLocationId, "source"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if !CanApply(transfer.CurrentStatus, ActionShip) {
		tx.Rollback()
		return nil, errInvalidTransition(transferId, string(transfer.CurrentStatus), ActionShip)
	}

	for _, item := range transfer.Items {
		if err := tx.Model(&models.TransferItem{}).
			Where("id = ?", item.ID).
			Update("quantity_shipped", item.QuantityApproved).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	result := tx.Model(&models.Transfer{}).
		Where("id = ? AND version = ?", transferId, version).
		Updates(map[string]any{
			"current_status": models.TransferStatusInTransit,
			"shipped_at":     now,
			"version":        version + 1,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, errConflict(transferId)
	}

	if err := models.CreateTransferHistory(ctx, tx, businessId, string(ActionShip),
		transferId, transfer.CurrentStatus, models.TransferStatusInTransit,
		fmt.Sprintf("Shipped %s", transfer.TransferNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	debugLog("MarkTransferInTransit", logrus.Fields{"transferId": transferId})
	return models.GetTransfer(ctx, transferId)
}

// ReceiveTransfer books arrived quantities into the destination location.
// Receipts accumulate: each call adds to quantity_received, never overwrites.
// The transfer completes as received when everything shipped has arrived, or
// as partially_received when final is set with a shortfall outstanding.
// Otherwise it stays in_transit awaiting further receipts.
func ReceiveTransfer(ctx context.Context, transferId int, version int,
	quantities []ReceivedQuantity, final bool) (*models.Transfer, error) {

	businessId, err := requireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.BusinessLock(ctx, businessId, "stock", transferWorkflowModule, "ReceiveTransfer"); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	transfer, err := models.GetTransferForUpdate(tx, businessId, transferId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errNotFound(transferId)
		}
		return nil, err
	}
	if transfer.Version != version {
		tx.Rollback()
		return nil, errConflict(transferId)
	}
	if err := checkActingLocation(ctx, transferId, transfer.ToLocationId, "destination"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if !CanApply(transfer.CurrentStatus, ActionReceive) {
		tx.Rollback()
		return nil, errInvalidTransition(transferId, string(transfer.CurrentStatus), ActionReceive)
	}

	receivedByItem := make(map[int]decimal.Decimal, len(quantities))
	for _, q := range quantities {
		if _, dup := receivedByItem[q.ItemId]; dup {
			tx.Rollback()
			return nil, errInvalidInput("duplicate received quantity for item %d", q.ItemId)
		}
		receivedByItem[q.ItemId] = q.Quantity
	}

	itemsById := make(map[int]models.TransferItem, len(transfer.Items))
	for _, item := range transfer.Items {
		itemsById[item.ID] = item
	}
	for itemId := range receivedByItem {
		if _, ok := itemsById[itemId]; !ok {
			tx.Rollback()
			return nil, errInvalidInput("item %d does not belong to transfer %d", itemId, transferId)
		}
	}

	anyReceived := false
	allFullyReceived := true
	for _, item := range transfer.Items {
		quantity := receivedByItem[item.ID] // zero when absent
		if quantity.IsNegative() {
			tx.Rollback()
			return nil, errInvalidInput("received quantity for item %d is negative", item.ID)
		}
		remaining := item.RemainingToReceive()
		if quantity.GreaterThan(remaining) {
			tx.Rollback()
			return nil, errOverReceipt(transferId, item.ID, item.ProductId, item.VariantId,
				quantity, remaining)
		}

		newReceived := item.QuantityReceived.Add(quantity)
		if quantity.IsPositive() {
			anyReceived = true
			description := fmt.Sprintf("Transfer in %s", transfer.TransferNumber)
			_, serr := models.ApplyStockDelta(tx, businessId, transfer.ToLocationId,
				item.ProductId, item.VariantId, quantity,
				models.StockMovementReasonTransfer, description, transfer.ID, item.ID)
			if serr != nil {
				tx.Rollback()
				config.LogError(logger, transferWorkflowModule, "ReceiveTransfer", "Apply stock delta", item.ID, serr)
				return nil, serr
			}
			if err := tx.Model(&models.TransferItem{}).
				Where("id = ?", item.ID).
				Update("quantity_received", newReceived).Error; err != nil {
				tx.Rollback()
				return nil, err
			}

			applied := item
			applied.QuantityReceived = newReceived
			if err := applied.CheckQuantityChain(models.TransferStatusInTransit); err != nil {
				tx.Rollback()
				return nil, errInvalidInput("item %d: %s", item.ID, err.Error())
			}
		}
		if !newReceived.Equal(item.QuantityShipped) {
			allFullyReceived = false
		}
	}
	if !anyReceived && !final {
		tx.Rollback()
		return nil, errInvalidInput("a receipt needs at least one positive quantity")
	}

	newStatus := transfer.CurrentStatus
	updates := map[string]any{"version": version + 1}
	now := time.Now().UTC()
	switch {
	case allFullyReceived:
		newStatus = models.TransferStatusReceived
		updates["current_status"] = newStatus
		updates["received_at"] = now
	case final:
		newStatus = models.TransferStatusPartiallyReceived
		updates["current_status"] = newStatus
		updates["received_at"] = now
	}

	result := tx.Model(&models.Transfer{}).
		Where("id = ? AND version = ?", transferId, version).
		Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, errConflict(transferId)
	}

	if err := models.CreateTransferHistory(ctx, tx, businessId, string(ActionReceive),
		transferId, transfer.CurrentStatus, newStatus,
		fmt.Sprintf("Received against %s", transfer.TransferNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	models.InvalidateStockCache(businessId, transfer.ToLocationId)

	debugLog("ReceiveTransfer", logrus.Fields{
		"transferId": transferId,
		"newStatus":  newStatus,
		"final":      final,
	})
	return models.GetTransfer(ctx, transferId)
}

// CancelTransfer aborts a pending or approved transfer. Cancelling an
// approved transfer credits the reserved quantities back to the source
// location in the same transaction.
func CancelTransfer(ctx context.Context, transferId int, version int, reason string) (*models.Transfer, error) {
	businessId, err := requireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.BusinessLock(ctx, businessId, "stock", transferWorkflowModule, "CancelTransfer"); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	transfer, err := models.GetTransferForUpdate(tx, businessId, transferId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errNotFound(transferId)
		}
		return nil, err
	}
	if transfer.Version != version {
		tx.Rollback()
		return nil, errConflict(transferId)
	}
	if err := checkActingLocation(ctx, transferId, transfer.FromLocationId, "source"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if !CanApply(transfer.CurrentStatus, ActionCancel) {
		tx.Rollback()
		return nil, errInvalidTransition(transferId, string(transfer.CurrentStatus), ActionCancel)
	}

	if reversesSourceStock(transfer.CurrentStatus) {
		if err := creditBackSource(tx, transfer, "Cancelled"); err != nil {
			tx.Rollback()
			config.LogError(logger, transferWorkflowModule, "CancelTransfer", "Credit back source", transferId, err)
			return nil, err
		}
	}

	result := tx.Model(&models.Transfer{}).
		Where("id = ? AND version = ?", transferId, version).
		Updates(map[string]any{
			"current_status": models.TransferStatusCancelled,
			"version":        version + 1,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, errConflict(transferId)
	}

	if err := models.CreateTransferHistory(ctx, tx, businessId, string(ActionCancel),
		transferId, transfer.CurrentStatus, models.TransferStatusCancelled,
		fmt.Sprintf("Cancelled %s: %s", transfer.TransferNumber, reason)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	models.InvalidateStockCache(businessId, transfer.FromLocationId)

	debugLog("CancelTransfer", logrus.Fields{"transferId": transferId, "from": transfer.CurrentStatus})
	return models.GetTransfer(ctx, transferId)
}

// creditBackSource reverses the approval-time decrement for every item with a
// positive approved quantity. Used by cancel and expiry.
func creditBackSource(tx *gorm.DB, transfer *models.Transfer, cause string) error {
	for _, item := range transfer.Items {
		if !item.QuantityApproved.IsPositive() {
			continue
		}
		description := fmt.Sprintf("%s %s, stock returned", cause, transfer.TransferNumber)
		_, err := models.ApplyStockDelta(tx, transfer.BusinessId, transfer.FromLocationId,
			item.ProductId, item.VariantId, item.QuantityApproved,
			models.StockMovementReasonTransfer, description, transfer.ID, item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// applyPlainTransition runs the shared recipe for transitions that change
// status and metadata only, never stock or item quantities.
func applyPlainTransition(ctx context.Context, transferId int, version int, action Action,
	roleCheck func(*models.Transfer) error, buildUpdates func(*models.Transfer) map[string]any,
	target models.TransferStatus, description string) (*models.Transfer, error) {

	businessId, err := requireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	transfer, err := models.GetTransferForUpdate(tx, businessId, transferId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errNotFound(transferId)
		}
		return nil, err
	}
	if transfer.Version != version {
		tx.Rollback()
		return nil, errConflict(transferId)
	}
	if roleCheck != nil {
		if err := roleCheck(transfer); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if !CanApply(transfer.CurrentStatus, action) {
		tx.Rollback()
		return nil, errInvalidTransition(transferId, string(transfer.CurrentStatus), action)
	}

	updates := buildUpdates(transfer)
	updates["version"] = version + 1
	result := tx.Model(&models.Transfer{}).
		Where("id = ? AND version = ?", transferId, version).
		Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, errConflict(transferId)
	}

	if err := models.CreateTransferHistory(ctx, tx, businessId, string(action),
		transferId, transfer.CurrentStatus, target,
		fmt.Sprintf("%s %s: %s", action, transfer.TransferNumber, description)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	debugLog(string(action), logrus.Fields{"transferId": transferId, "target": target})
	return models.GetTransfer(ctx, transferId)
}

// RequestShortfallFollowUp creates a fresh pending transfer for the
// quantities that never arrived on a partially received transfer. The
// original transfer stays terminal; the follow-up runs the whole workflow
// again on its own version counter.
func RequestShortfallFollowUp(ctx context.Context, transferId int) (*models.Transfer, error) {
	original, err := models.GetTransfer(ctx, transferId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, errNotFound(transferId)
		}
		return nil, err
	}
	if original.CurrentStatus != models.TransferStatusPartiallyReceived {
		return nil, errInvalidTransition(transferId, string(original.CurrentStatus), ActionRequest)
	}

	var items []models.NewTransferItem
	for _, item := range original.Items {
		shortfall := item.RemainingToReceive()
		if shortfall.IsPositive() {
			items = append(items, models.NewTransferItem{
				ProductId:         item.ProductId,
				VariantId:         item.VariantId,
				QuantityRequested: shortfall,
			})
		}
	}
	if len(items) == 0 {
		return nil, errInvalidInput("transfer %d has no outstanding shortfall", transferId)
	}

	return RequestTransfer(ctx, &models.NewTransfer{
		FromLocationId: original.FromLocationId,
		ToLocationId:   original.ToLocationId,
		Priority:       original.Priority,
		RequestNotes:   fmt.Sprintf("Shortfall follow-up for %s", original.TransferNumber),
		Items:          items,
	})
}
