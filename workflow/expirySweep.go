package workflow

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"github.com/sirupsen/logrus"
)

const expirySweepModule = "expirySweep.go"

const defaultSweepInterval = 300 * time.Second

func sweepInterval() time.Duration {
	if raw := os.Getenv("TRANSFER_SWEEP_INTERVAL_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultSweepInterval
}

// SweepExpired expires every pending or approved transfer whose expiry is at
// or before now, across all businesses. Each transfer is expired in its own
// transaction under the same version compare-and-swap as user-driven
// transitions, so a concurrent approve or cancel simply wins and the sweep
// skips that transfer. Safe to run repeatedly; already-expired transfers no
// longer match the filter.
func SweepExpired(now time.Time) (int, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	var candidates []models.Transfer
	err := db.Select("id", "business_id", "version").
		Where("current_status IN ?", []models.TransferStatus{
			models.TransferStatusPending, models.TransferStatusApproved,
		}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range candidates {
		if err := expireTransfer(candidate.BusinessId, candidate.ID, candidate.Version); err != nil {
			if CodeOf(err) == ErrorCodeConflict || CodeOf(err) == ErrorCodeInvalidStateTransition {
				// Someone acted on it between the scan and the lock.
				continue
			}
			config.LogError(logger, expirySweepModule, "SweepExpired", "Expire transfer", candidate.ID, err)
			continue
		}
		expired++
	}

	_ = config.SetRedisValue("transfer:last_sweep", now.Format(time.RFC3339), 24*time.Hour)
	return expired, nil
}

func expireTransfer(businessId string, transferId int, version int) error {
	db := config.GetDB()
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	transfer, err := models.GetTransferForUpdate(tx, businessId, transferId)
	if err != nil {
		tx.Rollback()
		return err
	}
	if transfer.Version != version {
		tx.Rollback()
		return errConflict(transferId)
	}
	if !CanApply(transfer.CurrentStatus, ActionExpire) {
		tx.Rollback()
		return errInvalidTransition(transferId, string(transfer.CurrentStatus), ActionExpire)
	}

	if reversesSourceStock(transfer.CurrentStatus) {
		if err := creditBackSource(tx, transfer, "Expired"); err != nil {
			tx.Rollback()
			return err
		}
	}

	result := tx.Model(&models.Transfer{}).
		Where("id = ? AND version = ?", transferId, version).
		Updates(map[string]any{
			"current_status": models.TransferStatusExpired,
			"version":        version + 1,
		})
	if result.Error != nil {
		tx.Rollback()
		return result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return errConflict(transferId)
	}

	history := models.History{
		BusinessId:    businessId,
		ActionType:    string(ActionExpire),
		Before:        string(transfer.CurrentStatus),
		After:         string(models.TransferStatusExpired),
		Description:   fmt.Sprintf("Expired %s", transfer.TransferNumber),
		ReferenceID:   transferId,
		ReferenceType: "transfers",
		UserName:      "system",
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}
	models.InvalidateStockCache(businessId, transfer.FromLocationId)
	return nil
}

// RunExpirySweeper runs SweepExpired on an interval until ctx is cancelled.
// Started from main as a background goroutine.
func RunExpirySweeper(ctx context.Context) {
	logger := config.GetLogger()
	interval := sweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithFields(logrus.Fields{"interval": interval.String()}).Info("transfer expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("transfer expiry sweeper stopped")
			return
		case <-ticker.C:
			count, err := SweepExpired(time.Now().UTC())
			if err != nil {
				config.LogError(logger, expirySweepModule, "RunExpirySweeper", "Sweep failed", nil, err)
				continue
			}
			if count > 0 {
				logger.WithFields(logrus.Fields{"expired": count}).Info("expired stale transfers")
			}
		}
	}
}
