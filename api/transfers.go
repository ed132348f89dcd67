package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
	"github.com/gin-gonic/gin"
)

const requestTransferHandler = "RequestTransfer"

type versionedRequest struct {
	Version int    `json:"version" binding:"required"`
	Reason  string `json:"reason"`
}

type approveRequest struct {
	Version            int                         `json:"version" binding:"required"`
	ApprovedQuantities []workflow.ApprovedQuantity `json:"approved_quantities" binding:"required"`
	Notes              string                      `json:"notes"`
}

type receiveRequest struct {
	Version            int                         `json:"version" binding:"required"`
	ReceivedQuantities []workflow.ReceivedQuantity `json:"received_quantities"`
	Final              bool                        `json:"final"`
}

func transferIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondInvalidInput(c, "invalid transfer id")
		return 0, false
	}
	return id, true
}

// createTransfer handles POST /api/transfers. An optional Idempotency-Key
// header deduplicates network retries: a replayed key returns 409 while the
// first attempt is in flight and 200 with the existing transfer afterwards.
func createTransfer(c *gin.Context) {
	var input models.NewTransfer
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}

	ctx := c.Request.Context()
	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		transfer, err := workflow.RequestTransfer(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transfer)
		return
	}

	// The key doubles as the transfer number so a replay can find the
	// transfer created by the first attempt.
	if strings.TrimSpace(input.TransferNumber) == "" {
		input.TransferNumber = "TRF-" + strings.ToUpper(idempotencyKey)
	}

	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	db := config.GetDB()
	skip, err := workflow.BeginIdempotency(db, businessId, requestTransferHandler, idempotencyKey)
	if err != nil {
		if errors.Is(err, workflow.ErrIdempotencyInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": gin.H{
				"code":    workflow.ErrorCodeConflict,
				"message": "request with this idempotency key is already in flight",
			}})
			return
		}
		respondError(c, err)
		return
	}
	if skip {
		var existing models.Transfer
		if err := db.WithContext(ctx).
			Where("business_id = ? AND transfer_number = ?", businessId, input.TransferNumber).
			Preload("Items").
			First(&existing).Error; err == nil {
			c.JSON(http.StatusOK, &existing)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "already processed"})
		return
	}

	transfer, err := workflow.RequestTransfer(ctx, &input)
	if err != nil {
		_ = workflow.MarkIdempotencyFailed(db, businessId, requestTransferHandler, idempotencyKey, err)
		respondError(c, err)
		return
	}
	if err := workflow.MarkIdempotencySucceeded(db, businessId, requestTransferHandler, idempotencyKey); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transfer)
}

func getTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	transfer, err := models.GetTransfer(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			respondError(c, &workflow.Error{Code: workflow.ErrorCodeNotFound, Message: "transfer not found", TransferId: id})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

// listTransfers handles GET /api/transfers with cursor pagination and
// location/role/status filters.
func listTransfers(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondInvalidInput(c, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}
	var after *string
	if raw := c.Query("after"); raw != "" {
		after = &raw
	}

	filter := models.TransferFilter{}
	if raw := c.Query("locationId"); raw != "" {
		locationId, err := strconv.Atoi(raw)
		if err != nil || locationId <= 0 {
			respondInvalidInput(c, "invalid locationId")
			return
		}
		filter.LocationId = locationId
	}
	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseTransferLocationRole(raw)
		if err != nil {
			respondInvalidInput(c, err.Error())
			return
		}
		filter.Role = role
	}
	for _, raw := range c.QueryArray("status") {
		status, err := models.ParseTransferStatus(raw)
		if err != nil {
			respondInvalidInput(c, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	connection, err := models.PaginateTransfers(c.Request.Context(), &limit, after, &filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, connection)
}

func listTransferHistory(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	histories, err := models.ListTransferHistories(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, histories)
}

func approveTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	var body approveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindingError(c, err)
		return
	}
	transfer, err := workflow.ApproveTransfer(c.Request.Context(), id, body.Version, body.ApprovedQuantities, body.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func rejectTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	var body versionedRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindingError(c, err)
		return
	}
	transfer, err := workflow.RejectTransfer(c.Request.Context(), id, body.Version, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

// shipTransfer retries a version conflict once with the re-read version. The
// intent "mark what was approved as shipped" carries no client quantities, so
// a replay on the fresh version is safe; the transition table still rejects
// it if the transfer moved past approved.
func shipTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	var body versionedRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindingError(c, err)
		return
	}
	ctx := c.Request.Context()
	transfer, err := workflow.MarkTransferInTransit(ctx, id, body.Version)
	if workflow.CodeOf(err) == workflow.ErrorCodeConflict {
		current, rerr := models.GetTransfer(ctx, id)
		if rerr == nil {
			transfer, err = workflow.MarkTransferInTransit(ctx, id, current.Version)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func receiveTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	var body receiveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindingError(c, err)
		return
	}
	transfer, err := workflow.ReceiveTransfer(c.Request.Context(), id, body.Version, body.ReceivedQuantities, body.Final)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func cancelTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	var body versionedRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindingError(c, err)
		return
	}
	transfer, err := workflow.CancelTransfer(c.Request.Context(), id, body.Version, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func followUpTransfer(c *gin.Context) {
	id, ok := transferIdParam(c)
	if !ok {
		return
	}
	transfer, err := workflow.RequestShortfallFollowUp(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transfer)
}
