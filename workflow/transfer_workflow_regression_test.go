package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestTransferLifecycleWithPartialReceipts(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retail_test")
	t.Setenv("DEBUG_TRANSFER_WORKFLOW", "true")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test Retail",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessId := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	central, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Central Warehouse"})
	if err != nil {
		t.Fatalf("CreateLocation(central): %v", err)
	}
	branch, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Branch Store"})
	if err != nil {
		t.Fatalf("CreateLocation(branch): %v", err)
	}

	stapler, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Stapler", Sku: "STA-001"})
	if err != nil {
		t.Fatalf("CreateProduct(stapler): %v", err)
	}
	paper, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Paper", Sku: "PAP-001"})
	if err != nil {
		t.Fatalf("CreateProduct(paper): %v", err)
	}

	seedOpeningStock(t, businessId, central.ID, stapler.ID, decimal.NewFromInt(25))
	seedOpeningStock(t, businessId, central.ID, paper.ID, decimal.NewFromInt(40))

	srcCtx := utils.SetLocationIdInContext(ctx, central.ID)
	dstCtx := utils.SetLocationIdInContext(ctx, branch.ID)

	// Branch requests stock from the central warehouse.
	transfer, err := workflow.RequestTransfer(dstCtx, &models.NewTransfer{
		FromLocationId: central.ID,
		ToLocationId:   branch.ID,
		Priority:       models.TransferPriorityUrgent,
		RequestNotes:   "weekly replenishment",
		Items: []models.NewTransferItem{
			{ProductId: stapler.ID, QuantityRequested: decimal.NewFromInt(12)},
			{ProductId: paper.ID, QuantityRequested: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}
	if transfer.CurrentStatus != models.TransferStatusPending || transfer.Version != 1 {
		t.Fatalf("after request: status=%s version=%d", transfer.CurrentStatus, transfer.Version)
	}
	if transfer.ExpiresAt == nil || !transfer.ExpiresAt.After(time.Now()) {
		t.Fatalf("after request: expires_at not set in the future: %v", transfer.ExpiresAt)
	}

	itemBy := func(tr *models.Transfer, productId int) *models.TransferItem {
		for i := range tr.Items {
			if tr.Items[i].ProductId == productId {
				return &tr.Items[i]
			}
		}
		t.Fatalf("no item for product %d", productId)
		return nil
	}

	// Approve less than requested for the stapler line; stock leaves the
	// source at approval time.
	transfer, err = workflow.ApproveTransfer(dstCtx, transfer.ID, transfer.Version, []workflow.ApprovedQuantity{
		{ItemId: itemBy(transfer, stapler.ID).ID, Quantity: decimal.NewFromInt(10)},
		{ItemId: itemBy(transfer, paper.ID).ID, Quantity: decimal.NewFromInt(30)},
	}, "ok to ship")
	if err != nil {
		t.Fatalf("ApproveTransfer: %v", err)
	}
	if transfer.CurrentStatus != models.TransferStatusApproved || transfer.Version != 2 {
		t.Fatalf("after approve: status=%s version=%d", transfer.CurrentStatus, transfer.Version)
	}
	assertAvailable(t, ctx, businessId, central.ID, stapler.ID, 15)
	assertAvailable(t, ctx, businessId, central.ID, paper.ID, 10)
	assertAvailable(t, ctx, businessId, branch.ID, stapler.ID, 0)

	transfer, err = workflow.MarkTransferInTransit(srcCtx, transfer.ID, transfer.Version)
	if err != nil {
		t.Fatalf("MarkTransferInTransit: %v", err)
	}
	if transfer.CurrentStatus != models.TransferStatusInTransit || transfer.Version != 3 {
		t.Fatalf("after ship: status=%s version=%d", transfer.CurrentStatus, transfer.Version)
	}
	if !itemBy(transfer, stapler.ID).QuantityShipped.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stapler shipped = %s", itemBy(transfer, stapler.ID).QuantityShipped)
	}

	// First receipt: part of the staplers, all of the paper. The transfer
	// stays in transit because the stapler line is short.
	transfer, err = workflow.ReceiveTransfer(dstCtx, transfer.ID, transfer.Version, []workflow.ReceivedQuantity{
		{ItemId: itemBy(transfer, stapler.ID).ID, Quantity: decimal.NewFromInt(4)},
		{ItemId: itemBy(transfer, paper.ID).ID, Quantity: decimal.NewFromInt(30)},
	}, false)
	if err != nil {
		t.Fatalf("ReceiveTransfer(first): %v", err)
	}
	if transfer.CurrentStatus != models.TransferStatusInTransit || transfer.Version != 4 {
		t.Fatalf("after first receipt: status=%s version=%d", transfer.CurrentStatus, transfer.Version)
	}
	assertAvailable(t, ctx, businessId, branch.ID, stapler.ID, 4)
	assertAvailable(t, ctx, businessId, branch.ID, paper.ID, 30)

	// Closing receipt: two more staplers arrive, the last four are lost in
	// transit. Receipts accumulate; final closes the transfer short.
	transfer, err = workflow.ReceiveTransfer(dstCtx, transfer.ID, transfer.Version, []workflow.ReceivedQuantity{
		{ItemId: itemBy(transfer, stapler.ID).ID, Quantity: decimal.NewFromInt(2)},
	}, true)
	if err != nil {
		t.Fatalf("ReceiveTransfer(final): %v", err)
	}
	if transfer.CurrentStatus != models.TransferStatusPartiallyReceived || transfer.Version != 5 {
		t.Fatalf("after final receipt: status=%s version=%d", transfer.CurrentStatus, transfer.Version)
	}
	if !itemBy(transfer, stapler.ID).QuantityReceived.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("stapler received = %s", itemBy(transfer, stapler.ID).QuantityReceived)
	}
	assertAvailable(t, ctx, businessId, branch.ID, stapler.ID, 6)

	histories, err := models.ListTransferHistories(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("ListTransferHistories: %v", err)
	}
	if len(histories) != 5 {
		t.Fatalf("expected 5 audit rows (request, approve, ship, 2 receipts); got %d", len(histories))
	}

	// The shortfall becomes a fresh pending transfer for the missing four.
	followUp, err := workflow.RequestShortfallFollowUp(dstCtx, transfer.ID)
	if err != nil {
		t.Fatalf("RequestShortfallFollowUp: %v", err)
	}
	if followUp.CurrentStatus != models.TransferStatusPending || followUp.ID == transfer.ID {
		t.Fatalf("follow-up: status=%s id=%d", followUp.CurrentStatus, followUp.ID)
	}
	if len(followUp.Items) != 1 || !followUp.Items[0].QuantityRequested.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("follow-up items: %+v", followUp.Items)
	}

	// Ledger replay must agree with the live counters.
	db := config.GetDB()
	tx := db.Begin()
	if _, err := models.RebuildStockSummaries(tx, businessId); err != nil {
		tx.Rollback()
		t.Fatalf("RebuildStockSummaries: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit rebuild: %v", err)
	}
	assertAvailable(t, ctx, businessId, central.ID, stapler.ID, 15)
	assertAvailable(t, ctx, businessId, branch.ID, stapler.ID, 6)
	assertAvailable(t, ctx, businessId, branch.ID, paper.ID, 30)
}

func TestTransferGuardsAndExpiry(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retail_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{Name: "Guard Biz", Email: "guard@test.local"})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessId := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	source, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Source"})
	if err != nil {
		t.Fatalf("CreateLocation(source): %v", err)
	}
	dest, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Destination"})
	if err != nil {
		t.Fatalf("CreateLocation(dest): %v", err)
	}
	widget, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Widget", Sku: "WID-001"})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	seedOpeningStock(t, businessId, source.ID, widget.ID, decimal.NewFromInt(5))

	srcCtx := utils.SetLocationIdInContext(ctx, source.ID)
	dstCtx := utils.SetLocationIdInContext(ctx, dest.ID)

	newTransfer := func(qty int64) *models.Transfer {
		tr, err := workflow.RequestTransfer(dstCtx, &models.NewTransfer{
			FromLocationId: source.ID,
			ToLocationId:   dest.ID,
			Items: []models.NewTransferItem{
				{ProductId: widget.ID, QuantityRequested: decimal.NewFromInt(qty)},
			},
		})
		if err != nil {
			t.Fatalf("RequestTransfer: %v", err)
		}
		return tr
	}

	// Approving more than the source holds must fail atomically: no status
	// change, no version bump, no stock movement.
	short := newTransfer(10)
	_, err = workflow.ApproveTransfer(dstCtx, short.ID, short.Version, []workflow.ApprovedQuantity{
		{ItemId: short.Items[0].ID, Quantity: decimal.NewFromInt(10)},
	}, "")
	if workflow.CodeOf(err) != workflow.ErrorCodeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK; got %v", err)
	}
	reread, err := models.GetTransfer(ctx, short.ID)
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if reread.CurrentStatus != models.TransferStatusPending || reread.Version != 1 {
		t.Fatalf("failed approve must leave transfer untouched: status=%s version=%d",
			reread.CurrentStatus, reread.Version)
	}
	assertAvailable(t, ctx, businessId, source.ID, widget.ID, 5)

	// Wrong side may not act.
	_, err = workflow.ApproveTransfer(srcCtx, short.ID, 1, []workflow.ApprovedQuantity{
		{ItemId: short.Items[0].ID, Quantity: decimal.NewFromInt(5)},
	}, "")
	if workflow.CodeOf(err) != workflow.ErrorCodeForbiddenLocation {
		t.Fatalf("expected FORBIDDEN_LOCATION; got %v", err)
	}

	// Cancel an approved transfer and check the reservation comes back.
	cancelled := newTransfer(3)
	cancelled, err = workflow.ApproveTransfer(dstCtx, cancelled.ID, cancelled.Version, []workflow.ApprovedQuantity{
		{ItemId: cancelled.Items[0].ID, Quantity: decimal.NewFromInt(3)},
	}, "")
	if err != nil {
		t.Fatalf("ApproveTransfer: %v", err)
	}
	assertAvailable(t, ctx, businessId, source.ID, widget.ID, 2)

	// The cached stock listing must be dropped whenever stock moves, so a
	// repeat read after cancel sees the credited-back quantity.
	listedQty := func() decimal.Decimal {
		stocks, err := models.GetAvailableStocks(ctx, source.ID)
		if err != nil {
			t.Fatalf("GetAvailableStocks: %v", err)
		}
		for _, s := range stocks {
			if s.ProductId == widget.ID {
				return s.AvailableQty
			}
		}
		return decimal.Zero
	}
	if got := listedQty(); !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("listed stock before cancel = %s", got)
	}
	if got := listedQty(); !got.Equal(decimal.NewFromInt(2)) { // cached read
		t.Fatalf("cached listed stock = %s", got)
	}
	_, err = workflow.CancelTransfer(srcCtx, cancelled.ID, cancelled.Version, "not needed")
	if err != nil {
		t.Fatalf("CancelTransfer: %v", err)
	}
	assertAvailable(t, ctx, businessId, source.ID, widget.ID, 5)
	if got := listedQty(); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("listed stock after cancel = %s, cache not dropped", got)
	}
	reread, err = models.GetTransfer(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("GetTransfer(cancelled): %v", err)
	}
	if reread.RejectionReason != "" {
		t.Fatalf("cancel must not set rejection_reason; got %q", reread.RejectionReason)
	}

	// Acting on the stale version must report CONFLICT, not a transition error.
	_, err = workflow.CancelTransfer(srcCtx, cancelled.ID, cancelled.Version, "again")
	if workflow.CodeOf(err) != workflow.ErrorCodeConflict {
		t.Fatalf("expected CONFLICT on stale version; got %v", err)
	}

	// Over-receipt is rejected with the remaining quantity.
	shipped := newTransfer(4)
	shipped, err = workflow.ApproveTransfer(dstCtx, shipped.ID, shipped.Version, []workflow.ApprovedQuantity{
		{ItemId: shipped.Items[0].ID, Quantity: decimal.NewFromInt(4)},
	}, "")
	if err != nil {
		t.Fatalf("ApproveTransfer: %v", err)
	}
	shipped, err = workflow.MarkTransferInTransit(srcCtx, shipped.ID, shipped.Version)
	if err != nil {
		t.Fatalf("MarkTransferInTransit: %v", err)
	}
	_, err = workflow.ReceiveTransfer(dstCtx, shipped.ID, shipped.Version, []workflow.ReceivedQuantity{
		{ItemId: shipped.Items[0].ID, Quantity: decimal.NewFromInt(9)},
	}, false)
	if workflow.CodeOf(err) != workflow.ErrorCodeOverReceipt {
		t.Fatalf("expected OVER_RECEIPT; got %v", err)
	}

	// A receipt replayed with a stale version must not credit the
	// destination a second time.
	received, err := workflow.ReceiveTransfer(dstCtx, shipped.ID, shipped.Version, []workflow.ReceivedQuantity{
		{ItemId: shipped.Items[0].ID, Quantity: decimal.NewFromInt(2)},
	}, false)
	if err != nil {
		t.Fatalf("ReceiveTransfer: %v", err)
	}
	if received.Version != shipped.Version+1 {
		t.Fatalf("version after receipt = %d", received.Version)
	}
	assertAvailable(t, ctx, businessId, dest.ID, widget.ID, 2)

	_, err = workflow.ReceiveTransfer(dstCtx, shipped.ID, shipped.Version, []workflow.ReceivedQuantity{
		{ItemId: shipped.Items[0].ID, Quantity: decimal.NewFromInt(2)},
	}, false)
	if workflow.CodeOf(err) != workflow.ErrorCodeConflict {
		t.Fatalf("expected CONFLICT on replayed receipt; got %v", err)
	}
	reread, err = models.GetTransfer(ctx, shipped.ID)
	if err != nil {
		t.Fatalf("GetTransfer(shipped): %v", err)
	}
	if !reread.Items[0].QuantityReceived.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("replayed receipt changed quantity_received to %s", reread.Items[0].QuantityReceived)
	}
	assertAvailable(t, ctx, businessId, dest.ID, widget.ID, 2)

	// Expiry: an approved transfer past its deadline is swept, the
	// reservation returns, and the sweep is idempotent.
	expired := newTransfer(1)
	expired, err = workflow.ApproveTransfer(dstCtx, expired.ID, expired.Version, []workflow.ApprovedQuantity{
		{ItemId: expired.Items[0].ID, Quantity: decimal.NewFromInt(1)},
	}, "")
	if err != nil {
		t.Fatalf("ApproveTransfer: %v", err)
	}
	db := config.GetDB()
	past := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.Transfer{}).Where("id = ?", expired.ID).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("backdate expires_at: %v", err)
	}

	count, err := workflow.SweepExpired(time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired transfer; got %d", count)
	}
	reread, err = models.GetTransfer(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetTransfer(expired): %v", err)
	}
	if reread.CurrentStatus != models.TransferStatusExpired {
		t.Fatalf("status after sweep = %s", reread.CurrentStatus)
	}
	assertAvailable(t, ctx, businessId, source.ID, widget.ID, 1)

	count, err = workflow.SweepExpired(time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepExpired(second): %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep must be a no-op; expired %d", count)
	}
}

// Two approvals racing over the same stock may not jointly take more than
// the source holds: one wins, the other fails, and the ledger never goes
// negative.
func TestConcurrentApprovalsCannotOverdraw(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retail_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{Name: "Race Biz", Email: "race@test.local"})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessId := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	source, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Source"})
	if err != nil {
		t.Fatalf("CreateLocation(source): %v", err)
	}
	dest, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Destination"})
	if err != nil {
		t.Fatalf("CreateLocation(dest): %v", err)
	}
	widget, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Widget", Sku: "WID-001"})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	seedOpeningStock(t, businessId, source.ID, widget.ID, decimal.NewFromInt(5))

	dstCtx := utils.SetLocationIdInContext(ctx, dest.ID)

	newTransfer := func(qty int64) *models.Transfer {
		tr, err := workflow.RequestTransfer(dstCtx, &models.NewTransfer{
			FromLocationId: source.ID,
			ToLocationId:   dest.ID,
			Items: []models.NewTransferItem{
				{ProductId: widget.ID, QuantityRequested: decimal.NewFromInt(qty)},
			},
		})
		if err != nil {
			t.Fatalf("RequestTransfer: %v", err)
		}
		return tr
	}

	// 4 + 3 > 5, so at most one of these approvals may go through.
	transfers := []*models.Transfer{newTransfer(4), newTransfer(3)}

	var wg sync.WaitGroup
	errs := make([]error, len(transfers))
	for i := range transfers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := transfers[i]
			for attempt := 0; attempt < 20; attempt++ {
				_, err := workflow.ApproveTransfer(dstCtx, tr.ID, tr.Version, []workflow.ApprovedQuantity{
					{ItemId: tr.Items[0].ID, Quantity: tr.Items[0].QuantityRequested},
				}, "")
				errs[i] = err
				if err == nil || workflow.CodeOf(err) != "" {
					return
				}
				// lost the admission gate; try again
				time.Sleep(50 * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	approvedTotal := decimal.Zero
	successes := 0
	for i, tr := range transfers {
		if errs[i] == nil {
			successes++
			reread, err := models.GetTransfer(ctx, tr.ID)
			if err != nil {
				t.Fatalf("GetTransfer: %v", err)
			}
			if reread.CurrentStatus != models.TransferStatusApproved {
				t.Fatalf("winner status = %s", reread.CurrentStatus)
			}
			approvedTotal = approvedTotal.Add(reread.Items[0].QuantityApproved)
			continue
		}
		if workflow.CodeOf(errs[i]) != workflow.ErrorCodeInsufficientStock {
			t.Fatalf("loser must fail with INSUFFICIENT_STOCK; got %v", errs[i])
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one approval to win; got %d", successes)
	}
	if approvedTotal.GreaterThan(decimal.NewFromInt(5)) {
		t.Fatalf("approvals jointly overdrew the source: %s of 5", approvedTotal)
	}
	assertAvailable(t, ctx, businessId, source.ID, widget.ID, 5-approvedTotal.IntPart())

	// Ledger replay must agree with the surviving counters.
	db := config.GetDB()
	tx := db.Begin()
	if _, err := models.RebuildStockSummaries(tx, businessId); err != nil {
		tx.Rollback()
		t.Fatalf("RebuildStockSummaries: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit rebuild: %v", err)
	}
	assertAvailable(t, ctx, businessId, source.ID, widget.ID, 5-approvedTotal.IntPart())
}

func seedOpeningStock(t *testing.T, businessId string, locationId, productId int, qty decimal.Decimal) {
	t.Helper()
	db := config.GetDB()
	tx := db.Begin()
	if _, err := models.ApplyStockDelta(tx, businessId, locationId, productId, 0,
		qty, models.StockMovementReasonOpening, "Opening stock", 0, 0); err != nil {
		tx.Rollback()
		t.Fatalf("seed opening stock: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit opening stock: %v", err)
	}
}

func assertAvailable(t *testing.T, ctx context.Context, businessId string, locationId, productId int, want int64) {
	t.Helper()
	qty, err := models.GetAvailableQty(ctx, businessId, locationId, productId, 0)
	if err != nil {
		t.Fatalf("GetAvailableQty: %v", err)
	}
	if qty.Cmp(decimal.NewFromInt(want)) != 0 {
		t.Fatalf("available qty at location %d product %d = %s, want %d", locationId, productId, qty, want)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retail_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
