package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCodeOfUnwrapsWorkflowErrors(t *testing.T) {
	base := errConflict(42)
	if CodeOf(base) != ErrorCodeConflict {
		t.Fatalf("CodeOf(conflict) = %q", CodeOf(base))
	}

	wrapped := fmt.Errorf("applying transition: %w", base)
	if CodeOf(wrapped) != ErrorCodeConflict {
		t.Fatalf("CodeOf(wrapped conflict) = %q", CodeOf(wrapped))
	}

	if CodeOf(errors.New("boom")) != "" {
		t.Fatalf("CodeOf(plain error) should be empty")
	}
	if CodeOf(nil) != "" {
		t.Fatalf("CodeOf(nil) should be empty")
	}
}

func TestInsufficientStockCarriesItemDetail(t *testing.T) {
	err := errInsufficientStock(7, 3, 11, 0, decimal.NewFromInt(10), decimal.NewFromInt(4))
	if err.Code != ErrorCodeInsufficientStock {
		t.Fatalf("code = %q", err.Code)
	}
	if err.TransferId != 7 || err.ItemId != 3 || err.ProductId != 11 {
		t.Fatalf("identifiers not carried: %+v", err)
	}
	if !err.Attempted.Equal(decimal.NewFromInt(10)) || !err.Available.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("quantities not carried: attempted=%s available=%s", err.Attempted, err.Available)
	}
}

func TestOverReceiptMessageNamesQuantities(t *testing.T) {
	err := errOverReceipt(1, 2, 3, 0, decimal.NewFromInt(6), decimal.NewFromInt(5))
	if err.Code != ErrorCodeOverReceipt {
		t.Fatalf("code = %q", err.Code)
	}
	msg := err.Error()
	if msg == "" || err.Message == "" {
		t.Fatalf("empty message")
	}
}
