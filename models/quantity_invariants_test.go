package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestCheckQuantityChain(t *testing.T) {
	cases := []struct {
		name    string
		item    TransferItem
		status  TransferStatus
		wantErr bool
	}{
		{
			name:   "pending only checks requested",
			item:   TransferItem{QuantityRequested: qty(10)},
			status: TransferStatusPending,
		},
		{
			name:    "zero requested is invalid",
			item:    TransferItem{QuantityRequested: qty(0)},
			status:  TransferStatusPending,
			wantErr: true,
		},
		{
			name:   "approved within requested",
			item:   TransferItem{QuantityRequested: qty(10), QuantityApproved: qty(8)},
			status: TransferStatusApproved,
		},
		{
			name:    "approved above requested",
			item:    TransferItem{QuantityRequested: qty(10), QuantityApproved: qty(11)},
			status:  TransferStatusApproved,
			wantErr: true,
		},
		{
			name: "full chain holds in transit",
			item: TransferItem{
				QuantityRequested: qty(10), QuantityApproved: qty(8),
				QuantityShipped: qty(8), QuantityReceived: qty(3),
			},
			status: TransferStatusInTransit,
		},
		{
			name: "shipped above approved",
			item: TransferItem{
				QuantityRequested: qty(10), QuantityApproved: qty(8), QuantityShipped: qty(9),
			},
			status:  TransferStatusInTransit,
			wantErr: true,
		},
		{
			name: "received above shipped",
			item: TransferItem{
				QuantityRequested: qty(10), QuantityApproved: qty(8),
				QuantityShipped: qty(8), QuantityReceived: qty(9),
			},
			status:  TransferStatusReceived,
			wantErr: true,
		},
		{
			name: "rejected skips downstream checks",
			item: TransferItem{
				QuantityRequested: qty(10), QuantityApproved: qty(99),
			},
			status: TransferStatusRejected,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.item.CheckQuantityChain(tc.status)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckQuantityChain() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRemainingToReceive(t *testing.T) {
	item := TransferItem{QuantityShipped: qty(10), QuantityReceived: qty(4)}
	if !item.RemainingToReceive().Equal(qty(6)) {
		t.Fatalf("remaining = %s", item.RemainingToReceive())
	}
	if item.IsFullyReceived() {
		t.Fatalf("item with remainder must not be fully received")
	}
	item.QuantityReceived = qty(10)
	if !item.IsFullyReceived() {
		t.Fatalf("item with zero remainder must be fully received")
	}
}

func TestParseTransferStatusRoundTrip(t *testing.T) {
	for _, status := range []TransferStatus{
		TransferStatusPending, TransferStatusApproved, TransferStatusInTransit,
		TransferStatusReceived, TransferStatusPartiallyReceived,
		TransferStatusRejected, TransferStatusCancelled, TransferStatusExpired,
	} {
		parsed, err := ParseTransferStatus(string(status))
		if err != nil || parsed != status {
			t.Fatalf("ParseTransferStatus(%q) = %v, %v", status, parsed, err)
		}
	}
	if _, err := ParseTransferStatus("shipped"); err == nil {
		t.Fatalf("unknown status must not parse")
	}
}
