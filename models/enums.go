package models

import "errors"

// TransferStatus is the lifecycle state of a stock transfer.
//
// pending -> approved -> in_transit -> received | partially_received
// side exits: pending -> rejected, {pending, approved} -> cancelled | expired.
type TransferStatus string

const (
	TransferStatusPending           TransferStatus = "pending"
	TransferStatusApproved          TransferStatus = "approved"
	TransferStatusInTransit         TransferStatus = "in_transit"
	TransferStatusReceived          TransferStatus = "received"
	TransferStatusPartiallyReceived TransferStatus = "partially_received"
	TransferStatusRejected          TransferStatus = "rejected"
	TransferStatusCancelled         TransferStatus = "cancelled"
	TransferStatusExpired           TransferStatus = "expired"
)

var transferStatusNames = map[string]TransferStatus{
	"pending":            TransferStatusPending,
	"approved":           TransferStatusApproved,
	"in_transit":         TransferStatusInTransit,
	"received":           TransferStatusReceived,
	"partially_received": TransferStatusPartiallyReceived,
	"rejected":           TransferStatusRejected,
	"cancelled":          TransferStatusCancelled,
	"expired":            TransferStatusExpired,
}

func ParseTransferStatus(s string) (TransferStatus, error) {
	status, ok := transferStatusNames[s]
	if !ok {
		return "", errors.New("invalid transfer status")
	}
	return status, nil
}

// IsTerminal reports whether no further transitions are accepted.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusReceived, TransferStatusPartiallyReceived,
		TransferStatusRejected, TransferStatusCancelled, TransferStatusExpired:
		return true
	}
	return false
}

// TransferPriority affects presentation and ordering only, never transitions.
type TransferPriority string

const (
	TransferPriorityNormal TransferPriority = "normal"
	TransferPriorityUrgent TransferPriority = "urgent"
)

func ParseTransferPriority(s string) (TransferPriority, error) {
	switch s {
	case "", string(TransferPriorityNormal):
		return TransferPriorityNormal, nil
	case string(TransferPriorityUrgent):
		return TransferPriorityUrgent, nil
	}
	return "", errors.New("invalid transfer priority")
}

// StockMovementReason classifies rows in the stock movement ledger.
type StockMovementReason string

const (
	StockMovementReasonOpening    StockMovementReason = "opening"
	StockMovementReasonTransfer   StockMovementReason = "transfer"
	StockMovementReasonAdjustment StockMovementReason = "adjustment"
	StockMovementReasonSale       StockMovementReason = "sale"
)

// TransferLocationRole filters transfer listings by which side of the
// transfer a location is on.
type TransferLocationRole string

const (
	TransferLocationRoleSource      TransferLocationRole = "source"
	TransferLocationRoleDestination TransferLocationRole = "destination"
)

func ParseTransferLocationRole(s string) (TransferLocationRole, error) {
	switch s {
	case string(TransferLocationRoleSource):
		return TransferLocationRoleSource, nil
	case string(TransferLocationRoleDestination):
		return TransferLocationRoleDestination, nil
	}
	return "", errors.New("invalid location role")
}
