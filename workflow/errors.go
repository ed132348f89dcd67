package workflow

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorCode classifies workflow failures for callers. Every rejection is
// explicit; the engine never clamps quantities or auto-corrects.
type ErrorCode string

const (
	ErrorCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrorCodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrorCodeInsufficientStock      ErrorCode = "INSUFFICIENT_STOCK"
	ErrorCodeOverReceipt            ErrorCode = "OVER_RECEIPT"
	ErrorCodeConflict               ErrorCode = "CONFLICT"
	ErrorCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrorCodeForbiddenLocation      ErrorCode = "FORBIDDEN_LOCATION"
)

// Error is the typed result returned for every workflow rejection. Item-level
// fields are set when a specific product line caused the failure, so the UI
// can explain attempted vs available quantities.
type Error struct {
	Code       ErrorCode       `json:"code"`
	Message    string          `json:"message"`
	TransferId int             `json:"transfer_id,omitempty"`
	ItemId     int             `json:"item_id,omitempty"`
	ProductId  int             `json:"product_id,omitempty"`
	VariantId  int             `json:"variant_id,omitempty"`
	Attempted  decimal.Decimal `json:"attempted,omitempty"`
	Available  decimal.Decimal `json:"available,omitempty"`
}

func (e *Error) Error() string {
	if e.TransferId > 0 {
		return fmt.Sprintf("%s: %s (transfer %d)", e.Code, e.Message, e.TransferId)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the workflow error code, or "" for unclassified errors.
func CodeOf(err error) ErrorCode {
	var wErr *Error
	if errors.As(err, &wErr) {
		return wErr.Code
	}
	return ""
}

func errInvalidInput(format string, args ...any) *Error {
	return &Error{Code: ErrorCodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func errInvalidTransition(transferId int, status string, action Action) *Error {
	return &Error{
		Code:       ErrorCodeInvalidStateTransition,
		Message:    fmt.Sprintf("cannot %s a %s transfer", action, status),
		TransferId: transferId,
	}
}

func errNotFound(transferId int) *Error {
	return &Error{Code: ErrorCodeNotFound, Message: "transfer not found", TransferId: transferId}
}

func errConflict(transferId int) *Error {
	return &Error{
		Code:       ErrorCodeConflict,
		Message:    "transfer was modified concurrently; re-read and retry",
		TransferId: transferId,
	}
}

func errForbiddenLocation(transferId int, message string) *Error {
	return &Error{Code: ErrorCodeForbiddenLocation, Message: message, TransferId: transferId}
}

func errInsufficientStock(transferId int, itemId int, productId int, variantId int, attempted, available decimal.Decimal) *Error {
	return &Error{
		Code:       ErrorCodeInsufficientStock,
		Message:    fmt.Sprintf("source stock %s does not cover approved quantity %s", available, attempted),
		TransferId: transferId,
		ItemId:     itemId,
		ProductId:  productId,
		VariantId:  variantId,
		Attempted:  attempted,
		Available:  available,
	}
}

func errOverReceipt(transferId int, itemId int, productId int, variantId int, attempted, remaining decimal.Decimal) *Error {
	return &Error{
		Code:       ErrorCodeOverReceipt,
		Message:    fmt.Sprintf("receipt quantity %s exceeds remaining shipped quantity %s", attempted, remaining),
		TransferId: transferId,
		ItemId:     itemId,
		ProductId:  productId,
		VariantId:  variantId,
		Attempted:  attempted,
		Available:  remaining,
	}
}
