package config

import (
	"os"
	"strings"
)

// DebugTransferWorkflow enables verbose per-stage logging inside the transfer
// workflow engine.
//
// Set via env:
// - DEBUG_TRANSFER_WORKFLOW=true
func DebugTransferWorkflow() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG_TRANSFER_WORKFLOW")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// RequireTrackedProducts rejects transfer requests for products whose inventory
// is not tracked. Disabled only for legacy data backfills.
//
// Set via env:
// - ALLOW_UNTRACKED_TRANSFERS=true (inverts the default)
func RequireTrackedProducts() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_UNTRACKED_TRANSFERS")))
	return !(v == "1" || v == "true" || v == "yes" || v == "y")
}
