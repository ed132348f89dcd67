package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/retail_backend/models"
)

// NOTE: These tests are intentionally DB-free. They pin down the transition
// table and the error taxonomy; the full lifecycle against MySQL lives in
// transfer_workflow_regression_test.go.

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		status  models.TransferStatus
		action  Action
		allowed bool
	}{
		{models.TransferStatusPending, ActionApprove, true},
		{models.TransferStatusPending, ActionReject, true},
		{models.TransferStatusPending, ActionCancel, true},
		{models.TransferStatusPending, ActionExpire, true},
		{models.TransferStatusPending, ActionShip, false},
		{models.TransferStatusPending, ActionReceive, false},

		{models.TransferStatusApproved, ActionShip, true},
		{models.TransferStatusApproved, ActionCancel, true},
		{models.TransferStatusApproved, ActionExpire, true},
		{models.TransferStatusApproved, ActionApprove, false},
		{models.TransferStatusApproved, ActionReject, false},
		{models.TransferStatusApproved, ActionReceive, false},

		{models.TransferStatusInTransit, ActionReceive, true},
		{models.TransferStatusInTransit, ActionCancel, false},
		{models.TransferStatusInTransit, ActionExpire, false},
		{models.TransferStatusInTransit, ActionShip, false},

		{models.TransferStatusReceived, ActionReceive, false},
		{models.TransferStatusPartiallyReceived, ActionReceive, false},
		{models.TransferStatusRejected, ActionApprove, false},
		{models.TransferStatusCancelled, ActionShip, false},
		{models.TransferStatusExpired, ActionApprove, false},
	}
	for _, tc := range cases {
		if got := CanApply(tc.status, tc.action); got != tc.allowed {
			t.Errorf("CanApply(%s, %s) = %v, want %v", tc.status, tc.action, got, tc.allowed)
		}
	}
}

func TestTerminalStatusesAcceptNothing(t *testing.T) {
	terminals := []models.TransferStatus{
		models.TransferStatusReceived,
		models.TransferStatusPartiallyReceived,
		models.TransferStatusRejected,
		models.TransferStatusCancelled,
		models.TransferStatusExpired,
	}
	actions := []Action{ActionApprove, ActionReject, ActionShip, ActionReceive, ActionCancel, ActionExpire}
	for _, status := range terminals {
		if !status.IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
		for _, action := range actions {
			if CanApply(status, action) {
				t.Errorf("terminal %s must not accept %s", status, action)
			}
		}
	}
}

func TestOnlyApprovedReversesSourceStock(t *testing.T) {
	for _, status := range []models.TransferStatus{
		models.TransferStatusPending, models.TransferStatusInTransit,
		models.TransferStatusReceived, models.TransferStatusCancelled,
	} {
		if reversesSourceStock(status) {
			t.Errorf("leaving %s must not credit back the source", status)
		}
	}
	if !reversesSourceStock(models.TransferStatusApproved) {
		t.Errorf("leaving approved must credit back the source")
	}
}
