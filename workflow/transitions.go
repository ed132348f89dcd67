package workflow

import "bitbucket.org/mmdatafocus/retail_backend/models"

// Action is a workflow operation applied to a transfer.
type Action string

const (
	ActionRequest Action = "REQUEST"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionShip    Action = "SHIP"
	ActionReceive Action = "RECEIVE"
	ActionCancel  Action = "CANCEL"
	ActionExpire  Action = "EXPIRE"
)

// allowedSources is the single transition table: the statuses each action may
// be applied to. Target statuses are fixed per action, except RECEIVE, whose
// target depends on the receipt quantities (received, partially_received, or
// unchanged in_transit).
var allowedSources = map[Action][]models.TransferStatus{
	ActionApprove: {models.TransferStatusPending},
	ActionReject:  {models.TransferStatusPending},
	ActionShip:    {models.TransferStatusApproved},
	ActionReceive: {models.TransferStatusInTransit},
	ActionCancel:  {models.TransferStatusPending, models.TransferStatusApproved},
	ActionExpire:  {models.TransferStatusPending, models.TransferStatusApproved},
}

// CanApply reports whether action is valid against a transfer in status.
func CanApply(status models.TransferStatus, action Action) bool {
	for _, s := range allowedSources[action] {
		if s == status {
			return true
		}
	}
	return false
}

// reversesSourceStock reports whether leaving status must credit back the
// source location. Stock is decremented when a transfer becomes approved, so
// cancelling or expiring an approved transfer reverses it.
func reversesSourceStock(status models.TransferStatus) bool {
	return status == models.TransferStatusApproved
}
