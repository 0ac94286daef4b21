package allocation

import "github.com/agrilink/fulfillment/core/model"

// transitions lists the permitted request status moves. Moves out of
// allocated and dispatched are driven by dispatch-status propagation in the
// reporting layer; they are listed here so the guard table is complete.
var transitions = map[model.RequestStatus][]model.RequestStatus{
	model.RequestPending:    {model.RequestReviewing, model.RequestAllocated, model.RequestCancelled},
	model.RequestReviewing:  {model.RequestAllocated, model.RequestCancelled},
	model.RequestAllocated:  {model.RequestDispatched, model.RequestCompleted},
	model.RequestDispatched: {model.RequestCompleted},
}

// CanTransition reports whether a request may move from one status to
// another. Terminal states admit no transitions.
func CanTransition(from, to model.RequestStatus) bool {
	if from.IsTerminal() {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Approvable reports whether a fulfillment transaction may run against a
// request in the given state.
func Approvable(s model.RequestStatus) bool {
	return s == model.RequestPending || s == model.RequestReviewing
}

// Rejectable reports whether a request in the given state may still be
// cancelled. Once inventory has been committed the request must complete or
// be unwound through dispatch updates, not cancelled.
func Rejectable(s model.RequestStatus) bool {
	return s == model.RequestPending || s == model.RequestReviewing
}
