// Package lifecycle holds the pure order state graph and the order
// combination logic shared by merge preview and merge commit.
package lifecycle

import (
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
)

var forwardTransitions = map[core.OrderStatus]core.OrderStatus{
	core.OrderStatusCreated:   core.OrderStatusConfirmed,
	core.OrderStatusConfirmed: core.OrderStatusPreparing,
	core.OrderStatusPreparing: core.OrderStatusReady,
	core.OrderStatusReady:     core.OrderStatusPaid,
	core.OrderStatusPaid:      core.OrderStatusClosed,
}

// Next returns the single designated forward state for s.
func Next(s core.OrderStatus) (core.OrderStatus, bool) {
	next, ok := forwardTransitions[s]
	return next, ok
}

// IsTerminal reports whether no transition may leave s.
func IsTerminal(s core.OrderStatus) bool {
	switch s {
	case core.OrderStatusClosed, core.OrderStatusCancelled, core.OrderStatusMerged:
		return true
	}
	return false
}

// CanCancel reports whether s may move to cancelled.
func CanCancel(s core.OrderStatus) bool {
	return !IsTerminal(s) && s != core.OrderStatusPaid
}

// IsActive reports whether an order in s is still open for edits and merge.
func IsActive(s core.OrderStatus) bool {
	switch s {
	case core.OrderStatusCreated, core.OrderStatusConfirmed, core.OrderStatusPreparing, core.OrderStatusReady:
		return true
	}
	return false
}

// Validate checks from -> to against the graph without touching any order.
func Validate(orderID string, from, to core.OrderStatus) error {
	if IsTerminal(from) {
		return &core.TransitionError{OrderID: orderID, From: from, Requested: to, Err: core.ErrTerminalState}
	}

	next, _ := Next(from)
	if to == core.OrderStatusCancelled {
		if CanCancel(from) {
			return nil
		}
		return &core.TransitionError{OrderID: orderID, From: from, Requested: to, Expected: next, Err: core.ErrInvalidTransition}
	}

	if to != next {
		return &core.TransitionError{OrderID: orderID, From: from, Requested: to, Expected: next, Err: core.ErrInvalidTransition}
	}
	return nil
}

// Apply validates and performs the transition on o, recording it in the
// status history. Payment gating for paid is the caller's job.
func Apply(o *core.Order, to core.OrderStatus, at time.Time, actor string) error {
	if err := Validate(o.ID, o.Status, to); err != nil {
		return err
	}
	setStatus(o, to, at, actor)
	return nil
}

func setStatus(o *core.Order, to core.OrderStatus, at time.Time, actor string) {
	o.StatusHistory = append(o.StatusHistory, core.StatusChange{From: o.Status, To: to, At: at, Actor: actor})
	o.Status = to
	o.UpdatedAt = at

	switch to {
	case core.OrderStatusPreparing:
		setItemStatus(o, core.ItemStatusPending, core.ItemStatusPreparing)
	case core.OrderStatusReady:
		setItemStatus(o, core.ItemStatusPending, core.ItemStatusServed)
		setItemStatus(o, core.ItemStatusPreparing, core.ItemStatusServed)
	case core.OrderStatusClosed:
		o.ClosedAt = &at
	case core.OrderStatusCancelled:
		o.CancelledAt = &at
		for i := range o.Items {
			o.Items[i].Status = core.ItemStatusCancelled
		}
	}
}

func setItemStatus(o *core.Order, from, to core.ItemStatus) {
	for i := range o.Items {
		if o.Items[i].Status == from {
			o.Items[i].Status = to
		}
	}
}
