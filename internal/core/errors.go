package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrTerminalState        = errors.New("order is in a terminal state")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrInsufficientOrders   = errors.New("merge needs at least two distinct orders")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCannotMergePaidOrder = errors.New("cannot merge a paid order")
	ErrInvalidOrderState    = errors.New("order is not in an active state")
	ErrItemUnavailable      = errors.New("item unavailable")
	ErrInvalidCoupon        = errors.New("invalid coupon")

	ErrVersionConflict  = errors.New("record was modified concurrently")
	ErrTableNotFound    = errors.New("table not found")
	ErrTableUnavailable = errors.New("table unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

// TransitionError carries the state context of a rejected transition.
// Err is ErrInvalidTransition or ErrTerminalState.
type TransitionError struct {
	OrderID   string
	From      OrderStatus
	Requested OrderStatus
	Expected  OrderStatus
	Err       error
}

func (e *TransitionError) Error() string {
	if errors.Is(e.Err, ErrTerminalState) {
		return fmt.Sprintf("order %s: %s -> %s: %v", e.OrderID, e.From, e.Requested, e.Err)
	}
	if e.Expected != "" {
		return fmt.Sprintf("order %s: %s -> %s: %v (expected next state %s)", e.OrderID, e.From, e.Requested, e.Err, e.Expected)
	}
	return fmt.Sprintf("order %s: %s -> %s: %v", e.OrderID, e.From, e.Requested, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// PaymentError reports an amount short of the order total
type PaymentError struct {
	OrderID    string
	Total      decimal.Decimal
	AmountPaid decimal.Decimal
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("order %s: paid %s, total is %s: %v", e.OrderID, e.AmountPaid.StringFixed(2), e.Total.StringFixed(2), ErrInsufficientPayment)
}

func (e *PaymentError) Unwrap() error { return ErrInsufficientPayment }

// MergeError names the order that failed a merge precondition
type MergeError struct {
	OrderID       string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Err           error
}

func (e *MergeError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("merge: order %s: %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("merge: order %s (status %s, payment %s): %v", e.OrderID, e.Status, e.PaymentStatus, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// ItemError names the catalog item that could not be priced
type ItemError struct {
	CatalogItemID string
	Reason        string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("catalog item %s: %s: %v", e.CatalogItemID, e.Reason, ErrItemUnavailable)
}

func (e *ItemError) Unwrap() error { return ErrItemUnavailable }

// CouponError explains why a coupon was rejected
type CouponError struct {
	Code   string
	Reason string
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %q: %s: %v", e.Code, e.Reason, ErrInvalidCoupon)
}

func (e *CouponError) Unwrap() error { return ErrInvalidCoupon }
