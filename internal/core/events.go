package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event names emitted by the order engine
const (
	EventOrderCreated       = "order_created"
	EventOrderUpdated       = "order_updated"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderPaid          = "order_paid"
	EventOrderCancelled     = "order_cancelled"
	EventOrderRefunded      = "order_refunded"
	EventOrderClosed        = "order_closed"
	EventOrderMerged        = "order_merged"
	EventStatsUpdated       = "stats_updated"
)

// OrderEvent is the payload of every order_* event. Fields irrelevant to
// a given event are left empty.
type OrderEvent struct {
	OrderID          string           `json:"orderId"`
	OrderNumber      string           `json:"orderNumber,omitempty"`
	BranchID         string           `json:"branchId,omitempty"`
	TableID          string           `json:"tableId,omitempty"`
	CustomerPhone    string           `json:"-"`
	PreviousStatus   OrderStatus      `json:"previousStatus,omitempty"`
	NewStatus        OrderStatus      `json:"newStatus,omitempty"`
	PaymentMethod    PaymentMethod    `json:"paymentMethod,omitempty"`
	Total            *decimal.Decimal `json:"total,omitempty"`
	ItemCount        int              `json:"itemCount,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	MergedOrderIDs   []string         `json:"mergedOrderIds,omitempty"`
	ResultingOrderID string           `json:"resultingOrderId,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// StatsEvent tells dashboards a bucket changed
type StatsEvent struct {
	Key        StatsKey        `json:"key"`
	Aggregates StatsAggregates `json:"aggregates"`
	Timestamp  time.Time       `json:"timestamp"`
}
