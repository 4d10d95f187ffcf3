package core

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the state of an order
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusMerged    OrderStatus = "merged"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusPaid,
	OrderStatusClosed,
	OrderStatusCancelled,
	OrderStatusMerged,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return slices.Contains(AllOrderStatuses, s)
}

// PaymentStatus is tracked independently of OrderStatus
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ItemStatus is the kitchen state of a single order line
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusPreparing ItemStatus = "preparing"
	ItemStatusServed    ItemStatus = "served"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// PaymentMethod represents the payment method used
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "CASH"
	PaymentMethodCard  PaymentMethod = "CARD"
	PaymentMethodUPI   PaymentMethod = "UPI"
	PaymentMethodMpesa PaymentMethod = "MPESA"
)

// CatalogItem is a sellable menu entry as seen by the order engine
type CatalogItem struct {
	ID          string          `json:"id"`
	BranchID    string          `json:"branch_id,omitempty"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
}

// OrderItem represents a single line in an order. UnitPrice is snapshotted
// when the line is added and never re-read from the catalog.
type OrderItem struct {
	ID            string          `json:"id"`
	CatalogItemID string          `json:"catalog_item_id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Instructions  string          `json:"instructions,omitempty"`
	Status        ItemStatus      `json:"status"`
}

// LineTotal is UnitPrice × Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DiscountLine explains one component of a resolved discount
type DiscountLine struct {
	Rule        string          `json:"rule"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// StatusChange is an entry in the order's transition log
type StatusChange struct {
	From  OrderStatus `json:"from"`
	To    OrderStatus `json:"to"`
	At    time.Time   `json:"at"`
	Actor string      `json:"actor,omitempty"`
}

// Order represents a customer order
type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	BranchID      string        `json:"branch_id"`
	TableID       string        `json:"table_id,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	Items         []OrderItem   `json:"items"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	Discount          decimal.Decimal `json:"discount"`
	Total             decimal.Decimal `json:"total"`
	CouponCode        string          `json:"coupon_code,omitempty"`
	DiscountBreakdown []DiscountLine  `json:"discount_breakdown,omitempty"`

	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty"`
	PaymentRef     string          `json:"payment_reference,omitempty"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`

	IsMerged         bool       `json:"is_merged"`
	MergedAt         *time.Time `json:"merged_at,omitempty"`
	OriginalOrderIDs []string   `json:"original_order_ids,omitempty"`
	MergeNote        string     `json:"merge_note,omitempty"`
	MergedInto       string     `json:"merged_into,omitempty"`
	Note             string     `json:"note,omitempty"`

	StatusHistory []StatusChange `json:"status_history,omitempty"`

	// Stats ledger: what this order currently contributes to its stats
	// bucket. Updated in the same transaction as the bucket itself.
	StatsDate           string          `json:"-"`
	StatsBucket         StatsBucket     `json:"-"`
	StatsOrderCounted   bool            `json:"-"`
	StatsItemsCounted   int             `json:"-"`
	StatsRevenueCounted decimal.Decimal `json:"-"`

	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// ItemCount sums quantities over all non-cancelled lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		if it.Status == ItemStatusCancelled {
			continue
		}
		n += it.Quantity
	}
	return n
}

// Clone returns a deep copy safe to mutate independently.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	cp.DiscountBreakdown = slices.Clone(o.DiscountBreakdown)
	cp.OriginalOrderIDs = slices.Clone(o.OriginalOrderIDs)
	cp.StatusHistory = slices.Clone(o.StatusHistory)
	cp.PaidAt = cloneTime(o.PaidAt)
	cp.MergedAt = cloneTime(o.MergedAt)
	cp.ClosedAt = cloneTime(o.ClosedAt)
	cp.CancelledAt = cloneTime(o.CancelledAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TableStatus represents the floor state of a table
type TableStatus string

const (
	TableStatusAvailable   TableStatus = "available"
	TableStatusOccupied    TableStatus = "occupied"
	TableStatusReserved    TableStatus = "reserved"
	TableStatusMaintenance TableStatus = "maintenance"
)

// Table owns the set of orders currently open on it
type Table struct {
	ID            string      `json:"id"`
	BranchID      string      `json:"branch_id"`
	Number        string      `json:"number"`
	Capacity      int         `json:"capacity"`
	Status        TableStatus `json:"status"`
	CurrentOrders []string    `json:"current_orders"`
	Version       int64       `json:"version"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// AttachOrder adds orderID to the open set and marks the table occupied.
func (t *Table) AttachOrder(orderID string) {
	if !slices.Contains(t.CurrentOrders, orderID) {
		t.CurrentOrders = append(t.CurrentOrders, orderID)
	}
	t.Status = TableStatusOccupied
}

// ReleaseOrder removes orderID from the open set. It reports whether the
// order was present; an emptied table reverts to available.
func (t *Table) ReleaseOrder(orderID string) bool {
	idx := slices.Index(t.CurrentOrders, orderID)
	if idx < 0 {
		return false
	}
	t.CurrentOrders = slices.Delete(t.CurrentOrders, idx, idx+1)
	if len(t.CurrentOrders) == 0 {
		t.Status = TableStatusAvailable
	}
	return true
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cp := *t
	cp.CurrentOrders = slices.Clone(t.CurrentOrders)
	return &cp
}

// StatsBucket is a time-of-day partition of a calendar date
type StatsBucket string

const (
	BucketAllDay    StatsBucket = "all_day"
	BucketMorning   StatsBucket = "morning"
	BucketAfternoon StatsBucket = "afternoon"
	BucketEvening   StatsBucket = "evening"
	BucketNight     StatsBucket = "night"
)

// StatsKey identifies one stats cache row
type StatsKey struct {
	BranchID string      `json:"branch_id"`
	Date     string      `json:"date"`
	Bucket   StatsBucket `json:"bucket"`
}

// StatsAggregates is the running total for a bucket
type StatsAggregates struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalOrders       int64           `json:"total_orders"`
	ItemsSold         int64           `json:"items_sold"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

// StatsDelta is an incremental change to a bucket
type StatsDelta struct {
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int64           `json:"orders"`
	Items   int64           `json:"items"`
}

// IsZero reports whether applying d would change nothing.
func (d StatsDelta) IsZero() bool {
	return d.Revenue.IsZero() && d.Orders == 0 && d.Items == 0
}

// Add returns the component-wise sum.
func (d StatsDelta) Add(other StatsDelta) StatsDelta {
	return StatsDelta{
		Revenue: d.Revenue.Add(other.Revenue),
		Orders:  d.Orders + other.Orders,
		Items:   d.Items + other.Items,
	}
}

// Neg returns the reversing delta.
func (d StatsDelta) Neg() StatsDelta {
	return StatsDelta{Revenue: d.Revenue.Neg(), Orders: -d.Orders, Items: -d.Items}
}

// StatsDeltaCounters records deltas applied since the row was seeded.
// Observability only.
type StatsDeltaCounters struct {
	Revenue      decimal.Decimal `json:"revenue"`
	Orders       int64           `json:"orders"`
	Items        int64           `json:"items"`
	Applications int64           `json:"applications"`
}

// StatsCache is one aggregate row per (branch, date, bucket)
type StatsCache struct {
	Key         StatsKey           `json:"key"`
	Aggregates  StatsAggregates    `json:"aggregates"`
	Delta       StatsDeltaCounters `json:"delta"`
	SeededAt    time.Time          `json:"seeded_at"`
	LastUpdated time.Time          `json:"last_updated"`
}

// Apply adds d to the aggregates and delta counters and recomputes the
// average order value.
func (c *StatsCache) Apply(d StatsDelta, now time.Time) {
	c.Aggregates.TotalRevenue = c.Aggregates.TotalRevenue.Add(d.Revenue)
	c.Aggregates.TotalOrders += d.Orders
	c.Aggregates.ItemsSold += d.Items
	c.Aggregates.AverageOrderValue = AverageOrderValue(c.Aggregates.TotalRevenue, c.Aggregates.TotalOrders)
	c.Delta.Revenue = c.Delta.Revenue.Add(d.Revenue)
	c.Delta.Orders += d.Orders
	c.Delta.Items += d.Items
	c.Delta.Applications++
	c.LastUpdated = now
}

// AverageOrderValue divides revenue by orders, returning zero when there
// are no orders.
func AverageOrderValue(revenue decimal.Decimal, orders int64) decimal.Decimal {
	if orders <= 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(orders)).Round(2)
}

// CouponType selects the discount rule family
type CouponType string

const (
	CouponTypeFlat               CouponType = "flat"
	CouponTypePercentage         CouponType = "percentage"
	CouponTypeBuyXGetY           CouponType = "buy_x_get_y"
	CouponTypeQuantityFlat       CouponType = "quantity_flat"
	CouponTypeCategoryPercentage CouponType = "category_percentage"
)

// Coupon is a discount definition. The order engine never mutates it.
type Coupon struct {
	Code           string          `json:"code"`
	BranchID       string          `json:"branch_id,omitempty"`
	Type           CouponType      `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MaxDiscount    decimal.Decimal `json:"max_discount"`
	BuyQuantity    int             `json:"buy_quantity,omitempty"`
	GetQuantity    int             `json:"get_quantity,omitempty"`
	MinQuantity    int             `json:"min_quantity,omitempty"`
	Category       string          `json:"category,omitempty"`
	CatalogItemID  string          `json:"catalog_item_id,omitempty"`
	ValidFrom      *time.Time      `json:"valid_from,omitempty"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty"`
	UsageLimit     int             `json:"usage_limit,omitempty"`
	UsedCount      int             `json:"used_count"`
	IsActive       bool            `json:"is_active"`
}

// StaffRole constants
const (
	StaffRoleManager = "MANAGER"
	StaffRoleCashier = "CASHIER"
	StaffRoleWaiter  = "WAITER"
)

// StaffUser represents a branch employee allowed to use the dashboard
type StaffUser struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Role        string    `json:"role"`
	PinHash     string    `json:"-"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentConfirmation is what the payment collaborator hands to the engine
type PaymentConfirmation struct {
	OrderID   string
	Method    PaymentMethod
	Amount    decimal.Decimal
	Reference string
	Success   bool
}

// Analytics is the dashboard overview for one branch and date
type Analytics struct {
	BranchID   string                          `json:"branch_id"`
	Date       string                          `json:"date"`
	Today      StatsAggregates                 `json:"today"`
	ByBucket   map[StatsBucket]StatsAggregates `json:"by_bucket"`
	ComputedAt time.Time                       `json:"computed_at"`
}

// RevenueTrend represents one day in a revenue series
type RevenueTrend struct {
	Date       string          `json:"date"`
	Revenue    decimal.Decimal `json:"revenue"`
	OrderCount int64           `json:"order_count"`
}

// SalesReport is the input to the PDF exporter
type SalesReport struct {
	Title       string
	BranchID    string
	Date        string
	Timezone    string
	GeneratedAt time.Time
	Summary     StatsAggregates
	Buckets     []*StatsCache
	Orders      []*Order
}
