package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderFilter narrows ListOrders
type OrderFilter struct {
	BranchID string
	TableID  string
	Status   OrderStatus
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate reads the order and, inside a transaction, locks it
	// until commit.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Update writes the order only if its stored version still equals
	// order.Version, then bumps order.Version. A mismatch returns
	// ErrVersionConflict.
	Update(ctx context.Context, order *Order) error
	List(ctx context.Context, filter OrderFilter) ([]*Order, error)
}

// TableRepository defines the interface for table data access
type TableRepository interface {
	Create(ctx context.Context, table *Table) error
	GetByID(ctx context.Context, id string) (*Table, error)
	GetForUpdate(ctx context.Context, id string) (*Table, error)
	Update(ctx context.Context, table *Table) error
	ListByBranch(ctx context.Context, branchID string) ([]*Table, error)
}

// StatsRepository persists the stats delta cache
type StatsRepository interface {
	// ApplyDelta atomically adds d to the row for key, creating it from
	// Aggregate first when missing.
	ApplyDelta(ctx context.Context, key StatsKey, d StatsDelta, now time.Time) (*StatsCache, error)
	Get(ctx context.Context, key StatsKey) (*StatsCache, error)
	// Aggregate recomputes the bucket from the per-order stats ledger.
	Aggregate(ctx context.Context, key StatsKey) (StatsAggregates, error)
	// Replace overwrites the aggregates of an existing or new row.
	Replace(ctx context.Context, row *StatsCache) error
	ListByDate(ctx context.Context, date string) ([]*StatsCache, error)
	ListRange(ctx context.Context, branchID string, bucket StatsBucket, fromDate, toDate string) ([]*StatsCache, error)
}

// Repositories groups the stores that take part in one unit of work
type Repositories interface {
	Orders() OrderRepository
	Tables() TableRepository
	Stats() StatsRepository
}

// Store is the transactional entry point to persistence
type Store interface {
	Repositories
	// WithTx runs fn atomically. When fn returns an error nothing it wrote
	// is visible to anyone.
	WithTx(ctx context.Context, fn func(repos Repositories) error) error
}

// CatalogRepository looks up menu items
type CatalogRepository interface {
	GetItem(ctx context.Context, id string) (*CatalogItem, error)
	ListByBranch(ctx context.Context, branchID string) ([]*CatalogItem, error)
}

// CouponRepository looks up coupon definitions
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	ListActive(ctx context.Context, branchID string) ([]*Coupon, error)
}

// StaffRepository looks up dashboard users
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*StaffUser, error)
	GetActiveByBranch(ctx context.Context, branchID string) ([]*StaffUser, error)
}

// OrderContext is what the coupon resolver sees of an order
type OrderContext struct {
	BranchID string
	Items    []OrderItem
	Subtotal decimal.Decimal
	At       time.Time
}

// DiscountResult is a resolved coupon
type DiscountResult struct {
	Code      string
	Amount    decimal.Decimal
	Breakdown []DiscountLine
}

// CouponResolver turns a coupon code into a discount for an order
type CouponResolver interface {
	Resolve(ctx context.Context, code string, oc OrderContext) (DiscountResult, error)
}

// EventSink receives lifecycle events. Publish must not block on delivery.
type EventSink interface {
	Publish(name string, payload any)
}

// PaymentVerifier authenticates and decodes payment provider callbacks
type PaymentVerifier interface {
	VerifyWebhook(ctx context.Context, signature string, payload []byte) bool
	ProcessWebhook(ctx context.Context, payload []byte) (*PaymentConfirmation, error)
}

// Notifier sends a plain text message to a customer
type Notifier interface {
	SendText(ctx context.Context, phone string, message string) error
}
