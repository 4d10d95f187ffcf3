package postgres

import (
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
)

// OrderModel represents the orders table
type OrderModel struct {
	ID            string `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber   string `gorm:"column:order_number;type:varchar(40);not null;uniqueIndex"`
	BranchID      string `gorm:"column:branch_id;type:varchar(64);not null;index:idx_orders_branch_created,priority:1;index:idx_orders_stats,priority:1"`
	TableID       string `gorm:"column:table_id;type:varchar(64);index"`
	CustomerPhone string `gorm:"column:customer_phone;type:varchar(20)"`
	Status        string `gorm:"column:status;type:varchar(20);not null;index"`
	PaymentStatus string `gorm:"column:payment_status;type:varchar(20);not null;default:'unpaid'"`

	Items []core.OrderItem `gorm:"column:items;type:jsonb;serializer:json;not null"`

	Subtotal          decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax               decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	Discount          decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null"`
	Total             decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	CouponCode        string              `gorm:"column:coupon_code;type:varchar(40)"`
	DiscountBreakdown []core.DiscountLine `gorm:"column:discount_breakdown;type:jsonb;serializer:json"`

	PaymentMethod  string          `gorm:"column:payment_method;type:varchar(20)"`
	PaymentRef     string          `gorm:"column:payment_reference;type:varchar(255)"`
	AmountPaid     decimal.Decimal `gorm:"column:amount_paid;type:numeric(12,2);not null;default:0"`
	PaidAt         *time.Time      `gorm:"column:paid_at"`
	RefundedAmount decimal.Decimal `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`

	IsMerged         bool       `gorm:"column:is_merged;not null;default:false"`
	MergedAt         *time.Time `gorm:"column:merged_at"`
	OriginalOrderIDs []string   `gorm:"column:original_order_ids;type:jsonb;serializer:json"`
	MergeNote        string     `gorm:"column:merge_note;type:text"`
	MergedInto       string     `gorm:"column:merged_into;type:varchar(64)"`
	Note             string     `gorm:"column:note;type:text"`

	StatusHistory []core.StatusChange `gorm:"column:status_history;type:jsonb;serializer:json"`

	StatsDate           string          `gorm:"column:stats_date;type:varchar(10);index:idx_orders_stats,priority:2"`
	StatsBucket         string          `gorm:"column:stats_bucket;type:varchar(20);index:idx_orders_stats,priority:3"`
	StatsOrderCounted   bool            `gorm:"column:stats_order_counted;not null;default:false"`
	StatsItemsCounted   int             `gorm:"column:stats_items_counted;not null;default:0"`
	StatsRevenueCounted decimal.Decimal `gorm:"column:stats_revenue_counted;type:numeric(12,2);not null;default:0"`

	Version     int64      `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;index:idx_orders_branch_created,priority:2"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`
	ClosedAt    *time.Time `gorm:"column:closed_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
}

// TableName specifies the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderModelFromDomain converts a domain order to a GORM model
func OrderModelFromDomain(o *core.Order) *OrderModel {
	return &OrderModel{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		BranchID:            o.BranchID,
		TableID:             o.TableID,
		CustomerPhone:       o.CustomerPhone,
		Status:              string(o.Status),
		PaymentStatus:       string(o.PaymentStatus),
		Items:               o.Items,
		Subtotal:            o.Subtotal,
		Tax:                 o.Tax,
		Discount:            o.Discount,
		Total:               o.Total,
		CouponCode:          o.CouponCode,
		DiscountBreakdown:   o.DiscountBreakdown,
		PaymentMethod:       string(o.PaymentMethod),
		PaymentRef:          o.PaymentRef,
		AmountPaid:          o.AmountPaid,
		PaidAt:              o.PaidAt,
		RefundedAmount:      o.RefundedAmount,
		IsMerged:            o.IsMerged,
		MergedAt:            o.MergedAt,
		OriginalOrderIDs:    o.OriginalOrderIDs,
		MergeNote:           o.MergeNote,
		MergedInto:          o.MergedInto,
		Note:                o.Note,
		StatusHistory:       o.StatusHistory,
		StatsDate:           o.StatsDate,
		StatsBucket:         string(o.StatsBucket),
		StatsOrderCounted:   o.StatsOrderCounted,
		StatsItemsCounted:   o.StatsItemsCounted,
		StatsRevenueCounted: o.StatsRevenueCounted,
		Version:             o.Version,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		ClosedAt:            o.ClosedAt,
		CancelledAt:         o.CancelledAt,
	}
}

// ToDomain converts the GORM model to a domain order
func (m *OrderModel) ToDomain() *core.Order {
	return &core.Order{
		ID:                  m.ID,
		OrderNumber:         m.OrderNumber,
		BranchID:            m.BranchID,
		TableID:             m.TableID,
		CustomerPhone:       m.CustomerPhone,
		Items:               m.Items,
		Status:              core.OrderStatus(m.Status),
		PaymentStatus:       core.PaymentStatus(m.PaymentStatus),
		Subtotal:            m.Subtotal,
		Tax:                 m.Tax,
		Discount:            m.Discount,
		Total:               m.Total,
		CouponCode:          m.CouponCode,
		DiscountBreakdown:   m.DiscountBreakdown,
		PaymentMethod:       core.PaymentMethod(m.PaymentMethod),
		PaymentRef:          m.PaymentRef,
		AmountPaid:          m.AmountPaid,
		PaidAt:              m.PaidAt,
		RefundedAmount:      m.RefundedAmount,
		IsMerged:            m.IsMerged,
		MergedAt:            m.MergedAt,
		OriginalOrderIDs:    m.OriginalOrderIDs,
		MergeNote:           m.MergeNote,
		MergedInto:          m.MergedInto,
		Note:                m.Note,
		StatusHistory:       m.StatusHistory,
		StatsDate:           m.StatsDate,
		StatsBucket:         core.StatsBucket(m.StatsBucket),
		StatsOrderCounted:   m.StatsOrderCounted,
		StatsItemsCounted:   m.StatsItemsCounted,
		StatsRevenueCounted: m.StatsRevenueCounted,
		Version:             m.Version,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		ClosedAt:            m.ClosedAt,
		CancelledAt:         m.CancelledAt,
	}
}

// TableModel represents the dining_tables table
type TableModel struct {
	ID            string    `gorm:"column:id;type:varchar(64);primaryKey"`
	BranchID      string    `gorm:"column:branch_id;type:varchar(64);not null;index"`
	Number        string    `gorm:"column:number;type:varchar(20);not null"`
	Capacity      int       `gorm:"column:capacity;not null;default:0"`
	Status        string    `gorm:"column:status;type:varchar(20);not null;default:'available'"`
	CurrentOrders []string  `gorm:"column:current_orders;type:jsonb;serializer:json"`
	Version       int64     `gorm:"column:version;not null;default:1"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for GORM
func (TableModel) TableName() string {
	return "dining_tables"
}

func tableModelFromDomain(t *core.Table) *TableModel {
	return &TableModel{
		ID:            t.ID,
		BranchID:      t.BranchID,
		Number:        t.Number,
		Capacity:      t.Capacity,
		Status:        string(t.Status),
		CurrentOrders: t.CurrentOrders,
		Version:       t.Version,
		UpdatedAt:     t.UpdatedAt,
	}
}

// ToDomain converts the GORM model to a domain table
func (m *TableModel) ToDomain() *core.Table {
	orders := m.CurrentOrders
	if orders == nil {
		orders = []string{}
	}
	return &core.Table{
		ID:            m.ID,
		BranchID:      m.BranchID,
		Number:        m.Number,
		Capacity:      m.Capacity,
		Status:        core.TableStatus(m.Status),
		CurrentOrders: orders,
		Version:       m.Version,
		UpdatedAt:     m.UpdatedAt,
	}
}

// StatsModel represents one stats_cache row
type StatsModel struct {
	BranchID          string          `gorm:"column:branch_id;type:varchar(64);primaryKey"`
	Date              string          `gorm:"column:date;type:varchar(10);primaryKey"`
	Bucket            string          `gorm:"column:bucket;type:varchar(20);primaryKey"`
	TotalRevenue      decimal.Decimal `gorm:"column:total_revenue;type:numeric(14,2);not null;default:0"`
	TotalOrders       int64           `gorm:"column:total_orders;not null;default:0"`
	ItemsSold         int64           `gorm:"column:items_sold;not null;default:0"`
	AverageOrderValue decimal.Decimal `gorm:"column:average_order_value;type:numeric(12,2);not null;default:0"`
	DeltaRevenue      decimal.Decimal `gorm:"column:delta_revenue;type:numeric(14,2);not null;default:0"`
	DeltaOrders       int64           `gorm:"column:delta_orders;not null;default:0"`
	DeltaItems        int64           `gorm:"column:delta_items;not null;default:0"`
	DeltaApplications int64           `gorm:"column:delta_applications;not null;default:0"`
	SeededAt          time.Time       `gorm:"column:seeded_at;not null"`
	LastUpdated       time.Time       `gorm:"column:last_updated;not null"`
}

// TableName specifies the table name for GORM
func (StatsModel) TableName() string {
	return "stats_cache"
}

func statsModelFromDomain(c *core.StatsCache) *StatsModel {
	return &StatsModel{
		BranchID:          c.Key.BranchID,
		Date:              c.Key.Date,
		Bucket:            string(c.Key.Bucket),
		TotalRevenue:      c.Aggregates.TotalRevenue,
		TotalOrders:       c.Aggregates.TotalOrders,
		ItemsSold:         c.Aggregates.ItemsSold,
		AverageOrderValue: c.Aggregates.AverageOrderValue,
		DeltaRevenue:      c.Delta.Revenue,
		DeltaOrders:       c.Delta.Orders,
		DeltaItems:        c.Delta.Items,
		DeltaApplications: c.Delta.Applications,
		SeededAt:          c.SeededAt,
		LastUpdated:       c.LastUpdated,
	}
}

// ToDomain converts the GORM model to a stats cache row
func (m *StatsModel) ToDomain() *core.StatsCache {
	return &core.StatsCache{
		Key: core.StatsKey{BranchID: m.BranchID, Date: m.Date, Bucket: core.StatsBucket(m.Bucket)},
		Aggregates: core.StatsAggregates{
			TotalRevenue:      m.TotalRevenue,
			TotalOrders:       m.TotalOrders,
			ItemsSold:         m.ItemsSold,
			AverageOrderValue: m.AverageOrderValue,
		},
		Delta: core.StatsDeltaCounters{
			Revenue:      m.DeltaRevenue,
			Orders:       m.DeltaOrders,
			Items:        m.DeltaItems,
			Applications: m.DeltaApplications,
		},
		SeededAt:    m.SeededAt,
		LastUpdated: m.LastUpdated,
	}
}

// CatalogItemModel represents the catalog_items table
type CatalogItemModel struct {
	ID          string          `gorm:"column:id;type:varchar(64);primaryKey"`
	BranchID    string          `gorm:"column:branch_id;type:varchar(64);index"`
	Name        string          `gorm:"column:name;type:varchar(255);not null"`
	Category    string          `gorm:"column:category;type:varchar(100);not null;index"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	IsAvailable bool            `gorm:"column:is_available;not null;default:true"`
}

// TableName specifies the table name for GORM
func (CatalogItemModel) TableName() string {
	return "catalog_items"
}

// ToDomain converts the GORM model to a catalog item
func (m *CatalogItemModel) ToDomain() *core.CatalogItem {
	return &core.CatalogItem{
		ID:          m.ID,
		BranchID:    m.BranchID,
		Name:        m.Name,
		Category:    m.Category,
		Price:       m.Price,
		IsAvailable: m.IsAvailable,
	}
}

// CouponModel represents the coupons table
type CouponModel struct {
	Code           string          `gorm:"column:code;type:varchar(40);primaryKey"`
	BranchID       string          `gorm:"column:branch_id;type:varchar(64)"`
	Type           string          `gorm:"column:type;type:varchar(30);not null"`
	Value          decimal.Decimal `gorm:"column:value;type:numeric(10,2);not null;default:0"`
	MinOrderAmount decimal.Decimal `gorm:"column:min_order_amount;type:numeric(10,2);not null;default:0"`
	MaxDiscount    decimal.Decimal `gorm:"column:max_discount;type:numeric(10,2);not null;default:0"`
	BuyQuantity    int             `gorm:"column:buy_quantity;not null;default:0"`
	GetQuantity    int             `gorm:"column:get_quantity;not null;default:0"`
	MinQuantity    int             `gorm:"column:min_quantity;not null;default:0"`
	Category       string          `gorm:"column:category;type:varchar(100)"`
	CatalogItemID  string          `gorm:"column:catalog_item_id;type:varchar(64)"`
	ValidFrom      *time.Time      `gorm:"column:valid_from"`
	ValidUntil     *time.Time      `gorm:"column:valid_until"`
	UsageLimit     int             `gorm:"column:usage_limit;not null;default:0"`
	UsedCount      int             `gorm:"column:used_count;not null;default:0"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true"`
}

// TableName specifies the table name for GORM
func (CouponModel) TableName() string {
	return "coupons"
}

func couponModelFromDomain(c *core.Coupon) *CouponModel {
	return &CouponModel{
		Code:           c.Code,
		BranchID:       c.BranchID,
		Type:           string(c.Type),
		Value:          c.Value,
		MinOrderAmount: c.MinOrderAmount,
		MaxDiscount:    c.MaxDiscount,
		BuyQuantity:    c.BuyQuantity,
		GetQuantity:    c.GetQuantity,
		MinQuantity:    c.MinQuantity,
		Category:       c.Category,
		CatalogItemID:  c.CatalogItemID,
		ValidFrom:      c.ValidFrom,
		ValidUntil:     c.ValidUntil,
		UsageLimit:     c.UsageLimit,
		UsedCount:      c.UsedCount,
		IsActive:       c.IsActive,
	}
}

// ToDomain converts the GORM model to a coupon
func (m *CouponModel) ToDomain() *core.Coupon {
	return &core.Coupon{
		Code:           m.Code,
		BranchID:       m.BranchID,
		Type:           core.CouponType(m.Type),
		Value:          m.Value,
		MinOrderAmount: m.MinOrderAmount,
		MaxDiscount:    m.MaxDiscount,
		BuyQuantity:    m.BuyQuantity,
		GetQuantity:    m.GetQuantity,
		MinQuantity:    m.MinQuantity,
		Category:       m.Category,
		CatalogItemID:  m.CatalogItemID,
		ValidFrom:      m.ValidFrom,
		ValidUntil:     m.ValidUntil,
		UsageLimit:     m.UsageLimit,
		UsedCount:      m.UsedCount,
		IsActive:       m.IsActive,
	}
}

// StaffUserModel represents the staff_users table
type StaffUserModel struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey"`
	BranchID    string    `gorm:"column:branch_id;type:varchar(64);not null;index"`
	Name        string    `gorm:"column:name;type:varchar(255);not null"`
	PhoneNumber string    `gorm:"column:phone_number;type:varchar(20)"`
	Role        string    `gorm:"column:role;type:varchar(20);not null"`
	PinHash     string    `gorm:"column:pin_hash;type:varchar(255);not null"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName specifies the table name for GORM
func (StaffUserModel) TableName() string {
	return "staff_users"
}

// ToDomain converts the GORM model to a staff user
func (m *StaffUserModel) ToDomain() *core.StaffUser {
	return &core.StaffUser{
		ID:          m.ID,
		BranchID:    m.BranchID,
		Name:        m.Name,
		PhoneNumber: m.PhoneNumber,
		Role:        m.Role,
		PinHash:     m.PinHash,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
	}
}
