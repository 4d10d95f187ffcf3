package postgres

import (
	"context"
	"fmt"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepository struct {
	db *gorm.DB
}

// Create inserts a new order
func (r *orderRepository) Create(ctx context.Context, order *core.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(OrderModelFromDomain(order)).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID
func (r *orderRepository) GetByID(ctx context.Context, id string) (*core.Order, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetForUpdate retrieves an order and locks its row until the surrounding
// transaction ends
func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (*core.Order, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *orderRepository) get(db *gorm.DB, id string) (*core.Order, error) {
	var m OrderModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, core.ErrOrderNotFound, "order "+id)
	}
	return m.ToDomain(), nil
}

// Update writes the order if the stored version still matches
func (r *orderRepository) Update(ctx context.Context, order *core.Order) error {
	m := OrderModelFromDomain(order)
	m.Version = order.Version + 1

	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", core.ErrOrderNotFound, order.ID)
		}
		return fmt.Errorf("order %s at version %d: %w", order.ID, order.Version, core.ErrVersionConflict)
	}

	order.Version = m.Version
	return nil
}

// List retrieves orders matching the filter, newest first
func (r *orderRepository) List(ctx context.Context, f core.OrderFilter) ([]*core.Order, error) {
	query := r.db.WithContext(ctx).Model(&OrderModel{})
	if f.BranchID != "" {
		query = query.Where("branch_id = ?", f.BranchID)
	}
	if f.TableID != "" {
		query = query.Where("table_id = ?", f.TableID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at < ?", *f.Until)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var models []OrderModel
	if err := query.Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*core.Order, len(models))
	for i := range models {
		orders[i] = models[i].ToDomain()
	}
	return orders, nil
}
