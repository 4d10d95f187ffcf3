package postgres

import (
	"context"
	"fmt"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tableRepository struct {
	db *gorm.DB
}

func (r *tableRepository) Create(ctx context.Context, table *core.Table) error {
	if table.Version == 0 {
		table.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(tableModelFromDomain(table)).Error; err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (r *tableRepository) GetByID(ctx context.Context, id string) (*core.Table, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *tableRepository) GetForUpdate(ctx context.Context, id string) (*core.Table, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *tableRepository) get(db *gorm.DB, id string) (*core.Table, error) {
	var m TableModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, core.ErrTableNotFound, "table "+id)
	}
	return m.ToDomain(), nil
}

func (r *tableRepository) Update(ctx context.Context, table *core.Table) error {
	m := tableModelFromDomain(table)
	m.Version = table.Version + 1

	result := r.db.WithContext(ctx).Model(&TableModel{}).
		Where("id = ? AND version = ?", table.ID, table.Version).
		Select("*").Omit("id").
		Updates(m)
	if result.Error != nil {
		return fmt.Errorf("failed to update table: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, table.ID); err != nil {
			return err
		}
		return fmt.Errorf("table %s at version %d: %w", table.ID, table.Version, core.ErrVersionConflict)
	}

	table.Version = m.Version
	return nil
}

func (r *tableRepository) ListByBranch(ctx context.Context, branchID string) ([]*core.Table, error) {
	query := r.db.WithContext(ctx).Model(&TableModel{})
	if branchID != "" {
		query = query.Where("branch_id = ?", branchID)
	}

	var models []TableModel
	if err := query.Order("number").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]*core.Table, len(models))
	for i := range models {
		tables[i] = models[i].ToDomain()
	}
	return tables, nil
}
