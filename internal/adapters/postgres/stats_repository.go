package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type statsRepository struct {
	db *gorm.DB
}

func keyWhere(db *gorm.DB, key core.StatsKey) *gorm.DB {
	return db.Where("branch_id = ? AND date = ? AND bucket = ?", key.BranchID, key.Date, string(key.Bucket))
}

// ApplyDelta seeds a missing row from the order ledger, then adds d with a
// single UPDATE so concurrent writers never lose an increment.
func (r *statsRepository) ApplyDelta(ctx context.Context, key core.StatsKey, d core.StatsDelta, now time.Time) (*core.StatsCache, error) {
	db := r.db.WithContext(ctx)

	var exists int64
	if err := keyWhere(db.Model(&StatsModel{}), key).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("failed to check stats row: %w", err)
	}
	if exists == 0 {
		agg, err := r.Aggregate(ctx, key)
		if err != nil {
			return nil, err
		}
		seed := statsModelFromDomain(&core.StatsCache{Key: key, Aggregates: agg, SeededAt: now, LastUpdated: now})
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return nil, fmt.Errorf("failed to seed stats row: %w", err)
		}
	}

	var row StatsModel
	result := keyWhere(db.Model(&row).Clauses(clause.Returning{}), key).Updates(map[string]any{
		"total_revenue": gorm.Expr("total_revenue + ?", d.Revenue),
		"total_orders":  gorm.Expr("total_orders + ?", d.Orders),
		"items_sold":    gorm.Expr("items_sold + ?", d.Items),
		"average_order_value": gorm.Expr(
			"CASE WHEN total_orders + ? > 0 THEN ROUND((total_revenue + ?) / (total_orders + ?), 2) ELSE 0 END",
			d.Orders, d.Revenue, d.Orders),
		"delta_revenue":      gorm.Expr("delta_revenue + ?", d.Revenue),
		"delta_orders":       gorm.Expr("delta_orders + ?", d.Orders),
		"delta_items":        gorm.Expr("delta_items + ?", d.Items),
		"delta_applications": gorm.Expr("delta_applications + 1"),
		"last_updated":       now,
	})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to apply stats delta: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("stats %s/%s/%s vanished: %w", key.BranchID, key.Date, key.Bucket, core.ErrVersionConflict)
	}
	return row.ToDomain(), nil
}

func (r *statsRepository) Get(ctx context.Context, key core.StatsKey) (*core.StatsCache, error) {
	var m StatsModel
	if err := keyWhere(r.db.WithContext(ctx), key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stats %s/%s/%s: %w", key.BranchID, key.Date, key.Bucket, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return m.ToDomain(), nil
}

type ledgerTotals struct {
	TotalOrders  int64
	ItemsSold    int64
	TotalRevenue decimal.Decimal
}

// Aggregate sums the stats ledger columns of the bucket's orders.
func (r *statsRepository) Aggregate(ctx context.Context, key core.StatsKey) (core.StatsAggregates, error) {
	query := r.db.WithContext(ctx).Model(&OrderModel{}).
		Select(`COALESCE(SUM(CASE WHEN stats_order_counted THEN 1 ELSE 0 END), 0) AS total_orders,
			COALESCE(SUM(stats_items_counted), 0) AS items_sold,
			COALESCE(SUM(stats_revenue_counted), 0) AS total_revenue`).
		Where("branch_id = ? AND stats_date = ?", key.BranchID, key.Date)
	if key.Bucket != core.BucketAllDay {
		query = query.Where("stats_bucket = ?", string(key.Bucket))
	}

	var totals ledgerTotals
	if err := query.Scan(&totals).Error; err != nil {
		return core.StatsAggregates{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	return core.StatsAggregates{
		TotalRevenue:      totals.TotalRevenue,
		TotalOrders:       totals.TotalOrders,
		ItemsSold:         totals.ItemsSold,
		AverageOrderValue: core.AverageOrderValue(totals.TotalRevenue, totals.TotalOrders),
	}, nil
}

func (r *statsRepository) Replace(ctx context.Context, row *core.StatsCache) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "branch_id"}, {Name: "date"}, {Name: "bucket"}},
		UpdateAll: true,
	}).Create(statsModelFromDomain(row)).Error
	if err != nil {
		return fmt.Errorf("failed to replace stats row: %w", err)
	}
	return nil
}

func (r *statsRepository) ListByDate(ctx context.Context, date string) ([]*core.StatsCache, error) {
	var models []StatsModel
	if err := r.db.WithContext(ctx).Where("date = ?", date).
		Order("date, branch_id, bucket").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	return statsRows(models), nil
}

func (r *statsRepository) ListRange(ctx context.Context, branchID string, bucket core.StatsBucket, fromDate, toDate string) ([]*core.StatsCache, error) {
	var models []StatsModel
	if err := r.db.WithContext(ctx).
		Where("branch_id = ? AND bucket = ? AND date BETWEEN ? AND ?", branchID, string(bucket), fromDate, toDate).
		Order("date").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list stats range: %w", err)
	}
	return statsRows(models), nil
}

func statsRows(models []StatsModel) []*core.StatsCache {
	rows := make([]*core.StatsCache, len(models))
	for i := range models {
		rows[i] = models[i].ToDomain()
	}
	return rows
}
