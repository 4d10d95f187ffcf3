// Package jobs holds background work scheduled next to the API server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/metrics"
	"github.com/dumu-tech/cafe-orders/internal/service"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// StatsReconciler recomputes stats cache rows from the per-order ledger
// and rewrites rows that drifted.
type StatsReconciler struct {
	store   core.Store
	stats   *service.StatsService
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewStatsReconciler creates a reconciler over store
func NewStatsReconciler(store core.Store, stats *service.StatsService, logger *zap.Logger, now func() time.Time) *StatsReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &StatsReconciler{store: store, stats: stats, logger: logger, now: now, timeout: 2 * time.Minute}
}

// Schedule runs the reconciler every interval on s
func (r *StatsReconciler) Schedule(s *gocron.Scheduler, interval time.Duration) (*gocron.Job, error) {
	job, err := s.Every(interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("stats reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule stats reconciliation: %w", err)
	}
	return job, nil
}

// RunOnce reconciles today and yesterday in the branch timezone, so rows
// touched just before midnight are covered too.
func (r *StatsReconciler) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	repaired := 0
	for _, date := range []string{r.stats.Today(now.AddDate(0, 0, -1)), r.stats.Today(now)} {
		n, err := r.Reconcile(ctx, date)
		repaired += n
		if err != nil {
			return repaired, err
		}
	}
	return repaired, nil
}

// Reconcile checks every stats row of date and returns how many it fixed.
func (r *StatsReconciler) Reconcile(ctx context.Context, date string) (int, error) {
	rows, err := r.store.Stats().ListByDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("failed to list stats rows: %w", err)
	}

	var fixed []*core.StatsCache
	for _, row := range rows {
		repairedRow, err := r.reconcileRow(ctx, row.Key)
		if err != nil {
			return len(fixed), err
		}
		if repairedRow != nil {
			fixed = append(fixed, repairedRow)
		}
	}

	r.stats.Invalidate(ctx, fixed)
	if len(fixed) > 0 {
		r.logger.Info("stats reconciliation repaired rows", zap.String("date", date), zap.Int("rows", len(fixed)))
	}
	return len(fixed), nil
}

func (r *StatsReconciler) reconcileRow(ctx context.Context, key core.StatsKey) (*core.StatsCache, error) {
	var repaired *core.StatsCache
	err := r.store.WithTx(ctx, func(tx core.Repositories) error {
		now := r.now()
		// A zero delta write locks the row so no order can change the
		// bucket between the recount and the rewrite.
		row, err := tx.Stats().ApplyDelta(ctx, key, core.StatsDelta{}, now)
		if err != nil {
			return err
		}
		want, err := tx.Stats().Aggregate(ctx, key)
		if err != nil {
			return err
		}
		if sameAggregates(row.Aggregates, want) {
			return nil
		}

		r.logger.Warn("stats row drifted from order ledger",
			zap.String("branch_id", key.BranchID),
			zap.String("date", key.Date),
			zap.String("bucket", string(key.Bucket)),
			zap.String("cached_revenue", row.Aggregates.TotalRevenue.String()),
			zap.String("ledger_revenue", want.TotalRevenue.String()),
			zap.Int64("cached_orders", row.Aggregates.TotalOrders),
			zap.Int64("ledger_orders", want.TotalOrders))

		row.Aggregates = want
		row.LastUpdated = now
		if err := tx.Stats().Replace(ctx, row); err != nil {
			return err
		}
		repaired = row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile %s/%s/%s: %w", key.BranchID, key.Date, key.Bucket, err)
	}
	if repaired != nil {
		metrics.StatsRepairs.Inc()
	}
	return repaired, nil
}

func sameAggregates(a, b core.StatsAggregates) bool {
	return a.TotalRevenue.Equal(b.TotalRevenue) &&
		a.TotalOrders == b.TotalOrders &&
		a.ItemsSold == b.ItemsSold
}
