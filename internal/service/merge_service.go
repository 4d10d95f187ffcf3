package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/lifecycle"
	"github.com/dumu-tech/cafe-orders/internal/metrics"
	"go.uber.org/zap"
)

// MergeInput names the orders to consolidate
type MergeInput struct {
	OrderIDs []string
	// TargetTableID optionally moves the surviving order to another table
	TargetTableID string
	Actor         string
}

// MergeResult is the consolidated order plus the orders folded into it
type MergeResult struct {
	Order          *core.Order   `json:"order"`
	MergedOrders   []*core.Order `json:"merged_orders"`
	DroppedCoupons []string      `json:"dropped_coupons,omitempty"`
}

// MergeService consolidates several open orders into one
type MergeService struct {
	uow     *unitOfWork
	stats   *StatsService
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewMergeService creates a merge service. timeout bounds each commit;
// zero means no limit beyond the caller's context.
func NewMergeService(
	store core.Store,
	stats *StatsService,
	events core.EventSink,
	logger *zap.Logger,
	writeRetries int,
	timeout time.Duration,
	now func() time.Time,
) *MergeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &MergeService{
		uow:     &unitOfWork{store: store, stats: stats, events: events, logger: logger, retries: writeRetries},
		stats:   stats,
		logger:  logger,
		timeout: timeout,
		now:     now,
	}
}

// Preview computes the merged order without persisting anything.
func (s *MergeService) Preview(ctx context.Context, in MergeInput) (*MergeResult, error) {
	ids, err := distinctIDs(in.OrderIDs)
	if err != nil {
		return nil, err
	}

	repo := s.uow.store.Orders()
	orders := make([]*core.Order, 0, len(ids))
	for _, id := range ids {
		o, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, mergeLoadError(id, err)
		}
		orders = append(orders, o)
	}

	plan, err := lifecycle.Combine(orders, s.now(), in.Actor, in.TargetTableID)
	if err != nil {
		return nil, err
	}
	if plan.Target.TableID != "" {
		table, err := s.uow.store.Tables().GetByID(ctx, plan.Target.TableID)
		if err != nil {
			return nil, err
		}
		if err := checkTargetTable(table, plan.Target); err != nil {
			return nil, err
		}
	}
	return &MergeResult{Order: plan.Target, MergedOrders: plan.Sources, DroppedCoupons: plan.DroppedCoupons}, nil
}

// Commit merges the orders atomically. Either every order and table is
// updated or none is; a timed out commit reports failure and can be
// retried, since preconditions are checked again each time.
func (s *MergeService) Commit(ctx context.Context, in MergeInput) (*MergeResult, error) {
	ids, err := distinctIDs(in.OrderIDs)
	if err != nil {
		metrics.Merges.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var result *MergeResult
	err = s.uow.run(ctx, "merge", func(tx core.Repositories, fx *effects) error {
		orders := make([]*core.Order, 0, len(ids))
		for _, id := range ids {
			o, err := tx.Orders().GetForUpdate(ctx, id)
			if err != nil {
				return mergeLoadError(id, err)
			}
			orders = append(orders, o)
		}

		now := s.now()
		plan, err := lifecycle.Combine(orders, now, in.Actor, in.TargetTableID)
		if err != nil {
			return err
		}

		// Table rows are locked before stats rows, the same order Close uses.
		target := plan.Target
		for _, src := range plan.Sources {
			if err := releaseTable(ctx, tx, src.TableID, src.ID, now); err != nil {
				return err
			}
		}
		if plan.PreviousTableID != "" {
			if err := releaseTable(ctx, tx, plan.PreviousTableID, target.ID, now); err != nil {
				return err
			}
		}
		if target.TableID != "" {
			if err := attachTable(ctx, tx, target, now); err != nil {
				return err
			}
		}

		for _, o := range append(slices.Clone(plan.Sources), target) {
			rows, err := s.stats.Account(ctx, tx.Stats(), o, now)
			if err != nil {
				return err
			}
			fx.stats(rows)
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
		}

		mergedIDs := make([]string, 0, len(plan.Sources))
		for _, src := range plan.Sources {
			mergedIDs = append(mergedIDs, src.ID)
			ev := orderEvent(src, now)
			ev.PreviousStatus = src.StatusHistory[len(src.StatusHistory)-1].From
			ev.NewStatus = core.OrderStatusMerged
			fx.emit(core.EventOrderStatusChanged, ev)
		}
		ev := orderEvent(target, now)
		ev.MergedOrderIDs = mergedIDs
		ev.ResultingOrderID = target.ID
		total := target.Total
		ev.Total = &total
		fx.emit(core.EventOrderMerged, ev)

		result = &MergeResult{Order: target, MergedOrders: plan.Sources, DroppedCoupons: plan.DroppedCoupons}
		return nil
	})
	if err != nil {
		metrics.Merges.WithLabelValues(mergeOutcome(err)).Inc()
		s.logger.Warn("merge failed", zap.Strings("order_ids", ids), zap.Error(err))
		return nil, err
	}

	metrics.Merges.WithLabelValues("committed").Inc()
	s.logger.Info("orders merged",
		zap.String("target_order_id", result.Order.ID),
		zap.Int("source_count", len(result.MergedOrders)),
		zap.String("total", result.Order.Total.StringFixed(2)))
	return result, nil
}

// attachTable puts the target on its (possibly new) table.
func attachTable(ctx context.Context, tx core.Repositories, o *core.Order, now time.Time) error {
	table, err := tx.Tables().GetForUpdate(ctx, o.TableID)
	if err != nil {
		return err
	}
	if err := checkTargetTable(table, o); err != nil {
		return err
	}
	table.AttachOrder(o.ID)
	table.UpdatedAt = now
	return tx.Tables().Update(ctx, table)
}

// checkTargetTable reports whether the merged order may sit at table.
func checkTargetTable(table *core.Table, o *core.Order) error {
	if table.BranchID != o.BranchID {
		return fmt.Errorf("%w: table %s belongs to branch %s", core.ErrInvalidInput, table.ID, table.BranchID)
	}
	if table.Status == core.TableStatusMaintenance {
		return fmt.Errorf("%w: table %s is under maintenance", core.ErrTableUnavailable, table.ID)
	}
	return nil
}

// distinctIDs trims, dedupes and sorts ids so row locks are always taken
// in the same order.
func distinctIDs(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("got %d distinct order ids: %w", len(out), core.ErrInsufficientOrders)
	}
	sort.Strings(out)
	return out, nil
}

func mergeLoadError(id string, err error) error {
	if errors.Is(err, core.ErrOrderNotFound) {
		return &core.MergeError{OrderID: id, Err: core.ErrOrderNotFound}
	}
	return fmt.Errorf("failed to load order %s: %w", id, err)
}

func mergeOutcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, core.ErrInsufficientOrders),
		errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrCannotMergePaidOrder),
		errors.Is(err, core.ErrInvalidOrderState),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrTableNotFound),
		errors.Is(err, core.ErrTableUnavailable):
		return "rejected"
	default:
		return "failed"
	}
}
