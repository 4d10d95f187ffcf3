package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/metrics"
	"go.uber.org/zap"
)

// StaleVersionError is returned when a caller-supplied version no longer
// matches the stored record. It is never retried.
type StaleVersionError struct {
	ID       string
	Expected int64
	Current  int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("%s: expected version %d, current is %d: %v", e.ID, e.Expected, e.Current, core.ErrVersionConflict)
}

func (e *StaleVersionError) Unwrap() error { return core.ErrVersionConflict }

type pendingEvent struct {
	name    string
	payload any
}

// effects collects what a unit of work publishes once it commits
type effects struct {
	events   []pendingEvent
	rows     []*core.StatsCache
	onCommit []func()
}

func (fx *effects) emit(name string, payload any) {
	fx.events = append(fx.events, pendingEvent{name: name, payload: payload})
}

func (fx *effects) stats(rows []*core.StatsCache) {
	fx.rows = append(fx.rows, rows...)
}

func (fx *effects) after(fn func()) {
	fx.onCommit = append(fx.onCommit, fn)
}

// unitOfWork runs a transactional operation with bounded retries on
// version conflicts and publishes its effects after commit.
type unitOfWork struct {
	store   core.Store
	stats   *StatsService
	events  core.EventSink
	logger  *zap.Logger
	retries int
}

func (u *unitOfWork) run(ctx context.Context, op string, fn func(tx core.Repositories, fx *effects) error) error {
	attempts := u.retries
	if attempts < 1 {
		attempts = 1
	}

	var (
		fx  *effects
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		fx = &effects{}
		err = u.store.WithTx(ctx, func(tx core.Repositories) error {
			return fn(tx, fx)
		})
		if err == nil {
			break
		}

		var stale *StaleVersionError
		if !errors.Is(err, core.ErrVersionConflict) || errors.As(err, &stale) {
			return err
		}
		metrics.WriteConflicts.WithLabelValues(op).Inc()
		u.logger.Debug("version conflict, retrying", zap.String("operation", op), zap.Int("attempt", attempt))
		if ctx.Err() != nil {
			return fmt.Errorf("%s aborted after %d attempts: %w", op, attempt, err)
		}
	}
	if err != nil {
		return fmt.Errorf("%s gave up after %d attempts: %w", op, attempts, err)
	}

	u.publish(ctx, fx)
	return nil
}

func (u *unitOfWork) publish(ctx context.Context, fx *effects) {
	for _, f := range fx.onCommit {
		f()
	}
	if u.events != nil {
		for _, ev := range fx.events {
			u.events.Publish(ev.name, ev.payload)
		}
	}
	if len(fx.rows) == 0 {
		return
	}
	u.stats.Invalidate(ctx, fx.rows)
	if u.events == nil {
		return
	}
	for _, row := range fx.rows {
		u.events.Publish(core.EventStatsUpdated, core.StatsEvent{Key: row.Key, Aggregates: row.Aggregates, Timestamp: row.LastUpdated})
	}
}

func checkVersion(id string, expected, current int64) error {
	if expected > 0 && expected != current {
		return &StaleVersionError{ID: id, Expected: expected, Current: current}
	}
	return nil
}
