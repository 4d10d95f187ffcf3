package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/cache"
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/lifecycle"
	"github.com/dumu-tech/cafe-orders/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DateLayout keys stats rows by calendar date
const DateLayout = "2006-01-02"

// Contribution is what one order adds to its stats buckets
type Contribution struct {
	Order   bool
	Items   int
	Revenue decimal.Decimal
}

// ContributionOf derives the target contribution of o from its current
// state. Stats deltas are always the difference between this and the
// order's ledger, which makes accounting exactly-once per stage and
// independent of event order.
func ContributionOf(o *core.Order) Contribution {
	switch {
	case o.Status == core.OrderStatusCancelled, o.Status == core.OrderStatusMerged:
		return Contribution{Revenue: decimal.Zero}
	case o.PaymentStatus == core.PaymentStatusPaid, o.PaymentStatus == core.PaymentStatusRefunded:
		return Contribution{Order: true, Items: o.ItemCount(), Revenue: o.Total.Sub(o.RefundedAmount)}
	case lifecycle.IsActive(o.Status):
		return Contribution{Order: true, Items: o.ItemCount(), Revenue: decimal.Zero}
	}
	return Contribution{Order: o.StatsOrderCounted, Items: o.StatsItemsCounted, Revenue: o.StatsRevenueCounted}
}

// StatsService maintains the stats delta cache
type StatsService struct {
	loc    *time.Location
	cache  cache.Cache
	logger *zap.Logger
}

// NewStatsService creates a stats service bucketing in loc
func NewStatsService(loc *time.Location, c cache.Cache, logger *zap.Logger) *StatsService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{loc: loc, cache: c, logger: logger}
}

// Location returns the branch timezone
func (s *StatsService) Location() *time.Location { return s.loc }

// BucketFor returns the date and day-part of t in the branch timezone.
func (s *StatsService) BucketFor(t time.Time) (string, core.StatsBucket) {
	local := t.In(s.loc)
	date := local.Format(DateLayout)
	switch h := local.Hour(); {
	case h >= 5 && h < 11:
		return date, core.BucketMorning
	case h >= 11 && h < 16:
		return date, core.BucketAfternoon
	case h >= 16 && h < 22:
		return date, core.BucketEvening
	default:
		return date, core.BucketNight
	}
}

// Today returns the current branch-local date
func (s *StatsService) Today(now time.Time) string {
	return now.In(s.loc).Format(DateLayout)
}

// ApplyDelta adds d to the all_day row and the day-part row. It must run
// inside the caller's transaction.
func (s *StatsService) ApplyDelta(ctx context.Context, repo core.StatsRepository, branchID, date string, bucket core.StatsBucket, d core.StatsDelta, now time.Time) ([]*core.StatsCache, error) {
	if d.IsZero() {
		return nil, nil
	}

	keys := []core.StatsKey{{BranchID: branchID, Date: date, Bucket: core.BucketAllDay}}
	if bucket != "" && bucket != core.BucketAllDay {
		keys = append(keys, core.StatsKey{BranchID: branchID, Date: date, Bucket: bucket})
	}

	rows := make([]*core.StatsCache, 0, len(keys))
	for _, key := range keys {
		row, err := repo.ApplyDelta(ctx, key, d, now)
		if err != nil {
			return nil, fmt.Errorf("failed to apply stats delta to %s/%s: %w", key.Date, key.Bucket, err)
		}
		metrics.StatsDeltas.WithLabelValues(string(key.Bucket)).Inc()
		rows = append(rows, row)
	}
	return rows, nil
}

// Account brings o's stats ledger in line with its current state and
// applies the difference. Call it before saving o, in the same
// transaction, so a lazily seeded row sees the order's previous ledger.
func (s *StatsService) Account(ctx context.Context, repo core.StatsRepository, o *core.Order, now time.Time) ([]*core.StatsCache, error) {
	if o.StatsDate == "" {
		o.StatsDate, o.StatsBucket = s.BucketFor(o.CreatedAt)
	}

	want := ContributionOf(o)
	d := core.StatsDelta{
		Revenue: want.Revenue.Sub(o.StatsRevenueCounted),
		Orders:  boolToInt(want.Order) - boolToInt(o.StatsOrderCounted),
		Items:   int64(want.Items - o.StatsItemsCounted),
	}

	rows, err := s.ApplyDelta(ctx, repo, o.BranchID, o.StatsDate, o.StatsBucket, d, now)
	if err != nil {
		return nil, err
	}

	o.StatsOrderCounted = want.Order
	o.StatsItemsCounted = want.Items
	o.StatsRevenueCounted = want.Revenue
	return rows, nil
}

// Invalidate drops cached dashboard reads for the rows' branch and date.
// Failures are logged; the cache entry then expires on its own.
func (s *StatsService) Invalidate(ctx context.Context, rows []*core.StatsCache) {
	if s.cache == nil || len(rows) == 0 {
		return
	}
	seen := make(map[string]bool)
	var keys []string
	for _, r := range rows {
		k := overviewCacheKey(r.Key.BranchID, r.Key.Date)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Strings("keys", keys), zap.Error(err))
	}
}

func overviewCacheKey(branchID, date string) string {
	return "analytics:" + branchID + ":" + date
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
