package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/cache"
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// dayParts lists the buckets shown next to the all-day totals
var dayParts = []core.StatsBucket{core.BucketMorning, core.BucketAfternoon, core.BucketEvening, core.BucketNight}

// DashboardService serves the read side: analytics, trend, reports and the
// live event stream.
type DashboardService struct {
	store    core.Store
	stats    *StatsService
	cache    cache.Cache
	cacheTTL time.Duration
	eventBus *events.EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	store core.Store,
	stats *StatsService,
	readCache cache.Cache,
	cacheTTL time.Duration,
	eventBus *events.EventBus,
	logger *zap.Logger,
	now func() time.Time,
) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &DashboardService{
		store:    store,
		stats:    stats,
		cache:    readCache,
		cacheTTL: cacheTTL,
		eventBus: eventBus,
		logger:   logger,
		now:      now,
	}
}

// GetAnalyticsOverview returns the branch's aggregates for date (today when
// empty). Reads go through the cache; stats writes invalidate it.
func (s *DashboardService) GetAnalyticsOverview(ctx context.Context, branchID, date string) (*core.Analytics, error) {
	date, err := s.resolveDate(date)
	if err != nil {
		return nil, err
	}

	key := overviewCacheKey(branchID, date)
	if s.cache != nil {
		var cached core.Analytics
		found, err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}

	overview := &core.Analytics{
		BranchID:   branchID,
		Date:       date,
		ByBucket:   make(map[core.StatsBucket]core.StatsAggregates, len(dayParts)),
		ComputedAt: s.now(),
	}

	overview.Today, err = s.bucketAggregates(ctx, core.StatsKey{BranchID: branchID, Date: date, Bucket: core.BucketAllDay})
	if err != nil {
		return nil, err
	}
	for _, b := range dayParts {
		agg, err := s.bucketAggregates(ctx, core.StatsKey{BranchID: branchID, Date: date, Bucket: b})
		if err != nil {
			return nil, err
		}
		overview.ByBucket[b] = agg
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, overview, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return overview, nil
}

// bucketAggregates reads the cache row, falling back to a ledger
// aggregation for a bucket nobody has written yet.
func (s *DashboardService) bucketAggregates(ctx context.Context, key core.StatsKey) (core.StatsAggregates, error) {
	row, err := s.store.Stats().Get(ctx, key)
	if err == nil {
		return row.Aggregates, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.StatsAggregates{}, fmt.Errorf("failed to read stats %s/%s: %w", key.Date, key.Bucket, err)
	}
	return s.store.Stats().Aggregate(ctx, key)
}

// GetRevenueTrend returns one point per day for the last days days,
// today included. Days without a stats row report zero.
func (s *DashboardService) GetRevenueTrend(ctx context.Context, branchID string, days int) ([]*core.RevenueTrend, error) {
	if days < 1 || days > 90 {
		return nil, fmt.Errorf("%w: days must be between 1 and 90", core.ErrInvalidInput)
	}

	today := s.now().In(s.stats.Location())
	from := today.AddDate(0, 0, -(days - 1))
	rows, err := s.store.Stats().ListRange(ctx, branchID, core.BucketAllDay, from.Format(DateLayout), today.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to read revenue trend: %w", err)
	}

	byDate := make(map[string]*core.StatsCache, len(rows))
	for _, r := range rows {
		byDate[r.Key.Date] = r
	}

	trend := make([]*core.RevenueTrend, 0, days)
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		point := &core.RevenueTrend{Date: date, Revenue: decimal.Zero}
		if r, ok := byDate[date]; ok {
			point.Revenue = r.Aggregates.TotalRevenue
			point.OrderCount = r.Aggregates.TotalOrders
		}
		trend = append(trend, point)
	}
	return trend, nil
}

// GetEventBus returns the event bus for SSE subscriptions
func (s *DashboardService) GetEventBus() *events.EventBus {
	return s.eventBus
}

func (s *DashboardService) resolveDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.stats.Today(s.now()), nil
	}
	if _, err := time.ParseInLocation(DateLayout, date, s.stats.Location()); err != nil {
		return "", fmt.Errorf("%w: invalid date format, expected YYYY-MM-DD", core.ErrInvalidInput)
	}
	return date, nil
}
