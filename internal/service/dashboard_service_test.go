package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsOverview_CachedUntilStatsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay(t, f.createLattes(t, "T1"), "cash-1")

	overview, err := f.dashboard.GetAnalyticsOverview(ctx, testBranch, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", overview.Date)
	assert.True(t, dec("275").Equal(overview.Today.TotalRevenue))
	assert.True(t, dec("275").Equal(overview.ByBucket[core.BucketMorning].TotalRevenue))
	assert.True(t, overview.ByBucket[core.BucketEvening].TotalRevenue.IsZero())
	assert.Equal(t, 1, f.readCache.Len())

	f.clock.Advance(30 * time.Second)
	cached, err := f.dashboard.GetAnalyticsOverview(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, overview.ComputedAt.Equal(cached.ComputedAt), "second read is served from cache")

	f.pay(t, f.createMuffins(t, "T2"), "cash-2")
	assert.Equal(t, 0, f.readCache.Len(), "stats writes invalidate the overview")

	fresh, err := f.dashboard.GetAnalyticsOverview(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, dec("385").Equal(fresh.Today.TotalRevenue))
	assert.Equal(t, int64(2), fresh.Today.TotalOrders)
	assert.True(t, dec("192.5").Equal(fresh.Today.AverageOrderValue))

	_, err = f.dashboard.GetAnalyticsOverview(ctx, testBranch, "02/03/2026")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestAnalyticsOverview_ExpiresAtTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay(t, f.createLattes(t, "T1"), "cash-1")

	first, err := f.dashboard.GetAnalyticsOverview(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)

	f.clock.Advance(time.Minute - time.Nanosecond)
	cached, err := f.dashboard.GetAnalyticsOverview(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, first.ComputedAt.Equal(cached.ComputedAt))

	f.clock.Advance(time.Nanosecond)
	expired, err := f.dashboard.GetAnalyticsOverview(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, expired.ComputedAt.Equal(f.clock.Now()), "entry expires exactly at the TTL")
	assert.False(t, expired.ComputedAt.Equal(first.ComputedAt))
}

func TestRevenueTrend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay(t, f.createLattes(t, "T1"), "cash-1")
	f.clock.Advance(24 * time.Hour)
	f.pay(t, f.createMuffins(t, "T2"), "cash-2")

	trend, err := f.dashboard.GetRevenueTrend(ctx, testBranch, 3)
	require.NoError(t, err)
	require.Len(t, trend, 3)
	assert.Equal(t, "2026-03-01", trend[0].Date)
	assert.True(t, trend[0].Revenue.IsZero())
	assert.True(t, dec("275").Equal(trend[1].Revenue))
	assert.True(t, dec("110").Equal(trend[2].Revenue))
	assert.Equal(t, int64(1), trend[2].OrderCount)

	_, err = f.dashboard.GetRevenueTrend(ctx, testBranch, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.dashboard.GetRevenueTrend(ctx, testBranch, 91)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestDailySalesReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay(t, f.createLattes(t, "T1"), "cash-1")
	f.createMuffins(t, "T2")

	report, err := f.dashboard.BuildDailySalesReport(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, report.Orders, 1, "unpaid orders are left out")
	assert.Len(t, report.Buckets, 4)
	assert.True(t, dec("275").Equal(report.Summary.TotalRevenue))

	pdf, filename, err := f.dashboard.GenerateDailySalesReportPDF(ctx, testBranch, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "daily-sales-main-2026-03-02.pdf", filename)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, _, err = f.dashboard.GenerateDailySalesReportPDF(ctx, testBranch, "yesterday")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
