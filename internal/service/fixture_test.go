package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/adapters/memory"
	"github.com/dumu-tech/cafe-orders/internal/cache"
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testBranch = "main"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// recordedEvents is an EventSink that keeps everything published
type recordedEvents struct {
	mu     sync.Mutex
	events []pendingEvent
}

func (r *recordedEvents) Publish(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pendingEvent{name: name, payload: payload})
}

func (r *recordedEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func (r *recordedEvents) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recordedEvents) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *memory.Store
	catalog   *memory.Catalog
	coupons   *memory.Coupons
	readCache *cache.Memory
	events    *recordedEvents
	clock     *clock
	stats     *StatsService
	calc      *pricing.Calculator
	orders    *OrderService
	merges    *MergeService
	tables    *TableService
	dashboard *DashboardService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore builds the services over wrap(store) when wrap is
// given, so tests can inject storage failures.
func newFixtureWithStore(t *testing.T, wrap func(*memory.Store) core.Store) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewStore(),
		catalog: memory.NewCatalog(
			&core.CatalogItem{ID: "latte", Name: "Latte", Category: "coffee", Price: dec("125"), IsAvailable: true},
			&core.CatalogItem{ID: "muffin", Name: "Blueberry Muffin", Category: "bakery", Price: dec("50"), IsAvailable: true},
			&core.CatalogItem{ID: "tea", Name: "Masala Tea", Category: "tea", Price: dec("20"), IsAvailable: true},
			&core.CatalogItem{ID: "mocha", Name: "Mocha", Category: "coffee", Price: dec("150"), IsAvailable: false},
		),
		coupons: memory.NewCoupons(
			&core.Coupon{Code: "TENPCT", Type: core.CouponTypePercentage, Value: dec("10"), IsActive: true},
		),
		events: &recordedEvents{},
		clock:  &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	f.readCache = cache.NewMemory(f.clock.Now)

	var store core.Store = f.store
	if wrap != nil {
		store = wrap(f.store)
	}

	f.stats = NewStatsService(time.UTC, f.readCache, nil)
	f.calc = pricing.NewCalculator(f.catalog, pricing.NewCouponBook(f.coupons), f.clock.Now)
	f.orders = NewOrderService(store, f.calc, f.stats, f.events, nil, 3, f.clock.Now)
	f.merges = NewMergeService(store, f.stats, f.events, nil, 3, 5*time.Second, f.clock.Now)
	f.tables = NewTableService(store, nil, 3, f.clock.Now)
	f.dashboard = NewDashboardService(store, f.stats, f.readCache, time.Minute, nil, nil, f.clock.Now)

	for _, n := range []string{"T1", "T2", "T3"} {
		require.NoError(t, f.store.Tables().Create(context.Background(), &core.Table{
			ID: n, BranchID: testBranch, Number: n, Capacity: 4, Status: core.TableStatusAvailable,
		}))
	}
	return f
}

// createLattes opens latte×2 (250 + 25 tax = 275) on table.
func (f *fixture) createLattes(t *testing.T, table string) *core.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BranchID: testBranch,
		TableID:  table,
		Items:    []pricing.ItemInput{{CatalogItemID: "latte", Quantity: 2}},
		Actor:    "waiter-1",
	})
	require.NoError(t, err)
	return o
}

// createMuffins opens muffin×2 (100 + 10 tax = 110) on table.
func (f *fixture) createMuffins(t *testing.T, table string) *core.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BranchID: testBranch,
		TableID:  table,
		Items:    []pricing.ItemInput{{CatalogItemID: "muffin", Quantity: 2}},
		Actor:    "waiter-1",
	})
	require.NoError(t, err)
	return o
}

// advanceTo walks the order forward until it reaches status.
func (f *fixture) advanceTo(t *testing.T, id string, status core.OrderStatus) *core.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.GetOrder(ctx, id)
	require.NoError(t, err)
	for _, s := range []core.OrderStatus{core.OrderStatusConfirmed, core.OrderStatusPreparing, core.OrderStatusReady} {
		if o.Status == status {
			return o
		}
		o, err = f.orders.Transition(ctx, id, s, 0, "chef-1")
		require.NoError(t, err)
	}
	require.Equal(t, status, o.Status)
	return o
}

func (f *fixture) pay(t *testing.T, o *core.Order, ref string) *core.Order {
	t.Helper()
	f.advanceTo(t, o.ID, core.OrderStatusReady)
	paid, err := f.orders.Pay(context.Background(), o.ID, PayInput{
		Method: core.PaymentMethodCash, Amount: o.Total, Reference: ref, Actor: "cashier-1",
	})
	require.NoError(t, err)
	return paid
}

func (f *fixture) row(t *testing.T, bucket core.StatsBucket) core.StatsAggregates {
	t.Helper()
	row, err := f.store.Stats().Get(context.Background(), core.StatsKey{BranchID: testBranch, Date: "2026-03-02", Bucket: bucket})
	require.NoError(t, err)
	return row.Aggregates
}

func (f *fixture) table(t *testing.T, id string) *core.Table {
	t.Helper()
	tb, err := f.store.Tables().GetByID(context.Background(), id)
	require.NoError(t, err)
	return tb
}

// faultyStore fails selected writes inside transactions
type faultyStore struct {
	*memory.Store
	failOrderUpdate func(o *core.Order) error
	failTableUpdate func(t *core.Table) error
	// trace records row locks and stats writes in the order they happen
	trace []string
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(repos core.Repositories) error) error {
	return s.Store.WithTx(ctx, func(repos core.Repositories) error {
		return fn(&faultyRepos{Repositories: repos, s: s})
	})
}

type faultyRepos struct {
	core.Repositories
	s *faultyStore
}

func (r *faultyRepos) Orders() core.OrderRepository {
	return &faultyOrders{OrderRepository: r.Repositories.Orders(), s: r.s}
}

func (r *faultyRepos) Tables() core.TableRepository {
	return &faultyTables{TableRepository: r.Repositories.Tables(), s: r.s}
}

func (r *faultyRepos) Stats() core.StatsRepository {
	return &tracingStats{StatsRepository: r.Repositories.Stats(), s: r.s}
}

type tracingStats struct {
	core.StatsRepository
	s *faultyStore
}

func (st *tracingStats) ApplyDelta(ctx context.Context, key core.StatsKey, d core.StatsDelta, now time.Time) (*core.StatsCache, error) {
	st.s.trace = append(st.s.trace, "stats:"+string(key.Bucket))
	return st.StatsRepository.ApplyDelta(ctx, key, d, now)
}

type faultyOrders struct {
	core.OrderRepository
	s *faultyStore
}

func (o *faultyOrders) GetForUpdate(ctx context.Context, id string) (*core.Order, error) {
	o.s.trace = append(o.s.trace, "order:"+id)
	return o.OrderRepository.GetForUpdate(ctx, id)
}

func (o *faultyOrders) Update(ctx context.Context, order *core.Order) error {
	if o.s.failOrderUpdate != nil {
		if err := o.s.failOrderUpdate(order); err != nil {
			return err
		}
	}
	return o.OrderRepository.Update(ctx, order)
}

type faultyTables struct {
	core.TableRepository
	s *faultyStore
}

func (t *faultyTables) GetForUpdate(ctx context.Context, id string) (*core.Table, error) {
	t.s.trace = append(t.s.trace, "table:"+id)
	return t.TableRepository.GetForUpdate(ctx, id)
}

func (t *faultyTables) Update(ctx context.Context, table *core.Table) error {
	if t.s.failTableUpdate != nil {
		if err := t.s.failTableUpdate(table); err != nil {
			return err
		}
	}
	return t.TableRepository.Update(ctx, table)
}
