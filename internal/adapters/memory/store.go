// Package memory is an in-process implementation of the order store. A
// transaction works on a private copy of the data and swaps it in on
// success, so a failed unit of work leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
)

type state struct {
	orders map[string]*core.Order
	tables map[string]*core.Table
	stats  map[core.StatsKey]*core.StatsCache
}

func newState() *state {
	return &state{
		orders: make(map[string]*core.Order),
		tables: make(map[string]*core.Table),
		stats:  make(map[core.StatsKey]*core.StatsCache),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.orders {
		cp.orders[k] = v.Clone()
	}
	for k, v := range s.tables {
		cp.tables[k] = v.Clone()
	}
	for k, v := range s.stats {
		row := *v
		cp.stats[k] = &row
	}
	return cp
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Store implements core.Store in memory
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) repos() *repos {
	return &repos{st: func() *state { return s.state }, lock: &s.mu}
}

func (s *Store) Orders() core.OrderRepository { return &orderRepo{s.repos()} }
func (s *Store) Tables() core.TableRepository { return &tableRepo{s.repos()} }
func (s *Store) Stats() core.StatsRepository  { return &statsRepo{s.repos()} }

// WithTx serializes units of work. fn sees a private copy that replaces
// the live data only when fn succeeds and ctx is still live.
func (s *Store) WithTx(ctx context.Context, fn func(repos core.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	tx := &repos{st: func() *state { return work }, lock: noopLocker{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.state = work
	return nil
}

type repos struct {
	st   func() *state
	lock sync.Locker
}

func (r *repos) Orders() core.OrderRepository { return &orderRepo{r} }
func (r *repos) Tables() core.TableRepository { return &tableRepo{r} }
func (r *repos) Stats() core.StatsRepository  { return &statsRepo{r} }

type orderRepo struct{ *repos }

func (r *orderRepo) Create(_ context.Context, order *core.Order) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	st := r.st()
	if _, exists := st.orders[order.ID]; exists {
		return fmt.Errorf("%w: order %s already exists", core.ErrInvalidInput, order.ID)
	}
	if order.Version == 0 {
		order.Version = 1
	}
	st.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*core.Order, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	o, ok := r.st().orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

// GetForUpdate is GetByID; transactions are already serialized.
func (r *orderRepo) GetForUpdate(ctx context.Context, id string) (*core.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) Update(_ context.Context, order *core.Order) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	st := r.st()
	cur, ok := st.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrOrderNotFound, order.ID)
	}
	if cur.Version != order.Version {
		return fmt.Errorf("order %s at version %d, have %d: %w", order.ID, cur.Version, order.Version, core.ErrVersionConflict)
	}
	order.Version++
	st.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepo) List(_ context.Context, f core.OrderFilter) ([]*core.Order, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []*core.Order
	for _, o := range r.st().orders {
		if f.BranchID != "" && o.BranchID != f.BranchID {
			continue
		}
		if f.TableID != "" && o.TableID != f.TableID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Since != nil && o.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && !o.CreatedAt.Before(*f.Until) {
			continue
		}
		out = append(out, o.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type tableRepo struct{ *repos }

func (r *tableRepo) Create(_ context.Context, table *core.Table) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	st := r.st()
	if _, exists := st.tables[table.ID]; exists {
		return fmt.Errorf("%w: table %s already exists", core.ErrInvalidInput, table.ID)
	}
	if table.Version == 0 {
		table.Version = 1
	}
	st.tables[table.ID] = table.Clone()
	return nil
}

func (r *tableRepo) GetByID(_ context.Context, id string) (*core.Table, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.st().tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrTableNotFound, id)
	}
	return t.Clone(), nil
}

func (r *tableRepo) GetForUpdate(ctx context.Context, id string) (*core.Table, error) {
	return r.GetByID(ctx, id)
}

func (r *tableRepo) Update(_ context.Context, table *core.Table) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	st := r.st()
	cur, ok := st.tables[table.ID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrTableNotFound, table.ID)
	}
	if cur.Version != table.Version {
		return fmt.Errorf("table %s at version %d, have %d: %w", table.ID, cur.Version, table.Version, core.ErrVersionConflict)
	}
	table.Version++
	st.tables[table.ID] = table.Clone()
	return nil
}

func (r *tableRepo) ListByBranch(_ context.Context, branchID string) ([]*core.Table, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []*core.Table
	for _, t := range r.st().tables {
		if branchID == "" || t.BranchID == branchID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

type statsRepo struct{ *repos }

func (r *statsRepo) ApplyDelta(_ context.Context, key core.StatsKey, d core.StatsDelta, now time.Time) (*core.StatsCache, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	st := r.st()
	row, ok := st.stats[key]
	if !ok {
		row = &core.StatsCache{
			Key:         key,
			Aggregates:  aggregate(st, key),
			SeededAt:    now,
			LastUpdated: now,
		}
		st.stats[key] = row
	}
	row.Apply(d, now)

	cp := *row
	return &cp, nil
}

func (r *statsRepo) Get(_ context.Context, key core.StatsKey) (*core.StatsCache, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	row, ok := r.st().stats[key]
	if !ok {
		return nil, fmt.Errorf("stats %s/%s/%s: %w", key.BranchID, key.Date, key.Bucket, core.ErrNotFound)
	}
	cp := *row
	return &cp, nil
}

func (r *statsRepo) Aggregate(_ context.Context, key core.StatsKey) (core.StatsAggregates, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return aggregate(r.st(), key), nil
}

func (r *statsRepo) Replace(_ context.Context, row *core.StatsCache) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	cp := *row
	r.st().stats[row.Key] = &cp
	return nil
}

func (r *statsRepo) ListByDate(_ context.Context, date string) ([]*core.StatsCache, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []*core.StatsCache
	for k, row := range r.st().stats {
		if k.Date == date {
			cp := *row
			out = append(out, &cp)
		}
	}
	sortRows(out)
	return out, nil
}

func (r *statsRepo) ListRange(_ context.Context, branchID string, bucket core.StatsBucket, fromDate, toDate string) ([]*core.StatsCache, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []*core.StatsCache
	for k, row := range r.st().stats {
		if k.BranchID != branchID || k.Bucket != bucket || k.Date < fromDate || k.Date > toDate {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sortRows(out)
	return out, nil
}

// aggregate sums the stats ledger of every order in the bucket.
func aggregate(st *state, key core.StatsKey) core.StatsAggregates {
	var agg core.StatsAggregates
	revenue := decimal.Zero
	for _, o := range st.orders {
		if o.BranchID != key.BranchID || o.StatsDate != key.Date {
			continue
		}
		if key.Bucket != core.BucketAllDay && o.StatsBucket != key.Bucket {
			continue
		}
		if o.StatsOrderCounted {
			agg.TotalOrders++
		}
		agg.ItemsSold += int64(o.StatsItemsCounted)
		revenue = revenue.Add(o.StatsRevenueCounted)
	}
	agg.TotalRevenue = revenue
	agg.AverageOrderValue = core.AverageOrderValue(revenue, agg.TotalOrders)
	return agg
}

func sortRows(rows []*core.StatsCache) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Key, rows[j].Key
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.BranchID != b.BranchID {
			return a.BranchID < b.BranchID
		}
		return a.Bucket < b.Bucket
	})
}
