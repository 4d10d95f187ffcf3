package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dumu-tech/cafe-orders/internal/core"
)

// Catalog is an in-memory core.CatalogRepository
type Catalog struct {
	mu    sync.RWMutex
	items map[string]*core.CatalogItem
}

// NewCatalog creates a catalog preloaded with items
func NewCatalog(items ...*core.CatalogItem) *Catalog {
	c := &Catalog{items: make(map[string]*core.CatalogItem)}
	for _, it := range items {
		c.Put(it)
	}
	return c
}

// Put inserts or replaces an item
func (c *Catalog) Put(item *core.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *item
	c.items[item.ID] = &cp
}

func (c *Catalog) GetItem(_ context.Context, id string) (*core.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[id]
	if !ok {
		return nil, fmt.Errorf("catalog item %s: %w", id, core.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (c *Catalog) ListByBranch(_ context.Context, branchID string) ([]*core.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*core.CatalogItem
	for _, it := range c.items {
		if it.BranchID == "" || branchID == "" || it.BranchID == branchID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Coupons is an in-memory core.CouponRepository keyed by upper-case code
type Coupons struct {
	mu      sync.RWMutex
	coupons map[string]*core.Coupon
}

// NewCoupons creates a coupon book preloaded with coupons
func NewCoupons(coupons ...*core.Coupon) *Coupons {
	c := &Coupons{coupons: make(map[string]*core.Coupon)}
	for _, cp := range coupons {
		c.Put(cp)
	}
	return c
}

// Put inserts or replaces a coupon
func (c *Coupons) Put(coupon *core.Coupon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *coupon
	c.coupons[strings.ToUpper(coupon.Code)] = &cp
}

func (c *Coupons) GetByCode(_ context.Context, code string) (*core.Coupon, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp, ok := c.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", code, core.ErrNotFound)
	}
	out := *cp
	return &out, nil
}

func (c *Coupons) ListActive(_ context.Context, branchID string) ([]*core.Coupon, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*core.Coupon
	for _, cp := range c.coupons {
		if !cp.IsActive {
			continue
		}
		if cp.BranchID != "" && branchID != "" && cp.BranchID != branchID {
			continue
		}
		v := *cp
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Staff is an in-memory core.StaffRepository
type Staff struct {
	mu    sync.RWMutex
	users map[string]*core.StaffUser
}

// NewStaff creates a staff directory preloaded with users
func NewStaff(users ...*core.StaffUser) *Staff {
	s := &Staff{users: make(map[string]*core.StaffUser)}
	for _, u := range users {
		cp := *u
		s.users[u.ID] = &cp
	}
	return s
}

func (s *Staff) GetByID(_ context.Context, id string) (*core.StaffUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("staff %s: %w", id, core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Staff) GetActiveByBranch(_ context.Context, branchID string) ([]*core.StaffUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.StaffUser
	for _, u := range s.users {
		if u.IsActive && u.BranchID == branchID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
