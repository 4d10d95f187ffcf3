package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository implements core.CatalogRepository
type CatalogRepository struct {
	db *gorm.DB
}

// GetItem retrieves a catalog item by its ID
func (r *CatalogRepository) GetItem(ctx context.Context, id string) (*core.CatalogItem, error) {
	var m CatalogItemModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, core.ErrNotFound, "catalog item "+id)
	}
	return m.ToDomain(), nil
}

// ListByBranch retrieves items sold at the branch, including items shared
// by every branch
func (r *CatalogRepository) ListByBranch(ctx context.Context, branchID string) ([]*core.CatalogItem, error) {
	query := r.db.WithContext(ctx).Model(&CatalogItemModel{})
	if branchID != "" {
		query = query.Where("branch_id = '' OR branch_id = ?", branchID)
	}

	var models []CatalogItemModel
	if err := query.Order("category, name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	items := make([]*core.CatalogItem, len(models))
	for i := range models {
		items[i] = models[i].ToDomain()
	}
	return items, nil
}

// Save inserts or replaces a catalog item
func (r *CatalogRepository) Save(ctx context.Context, item *core.CatalogItem) error {
	m := &CatalogItemModel{
		ID:          item.ID,
		BranchID:    item.BranchID,
		Name:        item.Name,
		Category:    item.Category,
		Price:       item.Price,
		IsAvailable: item.IsAvailable,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
		return fmt.Errorf("failed to save catalog item: %w", err)
	}
	return nil
}

// CouponRepository implements core.CouponRepository
type CouponRepository struct {
	db *gorm.DB
}

// GetByCode retrieves a coupon by its case-insensitive code
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*core.Coupon, error) {
	var m CouponModel
	if err := r.db.WithContext(ctx).Where("code = ?", strings.ToUpper(code)).First(&m).Error; err != nil {
		return nil, notFound(err, core.ErrNotFound, "coupon "+code)
	}
	return m.ToDomain(), nil
}

// ListActive retrieves active coupons usable at the branch
func (r *CouponRepository) ListActive(ctx context.Context, branchID string) ([]*core.Coupon, error) {
	query := r.db.WithContext(ctx).Model(&CouponModel{}).Where("is_active = ?", true)
	if branchID != "" {
		query = query.Where("branch_id = '' OR branch_id = ?", branchID)
	}

	var models []CouponModel
	if err := query.Order("code").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}

	coupons := make([]*core.Coupon, len(models))
	for i := range models {
		coupons[i] = models[i].ToDomain()
	}
	return coupons, nil
}

// Save inserts or replaces a coupon under its upper-case code
func (r *CouponRepository) Save(ctx context.Context, coupon *core.Coupon) error {
	m := couponModelFromDomain(coupon)
	m.Code = strings.ToUpper(m.Code)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
		return fmt.Errorf("failed to save coupon: %w", err)
	}
	return nil
}

// StaffRepository implements core.StaffRepository
type StaffRepository struct {
	db *gorm.DB
}

// GetByID retrieves a staff user by ID
func (r *StaffRepository) GetByID(ctx context.Context, id string) (*core.StaffUser, error) {
	var m StaffUserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, core.ErrNotFound, "staff "+id)
	}
	return m.ToDomain(), nil
}

// GetActiveByBranch retrieves the branch's active staff
func (r *StaffRepository) GetActiveByBranch(ctx context.Context, branchID string) ([]*core.StaffUser, error) {
	var models []StaffUserModel
	if err := r.db.WithContext(ctx).
		Where("branch_id = ? AND is_active = ?", branchID, true).
		Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to get active staff: %w", err)
	}

	users := make([]*core.StaffUser, len(models))
	for i := range models {
		users[i] = models[i].ToDomain()
	}
	return users, nil
}

// Save inserts or replaces a staff user
func (r *StaffRepository) Save(ctx context.Context, user *core.StaffUser) error {
	m := &StaffUserModel{
		ID:          user.ID,
		BranchID:    user.BranchID,
		Name:        user.Name,
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
		PinHash:     user.PinHash,
		IsActive:    user.IsActive,
		CreatedAt:   user.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
		return fmt.Errorf("failed to save staff user: %w", err)
	}
	return nil
}
