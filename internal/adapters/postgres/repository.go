// Package postgres stores orders, tables, the stats cache and reference
// data in Postgres through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/logging"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Repository implements core.Store plus the catalog, coupon and staff
// repositories using GORM with the pgx driver
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Postgres repository instance
func NewRepository(dbURL string, logger *zap.Logger) (*Repository, error) {
	// GORM with pgx driver (postgres driver uses pgx under the hood)
	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: gormlogger.New(logging.NewPrintfAdapter(logger), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Repository{db: db}, nil
}

// Migrate creates or updates every table the service owns.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&OrderModel{},
		&TableModel{},
		&StatsModel{},
		&CatalogItemModel{},
		&CouponModel{},
		&StaffUserModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Orders returns the OrderRepository implementation
func (r *Repository) Orders() core.OrderRepository { return &orderRepository{db: r.db} }

// Tables returns the TableRepository implementation
func (r *Repository) Tables() core.TableRepository { return &tableRepository{db: r.db} }

// Stats returns the StatsRepository implementation
func (r *Repository) Stats() core.StatsRepository { return &statsRepository{db: r.db} }

// Catalog returns the catalog implementation
func (r *Repository) Catalog() *CatalogRepository { return &CatalogRepository{db: r.db} }

// Coupons returns the coupon implementation
func (r *Repository) Coupons() *CouponRepository { return &CouponRepository{db: r.db} }

// Staff returns the staff implementation
func (r *Repository) Staff() *StaffRepository { return &StaffRepository{db: r.db} }

// WithTx runs fn inside a database transaction. Repositories handed to fn
// share the transaction, so row locks taken by GetForUpdate are held until
// commit.
func (r *Repository) WithTx(ctx context.Context, fn func(repos core.Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// notFound maps gorm.ErrRecordNotFound to the domain sentinel.
func notFound(err error, sentinel error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, sentinel)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
