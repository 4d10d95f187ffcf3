package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/adapters/postgres"
	"github.com/dumu-tech/cafe-orders/internal/config"
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/logging"
	"github.com/dumu-tech/cafe-orders/internal/seed"
	"github.com/dumu-tech/cafe-orders/internal/service"
	"go.uber.org/zap"
)

func main() {
	branchID := flag.String("branch", "main", "branch to seed")
	tableCount := flag.Int("tables", 8, "number of tables to create")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	repo, err := postgres.NewRepository(cfg.DBURL, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		zlog.Fatal("failed to migrate schema", zap.Error(err))
	}

	items, err := seed.Catalog(*branchID)
	if err != nil {
		zlog.Fatal("failed to parse menu data", zap.Error(err))
	}
	for _, item := range items {
		if err := repo.Catalog().Save(ctx, item); err != nil {
			zlog.Fatal("failed to upsert catalog item", zap.String("name", item.Name), zap.Error(err))
		}
	}
	zlog.Info("catalog seeded", zap.Int("items", len(items)))

	created := 0
	for _, t := range seed.Tables(*branchID, *tableCount) {
		_, err := repo.Tables().GetByID(ctx, t.ID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, core.ErrTableNotFound):
			zlog.Fatal("failed to check table", zap.String("table_id", t.ID), zap.Error(err))
		}
		t.UpdatedAt = time.Now()
		if err := repo.Tables().Create(ctx, t); err != nil {
			zlog.Fatal("failed to create table", zap.String("table_id", t.ID), zap.Error(err))
		}
		created++
	}
	zlog.Info("tables seeded", zap.Int("created", created), zap.Int("requested", *tableCount))

	for _, c := range seed.Coupons() {
		if err := repo.Coupons().Save(ctx, c); err != nil {
			zlog.Fatal("failed to upsert coupon", zap.String("code", c.Code), zap.Error(err))
		}
	}

	for _, m := range seed.DefaultStaff {
		hash, err := service.HashPIN(m.PIN)
		if err != nil {
			zlog.Fatal("failed to hash PIN", zap.String("name", m.Name), zap.Error(err))
		}
		user := &core.StaffUser{
			ID:          seed.StaffID(*branchID, m.Phone),
			BranchID:    *branchID,
			Name:        m.Name,
			PhoneNumber: m.Phone,
			Role:        m.Role,
			PinHash:     hash,
			IsActive:    true,
			CreatedAt:   time.Now(),
		}
		if err := repo.Staff().Save(ctx, user); err != nil {
			zlog.Fatal("failed to upsert staff user", zap.String("name", m.Name), zap.Error(err))
		}
	}

	zlog.Info("seeding complete",
		zap.String("branch_id", *branchID),
		zap.Int("coupons", len(seed.Coupons())),
		zap.Int("staff", len(seed.DefaultStaff)))
}
