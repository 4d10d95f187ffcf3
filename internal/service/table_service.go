package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TableService manages the floor plan
type TableService struct {
	uow *unitOfWork
	now func() time.Time
}

// NewTableService creates a new table service
func NewTableService(store core.Store, logger *zap.Logger, writeRetries int, now func() time.Time) *TableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &TableService{
		uow: &unitOfWork{store: store, logger: logger, retries: writeRetries},
		now: now,
	}
}

// CreateTable adds an empty, available table
func (s *TableService) CreateTable(ctx context.Context, branchID, number string, capacity int) (*core.Table, error) {
	branchID, number = strings.TrimSpace(branchID), strings.TrimSpace(number)
	if branchID == "" || number == "" {
		return nil, fmt.Errorf("%w: branch and table number are required", core.ErrInvalidInput)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", core.ErrInvalidInput)
	}

	table := &core.Table{
		ID:        uuid.New().String(),
		BranchID:  branchID,
		Number:    number,
		Capacity:  capacity,
		Status:    core.TableStatusAvailable,
		UpdatedAt: s.now(),
	}
	if err := s.uow.store.Tables().Create(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return table, nil
}

// GetTable retrieves a table by ID
func (s *TableService) GetTable(ctx context.Context, id string) (*core.Table, error) {
	return s.uow.store.Tables().GetByID(ctx, id)
}

// ListTables returns a branch's tables ordered by number
func (s *TableService) ListTables(ctx context.Context, branchID string) ([]*core.Table, error) {
	return s.uow.store.Tables().ListByBranch(ctx, branchID)
}

// SetStatus changes a table's floor status. Occupancy is derived from
// open orders, so only an empty table can be set, and never to occupied.
func (s *TableService) SetStatus(ctx context.Context, tableID string, status core.TableStatus, expectedVersion int64) (*core.Table, error) {
	switch status {
	case core.TableStatusAvailable, core.TableStatusReserved, core.TableStatusMaintenance:
	case core.TableStatusOccupied:
		return nil, fmt.Errorf("%w: occupied follows open orders and cannot be set", core.ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unknown table status %q", core.ErrInvalidInput, status)
	}

	var out *core.Table
	err := s.uow.run(ctx, "set_table_status", func(tx core.Repositories, _ *effects) error {
		table, err := tx.Tables().GetForUpdate(ctx, tableID)
		if err != nil {
			return err
		}
		if err := checkVersion(table.ID, expectedVersion, table.Version); err != nil {
			return err
		}
		if len(table.CurrentOrders) > 0 {
			return fmt.Errorf("%w: table %s has %d open orders", core.ErrTableUnavailable, table.ID, len(table.CurrentOrders))
		}
		table.Status = status
		table.UpdatedAt = s.now()
		if err := tx.Tables().Update(ctx, table); err != nil {
			return err
		}
		out = table
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
