package service

import (
	"context"
	"testing"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.tables.CreateTable(ctx, testBranch, " T10 ", 6)
	require.NoError(t, err)
	assert.Equal(t, "T10", created.Number)
	assert.Equal(t, core.TableStatusAvailable, created.Status)
	assert.Equal(t, int64(1), created.Version)

	_, err = f.tables.CreateTable(ctx, testBranch, "T11", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.tables.CreateTable(ctx, "", "T11", 2)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	tables, err := f.tables.ListTables(ctx, testBranch)
	require.NoError(t, err)
	assert.Len(t, tables, 4)

	reserved, err := f.tables.SetStatus(ctx, created.ID, core.TableStatusReserved, created.Version)
	require.NoError(t, err)
	assert.Equal(t, core.TableStatusReserved, reserved.Status)

	_, err = f.tables.SetStatus(ctx, created.ID, core.TableStatusAvailable, created.Version)
	var stale *StaleVersionError
	assert.ErrorAs(t, err, &stale)

	_, err = f.tables.SetStatus(ctx, created.ID, core.TableStatusOccupied, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.tables.SetStatus(ctx, created.ID, "dirty", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.tables.GetTable(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrTableNotFound)
}

func TestTableService_OpenOrdersBlockStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createLattes(t, "T1")

	_, err := f.tables.SetStatus(ctx, "T1", core.TableStatusMaintenance, 0)
	assert.ErrorIs(t, err, core.ErrTableUnavailable)

	_, err = f.orders.Cancel(ctx, o.ID, "", 0, "waiter-1")
	require.NoError(t, err)

	table, err := f.tables.SetStatus(ctx, "T1", core.TableStatusMaintenance, 0)
	require.NoError(t, err)
	assert.Equal(t, core.TableStatusMaintenance, table.Status)
}
