package reservation_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-purchase/internal/models"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupLedgerDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.TicketType)(nil)))

	now := time.Now()
	types := []models.TicketType{
		{ID: "type-a", EventID: "event-1", Name: "GA", Capacity: 10, SaleStart: now.Add(-time.Hour), SaleEnd: now.Add(time.Hour), PriceCents: 2500},
		{ID: "type-b", EventID: "event-1", Name: "VIP", Capacity: 2, SaleStart: now.Add(-time.Hour), SaleEnd: now.Add(time.Hour), PriceCents: 9000},
	}
	_, err = bunDB.NewInsert().Model(&types).Exec(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func insertBoundedType(t *testing.T, bunDB *bun.DB, id string, capacity, maxPerOrder int) {
	t.Helper()
	now := time.Now()
	tt := models.TicketType{
		ID: id, EventID: "event-1", Name: "Bounded", Capacity: capacity,
		MaxPerOrder: maxPerOrder,
		SaleStart:   now.Add(-time.Hour), SaleEnd: now.Add(time.Hour), PriceCents: 2500,
	}
	_, err := bunDB.NewInsert().Model(&tt).Exec(context.Background())
	require.NoError(t, err)
}

func insertLastUnitType(t *testing.T, bunDB *bun.DB, id string) {
	t.Helper()
	now := time.Now()
	tt := models.TicketType{
		ID: id, EventID: "event-1", Name: "Last", Capacity: 1,
		SaleStart: now.Add(-time.Hour), SaleEnd: now.Add(time.Hour), PriceCents: 2500,
	}
	_, err := bunDB.NewInsert().Model(&tt).Exec(context.Background())
	require.NoError(t, err)
}

func soldOf(t *testing.T, bunDB *bun.DB, id string) int {
	t.Helper()
	var tt models.TicketType
	require.NoError(t, bunDB.NewSelect().Model(&tt).Where("id = ?", id).Scan(context.Background()))
	return tt.Sold
}
