package service_test

import (
	"context"
	"testing"
	"time"

	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/memoria/internal/ledger/service"
	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateEntryIsIdempotentPerSource(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	svc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node})

	input := ledgerdomain.EntryInput{
		SourceType: ledgerdomain.SourceTypeCommission,
		SourceID:   node.Generate(),
		Currency:   "eur",
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Postings:   ledgerdomain.Transfer(ledgerdomain.AccountCodeCommissionExpense, ledgerdomain.AccountCodeCommissionPayable, 4109),
	}

	inserted, err := svc.CreateEntry(ctx, input)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = svc.CreateEntry(ctx, input)
	require.NoError(t, err)
	assert.False(t, inserted)

	var entries, lines int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntry{}).Count(&entries).Error)
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntryLine{}).Count(&lines).Error)
	assert.Equal(t, int64(1), entries)
	assert.Equal(t, int64(2), lines)

	payable, err := svc.Balance(ctx, ledgerdomain.AccountCodeCommissionPayable, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(-4109), payable)
}

func TestCreateEntryRejectsUnbalanced(t *testing.T) {
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	svc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node})

	_, err := svc.CreateEntry(context.Background(), ledgerdomain.EntryInput{
		SourceType: ledgerdomain.SourceTypePayout,
		SourceID:   node.Generate(),
		Currency:   "EUR",
		OccurredAt: time.Now(),
		Postings: []ledgerdomain.Posting{
			{Account: ledgerdomain.AccountCodeCommissionPayable, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 100},
			{Account: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 90},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrUnbalancedEntry)
}

func TestCreateEntryValidatesInput(t *testing.T) {
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	svc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node})
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, ledgerdomain.EntryInput{SourceType: ledgerdomain.SourceTypePayout})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSourceID)

	_, err = svc.CreateEntry(ctx, ledgerdomain.EntryInput{
		SourceType: ledgerdomain.SourceTypePayout,
		SourceID:   node.Generate(),
		Currency:   "EUR",
		OccurredAt: time.Now(),
		Postings:   ledgerdomain.Transfer(ledgerdomain.AccountCodeCash, ledgerdomain.AccountCodeRevenueOrders, 10)[:1],
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryLines)
}
