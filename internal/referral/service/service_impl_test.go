package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/referral/domain"
	"github.com/smallbiznis/memoria/internal/referral/repository"
	"github.com/smallbiznis/memoria/internal/referral/service"
	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClaimTxConsumesOnce(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)

	partnerID := node.Generate()
	referralID := node.Generate()
	dbtest.InsertPartner(t, db, dbtest.PartnerRow{ID: partnerID})
	dbtest.InsertReferral(t, db, dbtest.ReferralRow{ID: referralID, Code: "ROSE-10", PartnerID: partnerID})

	svc := service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
	})

	firstOrder, secondOrder := node.Generate(), node.Generate()

	first, err := svc.ClaimTx(ctx, db, referralID, firstOrder)
	require.NoError(t, err)
	assert.True(t, first.Claimed)
	assert.True(t, first.HeldByOrder)

	replay, err := svc.ClaimTx(ctx, db, referralID, firstOrder)
	require.NoError(t, err)
	assert.False(t, replay.Claimed)
	assert.True(t, replay.HeldByOrder)

	other, err := svc.ClaimTx(ctx, db, referralID, secondOrder)
	require.NoError(t, err)
	assert.False(t, other.Claimed)
	assert.False(t, other.HeldByOrder)
	require.NotNil(t, other.Code.OrderID)
	assert.Equal(t, firstOrder, *other.Code.OrderID)

	code, err := svc.FindByCode(ctx, " rose-10 ")
	require.NoError(t, err)
	assert.True(t, code.IsUsed)
	assert.Equal(t, "15", code.CommissionPercent.String())

	_, err = svc.FindByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrReferralCodeNotFound)
}
