package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(dbtest.Open(t))
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeByRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := Actor{Role: "admin", ID: "1790000000000000001"}
	partner := Actor{Role: "Partner", ID: "1790000000000000002"}

	assert.NoError(t, svc.Authorize(ctx, admin, ObjectPayout, ActionPayoutCreate))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectCommission, ActionCommissionApprove))
	assert.NoError(t, svc.Authorize(ctx, partner, ObjectCommission, ActionCommissionView))
	assert.NoError(t, svc.Authorize(ctx, partner, ObjectCodeBatch, ActionCodeBatchRequest))

	assert.ErrorIs(t, svc.Authorize(ctx, partner, ObjectCommission, ActionCommissionApprove), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, partner, ObjectPayout, ActionPayoutCreate), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, admin, ObjectCodeBatch, ActionCodeBatchRequest), ErrForbidden)
}

func TestAuthorizeRejectsUnknownActors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: "customer", ID: "1"}, ObjectOrder, ActionOrderFulfill), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: "admin"}, ObjectOrder, ActionOrderFulfill), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: "partner", ID: "abc"}, ObjectPayout, ActionPayoutView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: "admin", ID: "1790000000000000001"}, "", ActionPayoutView), ErrInvalidObject)
}

func TestSeedPoliciesAreIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	policies, err := enforcer.GetFilteredPolicy(0, "role:partner")
	require.NoError(t, err)
	assert.Len(t, policies, 5)
}
