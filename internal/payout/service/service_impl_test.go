package service_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/clock"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/memoria/internal/commission/repository"
	commissionservice "github.com/smallbiznis/memoria/internal/commission/service"
	"github.com/smallbiznis/memoria/internal/config"
	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/memoria/internal/ledger/service"
	notificationdomain "github.com/smallbiznis/memoria/internal/notification/domain"
	partnerrepository "github.com/smallbiznis/memoria/internal/partner/repository"
	partnerservice "github.com/smallbiznis/memoria/internal/partner/service"
	"github.com/smallbiznis/memoria/internal/payout/domain"
	"github.com/smallbiznis/memoria/internal/payout/repository"
	"github.com/smallbiznis/memoria/internal/payout/service"
	"github.com/smallbiznis/memoria/internal/providers/pdf"
	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// hookedCommissions runs afterSettle once the payout's UPDATE has executed,
// while its transaction is still open.
type hookedCommissions struct {
	commissiondomain.Service
	afterSettle func()
}

func (h *hookedCommissions) SettleTx(ctx context.Context, tx *gorm.DB, partnerID snowflake.ID, currency string, payoutID snowflake.ID, number string) (commissiondomain.SettleResult, error) {
	res, err := h.Service.SettleTx(ctx, tx, partnerID, currency, payoutID, number)
	if h.afterSettle != nil {
		h.afterSettle()
	}
	return res, err
}

type recordingNotifier struct {
	notificationdomain.Service
	messages []notificationdomain.Message
}

func (n *recordingNotifier) Enqueue(_ context.Context, msg notificationdomain.Message) (bool, error) {
	n.messages = append(n.messages, msg)
	return true, nil
}

type fixture struct {
	notifier    *recordingNotifier
	db          *gorm.DB
	node        *snowflake.Node
	commissions commissiondomain.Service
	ledger      ledgerdomain.Service
	hooked      *hookedCommissions
	partner     snowflake.ID
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 31, 16, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Config{SettlementCurrency: "EUR"}

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	commissions := commissionservice.NewService(commissionservice.Params{
		DB: db, Log: log, GenID: node, Repo: commissionrepository.Provide(), Clock: clk, Config: cfg, LedgerSvc: ledger,
	})

	partner := node.Generate()
	dbtest.InsertPartner(t, db, dbtest.PartnerRow{ID: partner})

	return fixture{
		db:          db,
		node:        node,
		commissions: commissions,
		ledger:      ledger,
		hooked:      &hookedCommissions{Service: commissions},
		partner:     partner,
		notifier:    &recordingNotifier{},
	}
}

func (f fixture) service(t *testing.T, number service.NumberFunc) domain.Service {
	t.Helper()
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 31, 16, 0, 0, 0, time.UTC))
	return service.NewService(service.Params{
		DB:            f.db,
		Log:           log,
		GenID:         f.node,
		Repo:          repository.Provide(),
		Clock:         clk,
		Config:        config.Config{SettlementCurrency: "EUR"},
		CommissionSvc: f.hooked,
		PartnerSvc:    partnerservice.NewService(partnerservice.Params{DB: f.db, Log: log, Repo: partnerrepository.Provide(), Clock: clk}),
		LedgerSvc:     f.ledger,
		PDF:           pdf.New(),
		Notifier:      f.notifier,
		Number:        number,
	})
}

func (f fixture) commission(t *testing.T, amount int64, status string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	dbtest.InsertCommission(t, f.db, dbtest.CommissionRow{
		ID:             id,
		PartnerID:      f.partner,
		OrderID:        f.node.Generate(),
		ReferralCodeID: f.node.Generate(),
		Amount:         amount,
		Status:         status,
	})
	return id
}

func TestCreatePayoutSnapshotsApprovedCommissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.commission(t, 1000, "approved")
	f.commission(t, 2000, "approved")
	f.commission(t, 3000, "approved")
	late := f.commission(t, 3000, "pending")

	approved := make(chan error, 1)
	f.hooked.afterSettle = func() {
		// Blocks on the store until the payout transaction commits.
		go func() {
			_, err := f.commissions.Approve(ctx, late)
			approved <- err
		}()
	}

	payout, err := f.service(t, nil).CreatePayout(ctx, domain.CreateRequest{
		PartnerID:        f.partner,
		PaymentReference: "SEPA-2026-03-31",
	})
	require.NoError(t, err)
	require.NoError(t, <-approved)

	assert.Equal(t, int64(6000), payout.TotalAmount)
	assert.Equal(t, 3, payout.CommissionCount)
	assert.Regexp(t, `^PO-20260331-[A-HJ-NP-Z2-9]{6}$`, payout.PayoutNumber)

	lateCommission, err := f.commissions.Get(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.StatusApproved, lateCommission.Status)
	assert.Nil(t, lateCommission.PayoutID)

	members, err := f.commissions.ListByPayout(ctx, payout.ID)
	require.NoError(t, err)
	var sum int64
	for _, m := range members {
		assert.Equal(t, commissiondomain.StatusPaid, m.Status)
		sum += m.CommissionAmount
	}
	assert.Equal(t, payout.TotalAmount, sum)

	cash, err := f.ledger.Balance(ctx, ledgerdomain.AccountCodeCash, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(-6000), cash)

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Equal(t, notificationdomain.KindPayoutCreated, msg.Kind)
	assert.Equal(t, "payout.created:"+payout.ID.String(), msg.DedupeKey)
	assert.Equal(t, payout.PayoutNumber, msg.Payload["payout_number"])
}

func TestCreatePayoutWithoutApprovedCommissions(t *testing.T) {
	f := setup(t)
	f.commission(t, 1000, "pending")
	f.commission(t, 2000, "paid")

	_, err := f.service(t, nil).CreatePayout(context.Background(), domain.CreateRequest{PartnerID: f.partner})
	assert.ErrorIs(t, err, domain.ErrNoEligibleCommissions)

	var count int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "no payout row survives a rollback")
}

func TestCreatePayoutRetriesNumberCollision(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.commission(t, 1000, "approved")

	numbers := []string{"PO-20260331-AAAAAA", "PO-20260331-AAAAAA", "PO-20260331-BBBBBB"}
	next := 0
	number := func(time.Time) (string, error) {
		n := numbers[next]
		next++
		return n, nil
	}
	svc := f.service(t, number)

	first, err := svc.CreatePayout(ctx, domain.CreateRequest{PartnerID: f.partner})
	require.NoError(t, err)
	assert.Equal(t, "PO-20260331-AAAAAA", first.PayoutNumber)

	f.commission(t, 500, "approved")
	second, err := svc.CreatePayout(ctx, domain.CreateRequest{PartnerID: f.partner})
	require.NoError(t, err)
	assert.Equal(t, "PO-20260331-BBBBBB", second.PayoutNumber)
	assert.Equal(t, int64(500), second.TotalAmount)
}

func TestCreatePayoutUnknownPartner(t *testing.T) {
	f := setup(t)
	_, err := f.service(t, nil).CreatePayout(context.Background(), domain.CreateRequest{PartnerID: f.node.Generate()})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNoEligibleCommissions))
}

func TestStatementAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.commission(t, 4109, "approved")
	svc := f.service(t, nil)

	payout, err := svc.CreatePayout(ctx, domain.CreateRequest{PartnerID: f.partner, Notes: "March"})
	require.NoError(t, err)

	doc, err := svc.Statement(ctx, payout.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))

	page, err := svc.ListByPartner(ctx, domain.ListRequest{PartnerID: f.partner})
	require.NoError(t, err)
	require.Len(t, page.Payouts, 1)
	assert.Equal(t, payout.PayoutNumber, page.Payouts[0].PayoutNumber)
	require.NotNil(t, page.Payouts[0].Notes)
	assert.Equal(t, "March", *page.Payouts[0].Notes)
}

func TestRandomNumberShape(t *testing.T) {
	n, err := service.RandomNumber(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Regexp(t, `^PO-20260102-[A-HJ-NP-Z2-9]{6}$`, n)
}
