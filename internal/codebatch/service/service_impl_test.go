package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	activationcodedomain "github.com/smallbiznis/memoria/internal/activationcode/domain"
	acgenerator "github.com/smallbiznis/memoria/internal/activationcode/generator"
	acrepository "github.com/smallbiznis/memoria/internal/activationcode/repository"
	acservice "github.com/smallbiznis/memoria/internal/activationcode/service"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/codebatch/domain"
	"github.com/smallbiznis/memoria/internal/codebatch/repository"
	"github.com/smallbiznis/memoria/internal/codebatch/service"
	"github.com/smallbiznis/memoria/internal/config"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
	partnerrepository "github.com/smallbiznis/memoria/internal/partner/repository"
	partnerservice "github.com/smallbiznis/memoria/internal/partner/service"
	"github.com/smallbiznis/memoria/internal/pricing"
	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	codes   activationcodedomain.Service
	svc     domain.Service
	partner snowflake.ID
}

func setup(t *testing.T, overrides ...pricing.Override) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	partnerID := node.Generate()
	dbtest.InsertPartner(t, db, dbtest.PartnerRow{ID: partnerID})

	partners := partnerservice.NewService(partnerservice.Params{
		DB: db, Log: log, Repo: partnerrepository.Provide(), Clock: clk,
	})
	gen, err := acgenerator.NewRandom(acgenerator.DefaultShape)
	require.NoError(t, err)
	codes := acservice.NewService(acservice.Params{
		DB: db, Log: log, GenID: node, Repo: acrepository.Provide(), Generator: gen, Clock: clk,
		Config: config.CodeConfig{AttemptBudget: 100},
	})

	svc := service.NewService(service.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       repository.Provide(),
		Clock:      clk,
		Pricing:    config.NewStaticPricingHolder("EUR", overrides),
		PartnerSvc: partners,
		CodeSvc:    codes,
	})
	return fixture{db: db, node: node, clock: clk, codes: codes, svc: svc, partner: partnerID}
}

func TestRequestPricesFromDefaults(t *testing.T) {
	f := setup(t)

	batch, err := f.svc.Request(context.Background(), domain.RequestInput{
		PartnerID:       f.partner,
		Quantity:        10,
		ProductType:     "QR_PLATE",
		HostingDuration: "5y",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, batch.Status)
	assert.Equal(t, catalog.ProductQRPlate, batch.ProductType)
	assert.Equal(t, int64(7900), batch.UnitAmount)
	assert.Equal(t, int64(79000), batch.TotalAmount)
	assert.Equal(t, "EUR", batch.Currency)
}

func TestRequestUsesOverrideInForce(t *testing.T) {
	f := setup(t, pricing.Override{
		Key:           pricing.Key{ProductType: catalog.ProductQRPlate, HostingDuration: catalog.HostingFiveYears},
		UnitAmount:    5900,
		EffectiveFrom: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	quote, err := f.svc.Quote(context.Background(), domain.RequestInput{
		PartnerID: f.partner, Quantity: 3, ProductType: "qr_plate", HostingDuration: "5y",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5900), quote.UnitAmount)
	assert.Equal(t, int64(17700), quote.TotalAmount)
}

func TestRequestValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, domain.RequestInput{PartnerID: f.partner, Quantity: 0, ProductType: "qr_plate", HostingDuration: "5y"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.Request(ctx, domain.RequestInput{PartnerID: f.partner, Quantity: domain.MaxQuantity + 1, ProductType: "qr_plate", HostingDuration: "5y"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.Request(ctx, domain.RequestInput{PartnerID: f.partner, Quantity: 1, ProductType: "mug", HostingDuration: "5y"})
	assert.ErrorIs(t, err, catalog.ErrInvalidProductType)
}

func TestRequestRequiresActivePartner(t *testing.T) {
	f := setup(t)
	suspended := f.node.Generate()
	dbtest.InsertPartner(t, f.db, dbtest.PartnerRow{ID: suspended, Status: "suspended"})

	_, err := f.svc.Request(context.Background(), domain.RequestInput{
		PartnerID: suspended, Quantity: 1, ProductType: "qr_plate", HostingDuration: "5y",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrPartnerInactive)
}

func TestLifecycleIsConditional(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	batch, err := f.svc.Request(ctx, domain.RequestInput{PartnerID: f.partner, Quantity: 2, ProductType: "qr_plate", HostingDuration: "5y"})
	require.NoError(t, err)

	res, err := f.svc.MarkGenerated(ctx, batch.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied, "generated is only reachable from approved")

	res, err = f.svc.MarkPaid(ctx, batch.ID, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.StatusApproved, res.Batch.Status)
	require.NotNil(t, res.Batch.PaymentReference)
	assert.Equal(t, "cs_test_1", *res.Batch.PaymentReference)

	res, err = f.svc.MarkPaid(ctx, batch.ID, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, res.Applied)

	require.NoError(t, f.svc.RecordError(ctx, batch.ID, "insert failed"))
	loaded, err := f.svc.Get(ctx, batch.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ErrorNote)

	res, err = f.svc.MarkGenerated(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Nil(t, res.Batch.ErrorNote)

	res, err = f.svc.Cancel(ctx, batch.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, domain.StatusGenerated, res.Batch.Status)
}

func TestListByPartnerCarriesCounts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		batch, err := f.svc.Request(ctx, domain.RequestInput{PartnerID: f.partner, Quantity: 2, ProductType: "qr_plate", HostingDuration: "5y"})
		require.NoError(t, err)
		ids = append(ids, batch.ID)
		f.clock.Advance(time.Minute)
	}

	_, err := f.codes.Issue(ctx, activationcodedomain.IssueRequest{
		BatchID: ids[0], PartnerID: f.partner, ProductType: catalog.ProductQRPlate,
		HostingDuration: catalog.HostingFiveYears, Quantity: 2,
	})
	require.NoError(t, err)

	page, err := f.svc.ListByPartner(ctx, domain.ListRequest{PartnerID: f.partner})
	require.NoError(t, err)
	require.Len(t, page.Batches, 3)
	assert.Equal(t, ids[2], page.Batches[0].ID, "newest first")
	assert.Equal(t, ids[0], page.Batches[2].ID)
	assert.Equal(t, int64(2), page.Batches[2].TotalCodes)
	assert.False(t, page.PageInfo.HasMore)

	first, err := f.svc.ListByPartner(ctx, domain.ListRequest{PartnerID: f.partner, Pagination: paginationOf(2, "")})
	require.NoError(t, err)
	require.Len(t, first.Batches, 2)
	require.True(t, first.PageInfo.HasMore)

	second, err := f.svc.ListByPartner(ctx, domain.ListRequest{PartnerID: f.partner, Pagination: paginationOf(2, first.PageInfo.NextPageToken)})
	require.NoError(t, err)
	require.Len(t, second.Batches, 1)
	assert.Equal(t, ids[0], second.Batches[0].ID)
}

func paginationOf(size int, token string) pagination.Pagination {
	return pagination.Pagination{PageSize: size, PageToken: token}
}
