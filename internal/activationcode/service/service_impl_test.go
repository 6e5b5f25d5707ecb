package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/activationcode/domain"
	"github.com/smallbiznis/memoria/internal/activationcode/generator"
	"github.com/smallbiznis/memoria/internal/activationcode/repository"
	"github.com/smallbiznis/memoria/internal/activationcode/service"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/config"
	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cyclingGenerator replays a fixed candidate list forever.
type cyclingGenerator struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (g *cyclingGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[g.next%len(g.codes)]
	g.next++
	return code, nil
}

// staleRepo pretends nothing is stored so inserts hit the unique index.
type staleRepo struct {
	domain.Repository
}

func (staleRepo) Exists(context.Context, *gorm.DB, string) (bool, error) { return false, nil }

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{
		db:    dbtest.Open(t),
		node:  dbtest.Node(t),
		clock: clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
}

func (f fixture) service(gen domain.Generator, repo domain.Repository) domain.Service {
	if repo == nil {
		repo = repository.Provide()
	}
	return service.NewService(service.Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		GenID:     f.node,
		Repo:      repo,
		Generator: gen,
		Clock:     f.clock,
		Config:    config.CodeConfig{AttemptBudget: 100},
	})
}

func (f fixture) issueRequest(quantity int) domain.IssueRequest {
	return domain.IssueRequest{
		BatchID:         f.node.Generate(),
		PartnerID:       f.node.Generate(),
		ProductType:     catalog.ProductNFCPlate,
		HostingDuration: catalog.HostingLifetime,
		Quantity:        quantity,
	}
}

func TestConcurrentBatchesNeverShareCodes(t *testing.T) {
	f := newFixture(t)
	gen, err := generator.NewRandom(generator.DefaultShape)
	require.NoError(t, err)
	svc := f.service(gen, nil)
	ctx := context.Background()

	seed, err := svc.Issue(ctx, f.issueRequest(20))
	require.NoError(t, err)
	require.Equal(t, 20, seed.Issued)

	var wg sync.WaitGroup
	results := make([]domain.IssueResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Issue(ctx, f.issueRequest(50))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 50, results[i].Issued)
		assert.Zero(t, results[i].Shortfall)
	}

	var total, distinct int64
	require.NoError(t, f.db.Model(&domain.ActivationCode{}).Count(&total).Error)
	require.NoError(t, f.db.Raw(`SELECT COUNT(DISTINCT code) FROM activation_codes`).Scan(&distinct).Error)
	assert.Equal(t, int64(120), total)
	assert.Equal(t, total, distinct)
}

func TestIssueReportsShortfallWhenCandidatesRunOut(t *testing.T) {
	f := newFixture(t)
	gen := &cyclingGenerator{codes: []string{"MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}}
	svc := f.service(gen, nil)

	result, err := svc.Issue(context.Background(), f.issueRequest(10))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Issued)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 7, result.Shortfall)
}

func TestGenerateShortfallDoesNotError(t *testing.T) {
	f := newFixture(t)
	gen := &cyclingGenerator{codes: []string{"MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}}
	svc := f.service(gen, nil)

	result, err := svc.Generate(context.Background(), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}, result.Codes)
	assert.Equal(t, 7, result.Shortfall)
}

func TestIssueRegeneratesCodesThatLostInsertRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taken := &cyclingGenerator{codes: []string{"MEM-AAAA-AAAA"}}
	_, err := f.service(taken, nil).Issue(ctx, f.issueRequest(1))
	require.NoError(t, err)

	gen := &cyclingGenerator{codes: []string{"MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}}
	svc := f.service(gen, staleRepo{Repository: repository.Provide()})

	req := f.issueRequest(2)
	result, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Issued)
	assert.Zero(t, result.Shortfall)

	codes, err := svc.ListByBatch(ctx, req.BatchID)
	require.NoError(t, err)
	got := []string{}
	for _, c := range codes {
		got = append(got, c.Code)
	}
	assert.ElementsMatch(t, []string{"MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}, got)
}

func TestIssueTopsUpInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t)
	gen, err := generator.NewRandom(generator.DefaultShape)
	require.NoError(t, err)
	svc := f.service(gen, nil)
	ctx := context.Background()

	req := f.issueRequest(5)
	first, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Issued)

	second, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, second.Issued)
	assert.Equal(t, 5, second.Total)

	counts, err := svc.CountByBatch(ctx, req.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts.Total)
	assert.Zero(t, counts.Used)
}

func TestIssueValidatesRequest(t *testing.T) {
	f := newFixture(t)
	svc := f.service(&cyclingGenerator{codes: []string{"MEM-AAAA-AAAA"}}, nil)

	_, err := svc.Issue(context.Background(), f.issueRequest(0))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.Issue(context.Background(), domain.IssueRequest{Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidBatch)
}

func TestRedeemIsSingleUse(t *testing.T) {
	f := newFixture(t)
	svc := f.service(&cyclingGenerator{codes: []string{"MEM-AAAA-AAAA"}}, nil)
	ctx := context.Background()

	req := f.issueRequest(1)
	_, err := svc.Issue(ctx, req)
	require.NoError(t, err)

	memorial := f.node.Generate()
	code, err := svc.Redeem(ctx, " mem-aaaa-aaaa ", memorial)
	require.NoError(t, err)
	assert.True(t, code.IsUsed)
	require.NotNil(t, code.MemorialID)
	assert.Equal(t, memorial, *code.MemorialID)

	_, err = svc.Redeem(ctx, "MEM-AAAA-AAAA", f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrCodeAlreadyUsed)

	counts, err := svc.CountByBatch(ctx, req.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Used)
}

func TestRedeemRejectsExpiredAndUnknown(t *testing.T) {
	f := newFixture(t)
	svc := f.service(&cyclingGenerator{codes: []string{"MEM-EEEE-EEEE"}}, nil)
	ctx := context.Background()

	expiresAt := f.clock.Now().Add(24 * time.Hour)
	req := f.issueRequest(1)
	req.ExpiresAt = &expiresAt
	_, err := svc.Issue(ctx, req)
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = svc.Redeem(ctx, "MEM-EEEE-EEEE", f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrCodeExpired)

	_, err = svc.Redeem(ctx, "MEM-ZZZZ-ZZZZ", f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}
