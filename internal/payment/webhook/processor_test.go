package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	activationcodedomain "github.com/smallbiznis/memoria/internal/activationcode/domain"
	acgenerator "github.com/smallbiznis/memoria/internal/activationcode/generator"
	acrepository "github.com/smallbiznis/memoria/internal/activationcode/repository"
	acservice "github.com/smallbiznis/memoria/internal/activationcode/service"
	"github.com/smallbiznis/memoria/internal/clock"
	codebatchdomain "github.com/smallbiznis/memoria/internal/codebatch/domain"
	codebatchrepository "github.com/smallbiznis/memoria/internal/codebatch/repository"
	codebatchservice "github.com/smallbiznis/memoria/internal/codebatch/service"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/memoria/internal/commission/repository"
	commissionservice "github.com/smallbiznis/memoria/internal/commission/service"
	"github.com/smallbiznis/memoria/internal/config"
	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/memoria/internal/ledger/service"
	notificationdomain "github.com/smallbiznis/memoria/internal/notification/domain"
	notificationservice "github.com/smallbiznis/memoria/internal/notification/service"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
	orderrepository "github.com/smallbiznis/memoria/internal/order/repository"
	orderservice "github.com/smallbiznis/memoria/internal/order/service"
	partnerrepository "github.com/smallbiznis/memoria/internal/partner/repository"
	partnerservice "github.com/smallbiznis/memoria/internal/partner/service"
	"github.com/smallbiznis/memoria/internal/payment/adapters"
	"github.com/smallbiznis/memoria/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/memoria/internal/payment/repository"
	paymentservice "github.com/smallbiznis/memoria/internal/payment/service"
	"github.com/smallbiznis/memoria/internal/payment/webhook"
	referraldomain "github.com/smallbiznis/memoria/internal/referral/domain"
	referralrepository "github.com/smallbiznis/memoria/internal/referral/repository"
	referralservice "github.com/smallbiznis/memoria/internal/referral/service"
	"github.com/smallbiznis/memoria/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "whsec_memoria_test"

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

func (g *cyclingGenerator) replace(codes ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.codes = codes
	g.next = 0
}

type harness struct {
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	processor   *webhook.Processor
	orders      orderdomain.Service
	commissions commissiondomain.Service
	batches     codebatchdomain.Service
	codes       activationcodedomain.Service
	ledger      ledgerdomain.Service
	metrics     *sdkmetric.ManualReader
	partner     snowflake.ID
}

func newHarness(t *testing.T, gen activationcodedomain.Generator) harness {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Config{
		SettlementCurrency: "EUR",
		Webhook:            config.WebhookConfig{Provider: "stripe", SigningSecret: secret, ToleranceWindow: 5 * time.Minute},
		Notification:       config.NotificationConfig{AdminEmail: "ops@memoria.test"},
	}

	reader := sdkmetric.NewManualReader()
	metrics, err := obsmetrics.New(obsmetrics.Config{ServiceName: "memoria-test"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	if gen == nil {
		random, err := acgenerator.NewRandom(acgenerator.DefaultShape)
		require.NoError(t, err)
		gen = random
	}

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	partners := partnerservice.NewService(partnerservice.Params{DB: db, Log: log, Repo: partnerrepository.Provide(), Clock: clk})
	referrals := referralservice.NewService(referralservice.Params{DB: db, Log: log, Repo: referralrepository.Provide(), Clock: clk})
	orders := orderservice.NewService(orderservice.Params{DB: db, Log: log, GenID: node, Repo: orderrepository.Provide(), Clock: clk})
	commissions := commissionservice.NewService(commissionservice.Params{
		DB: db, Log: log, GenID: node, Repo: commissionrepository.Provide(), Clock: clk, Config: cfg, LedgerSvc: ledger,
	})
	codes := acservice.NewService(acservice.Params{
		DB: db, Log: log, GenID: node, Repo: acrepository.Provide(), Generator: gen, Clock: clk,
		Config: config.CodeConfig{AttemptBudget: 20}, ObsMetrics: metrics,
	})
	batches := codebatchservice.NewService(codebatchservice.Params{
		DB: db, Log: log, GenID: node, Repo: codebatchrepository.Provide(), Clock: clk,
		Pricing: config.NewStaticPricingHolder("EUR", nil), PartnerSvc: partners, CodeSvc: codes,
	})
	outbox := notificationservice.NewService(notificationservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Sender: notificationservice.NewSender(notificationservice.SenderParams{Cfg: config.Config{}, Log: log}),
	})

	handler := paymentservice.NewService(paymentservice.Params{
		DB:            db,
		Log:           log,
		Config:        cfg,
		OrderSvc:      orders,
		ReferralSvc:   referrals,
		CommissionSvc: commissions,
		CodeBatchSvc:  batches,
		CodeSvc:       codes,
		PartnerSvc:    partners,
		LedgerSvc:     ledger,
		Notifier:      outbox,
	})
	processor := webhook.NewProcessor(webhook.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Cfg:        cfg,
		Repo:       paymentrepository.Provide(),
		Adapters:   adapters.NewRegistry("stripe", stripe.NewFactory()),
		Handler:    handler,
		ObsMetrics: metrics,
	})

	partner := node.Generate()
	dbtest.InsertPartner(t, db, dbtest.PartnerRow{ID: partner, Email: "studio@partners.test"})

	return harness{
		db: db, node: node, clock: clk, processor: processor, orders: orders,
		commissions: commissions, batches: batches, codes: codes, ledger: ledger, metrics: reader, partner: partner,
	}
}

// counter sums every data point of an int64 counter.
func (h harness) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.metrics.Collect(context.Background(), &rm))
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			for _, point := range sum.DataPoints {
				total += point.Value
			}
		}
	}
	return total
}

func (h harness) event(t *testing.T, eventID string) paymentdomain.EventRecord {
	t.Helper()
	var record paymentdomain.EventRecord
	require.NoError(t, h.db.Where("provider_event_id = ?", eventID).First(&record).Error)
	return record
}

func (h harness) payload(t *testing.T, eventID, eventType string, session map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": h.clock.Now().Unix(),
		"data":    map[string]any{"object": session},
	})
	require.NoError(t, err)
	return raw
}

func (h harness) ingest(t *testing.T, payload []byte) (paymentdomain.Outcome, error) {
	t.Helper()
	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.SignatureHeader(secret, h.clock.Now(), payload))
	return h.processor.Ingest(context.Background(), "stripe", payload, headers)
}

func orderSession(number, referral string) map[string]any {
	metadata := map[string]any{"type": "order", "order_number": number}
	if referral != "" {
		metadata["referral_code"] = referral
	}
	return map[string]any{
		"id":               "cs_" + number,
		"payment_intent":   "pi_" + number,
		"amount_total":     24900,
		"currency":         "eur",
		"customer_details": map[string]any{"email": "ana@example.test"},
		"shipping_details": map[string]any{
			"name":    "Ana Maria",
			"address": map[string]any{"line1": "Kerkstraat 1", "city": "Utrecht", "postal_code": "3511 AB", "country": "NL"},
		},
		"metadata": metadata,
	}
}

func (h harness) seedOrder(t *testing.T, number string, referral snowflake.ID) (orderID, customerID snowflake.ID) {
	t.Helper()
	orderID = h.node.Generate()
	customerID = h.node.Generate()
	dbtest.InsertCustomer(t, h.db, customerID, number+"@customers.test")
	row := dbtest.OrderRow{
		ID:             orderID,
		OrderNumber:    number,
		CustomerID:     customerID,
		DiscountAmount: 2490,
		TotalAmount:    24900,
	}
	if referral != 0 {
		row.ReferralCodeID = &referral
	}
	dbtest.InsertOrder(t, h.db, row)
	return orderID, customerID
}

func (h harness) seedReferral(t *testing.T, code string) snowflake.ID {
	t.Helper()
	id := h.node.Generate()
	dbtest.InsertReferral(t, h.db, dbtest.ReferralRow{ID: id, Code: code, PartnerID: h.partner, CommissionPercent: "15"})
	return id
}

func count(t *testing.T, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestOrderPaymentDeliveredTwiceAppliesOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	referralID := h.seedReferral(t, "STUDIO15")
	orderID, customerID := h.seedOrder(t, "MEM-1001", 0)

	payload := h.payload(t, "evt_1", "checkout.session.completed", orderSession("MEM-1001", "STUDIO15"))

	first, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Empty(t, first.Warnings)

	again, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	// Same session redelivered under a new event id still applies nothing new.
	resent, err := h.ingest(t, h.payload(t, "evt_2", "checkout.session.completed", orderSession("MEM-1001", "STUDIO15")))
	require.NoError(t, err)
	assert.False(t, resent.Applied)
	assert.False(t, resent.Duplicate)

	order, err := h.orders.GetByNumber(ctx, "MEM-1001")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	require.NotNil(t, order.PaymentReference)
	assert.Equal(t, "pi_MEM-1001", *order.PaymentReference)
	require.NotNil(t, order.PaidAt)

	var commissions []commissiondomain.Commission
	require.NoError(t, h.db.Where("order_id = ?", orderID).Find(&commissions).Error)
	require.Len(t, commissions, 1)
	assert.Equal(t, int64(27390), commissions[0].OrderTotalBeforeDiscount)
	assert.Equal(t, int64(4109), commissions[0].CommissionAmount)
	assert.Equal(t, commissiondomain.StatusPending, commissions[0].Status)

	var referral referraldomain.ReferralCode
	require.NoError(t, h.db.Where("id = ?", referralID).First(&referral).Error)
	assert.True(t, referral.IsUsed)
	require.NotNil(t, referral.OrderID)
	assert.Equal(t, orderID, *referral.OrderID)

	var customer orderdomain.Customer
	require.NoError(t, h.db.Where("id = ?", customerID).First(&customer).Error)
	require.NotNil(t, customer.ShippingAddress)
	assert.Equal(t, "Utrecht", customer.ShippingAddress.Data().City)

	assert.Equal(t, int64(1), count(t, h.db, "supplier_orders", "order_id = ?", orderID))
	assert.Equal(t, int64(3), count(t, h.db, "notification_outbox", ""))
	assert.Equal(t, int64(2), count(t, h.db, "payment_events", "processed_at IS NOT NULL"))

	cash, err := h.ledger.Balance(ctx, ledgerdomain.AccountCodeCash, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(24900), cash)
}

func TestBadSignatureHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	h.seedOrder(t, "MEM-1002", 0)
	payload := h.payload(t, "evt_bad", "checkout.session.completed", orderSession("MEM-1002", ""))

	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.SignatureHeader("whsec_other", h.clock.Now(), payload))
	_, err := h.processor.Ingest(context.Background(), "stripe", payload, headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	order, err := h.orders.GetByNumber(context.Background(), "MEM-1002")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, order.Status)
	assert.Equal(t, int64(0), count(t, h.db, "payment_events", ""))
	assert.Equal(t, int64(0), count(t, h.db, "notification_outbox", ""))
}

func TestUnknownProvider(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.processor.Ingest(context.Background(), "paypal", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
}

func TestReferralCodeRedeemedByOneOrderOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.seedReferral(t, "SHARED10")
	first, _ := h.seedOrder(t, "MEM-2001", 0)
	second, _ := h.seedOrder(t, "MEM-2002", 0)

	payloads := [][]byte{
		h.payload(t, "evt_a", "checkout.session.completed", orderSession("MEM-2001", "SHARED10")),
		h.payload(t, "evt_b", "checkout.session.completed", orderSession("MEM-2002", "SHARED10")),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(payloads))
	for i, p := range payloads {
		wg.Add(1)
		go func(i int, p []byte) {
			defer wg.Done()
			_, errs[i] = h.ingest(t, p)
		}(i, p)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, int64(1), count(t, h.db, "commissions", ""))
	var holder referraldomain.ReferralCode
	require.NoError(t, h.db.Where("code = ?", "SHARED10").First(&holder).Error)
	require.NotNil(t, holder.OrderID)
	assert.Contains(t, []snowflake.ID{first, second}, *holder.OrderID)
	assert.Equal(t, int64(1), count(t, h.db, "commissions", "order_id = ?", *holder.OrderID))

	for _, number := range []string{"MEM-2001", "MEM-2002"} {
		order, err := h.orders.GetByNumber(context.Background(), number)
		require.NoError(t, err)
		assert.Equal(t, orderdomain.StatusPaid, order.Status)
	}
}

func TestOrderReferralFromOrderRecord(t *testing.T) {
	h := newHarness(t, nil)
	referralID := h.seedReferral(t, "LINKED15")
	orderID, _ := h.seedOrder(t, "MEM-2101", referralID)

	_, err := h.ingest(t, h.payload(t, "evt_linked", "checkout.session.completed", orderSession("MEM-2101", "")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, h.db, "commissions", "order_id = ? AND referral_code_id = ?", orderID, referralID))
}

func TestUnknownOrderIsAcknowledgedWithNote(t *testing.T) {
	h := newHarness(t, nil)
	outcome, err := h.ingest(t, h.payload(t, "evt_ghost", "checkout.session.completed", orderSession("MEM-404", "")))
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)

	var record paymentdomain.EventRecord
	require.NoError(t, h.db.Where("provider_event_id = ?", "evt_ghost").First(&record).Error)
	assert.NotNil(t, record.ProcessedAt)
	require.NotNil(t, record.ProcessingError)
	assert.Equal(t, "order_not_found", *record.ProcessingError)
}

func TestOrderExpiry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedOrder(t, "MEM-3001", 0)
	paidID := h.node.Generate()
	dbtest.InsertOrder(t, h.db, dbtest.OrderRow{ID: paidID, OrderNumber: "MEM-3002", TotalAmount: 1000, Status: "paid"})

	expire := func(number string) map[string]any {
		return map[string]any{"id": "cs_" + number, "metadata": map[string]any{"type": "order", "order_number": number}}
	}

	outcome, err := h.ingest(t, h.payload(t, "evt_x1", "checkout.session.expired", expire("MEM-3001")))
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	outcome, err = h.ingest(t, h.payload(t, "evt_x2", "checkout.session.expired", expire("MEM-3002")))
	require.NoError(t, err)
	assert.False(t, outcome.Applied)

	cancelled, err := h.orders.GetByNumber(ctx, "MEM-3001")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCancelled, cancelled.Status)
	paid, err := h.orders.GetByNumber(ctx, "MEM-3002")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, paid.Status)
}

func batchSession(id snowflake.ID) map[string]any {
	return map[string]any{
		"id":             "cs_batch_" + id.String(),
		"payment_intent": "pi_batch_" + id.String(),
		"metadata":       map[string]any{"type": "partner_code_batch", "batch_id": id.String()},
	}
}

func TestCodeBatchPaymentGeneratesCodesOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	batchID := h.node.Generate()
	dbtest.InsertCodeBatch(t, h.db, dbtest.CodeBatchRow{ID: batchID, PartnerID: h.partner, Quantity: 5})

	outcome, err := h.ingest(t, h.payload(t, "evt_batch_1", "checkout.session.completed", batchSession(batchID)))
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Empty(t, outcome.Warnings)

	_, err = h.ingest(t, h.payload(t, "evt_batch_2", "checkout.session.completed", batchSession(batchID)))
	require.NoError(t, err)

	batch, err := h.batches.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, codebatchdomain.StatusGenerated, batch.Status)
	assert.Nil(t, batch.ErrorNote)

	counts, err := h.codes.CountByBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts.Total)
	assert.Equal(t, int64(1), count(t, h.db, "notification_outbox", "kind = ?", string(notificationdomain.KindCodeBatchReady)))
	assert.Equal(t, int64(5), h.counter(t, "memoria_activation_codes_generated_total"))
	assert.Equal(t, int64(0), h.counter(t, "memoria_activation_code_shortfall_total"))

	revenue, err := h.ledger.Balance(ctx, ledgerdomain.AccountCodeRevenueCodes, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(-7900*5), revenue)
}

func TestCodeBatchShortfallIsRecordedOnBatch(t *testing.T) {
	gen := &cyclingGenerator{codes: []string{"MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}}
	h := newHarness(t, gen)
	ctx := context.Background()
	batchID := h.node.Generate()
	dbtest.InsertCodeBatch(t, h.db, dbtest.CodeBatchRow{ID: batchID, PartnerID: h.partner, Quantity: 10})

	outcome, err := h.ingest(t, h.payload(t, "evt_short", "checkout.session.completed", batchSession(batchID)))
	require.NoError(t, err, "the payment itself was applied")
	assert.True(t, outcome.Applied)
	assert.True(t, outcome.Retry)
	assert.NotEmpty(t, outcome.Warnings)

	batch, err := h.batches.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, codebatchdomain.StatusApproved, batch.Status)
	require.NotNil(t, batch.ErrorNote)
	assert.Contains(t, *batch.ErrorNote, "shortfall 7")

	counts, err := h.codes.CountByBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Total)
}

func TestCodeBatchExpiry(t *testing.T) {
	h := newHarness(t, nil)
	batchID := h.node.Generate()
	dbtest.InsertCodeBatch(t, h.db, dbtest.CodeBatchRow{ID: batchID, PartnerID: h.partner, Quantity: 2})

	outcome, err := h.ingest(t, h.payload(t, "evt_batch_x", "checkout.session.expired", batchSession(batchID)))
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	batch, err := h.batches.Get(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, codebatchdomain.StatusCancelled, batch.Status)
}

func TestUnhandledEventIsAcknowledged(t *testing.T) {
	h := newHarness(t, nil)
	outcome, err := h.ingest(t, h.payload(t, "evt_inv", "invoice.paid", map[string]any{"id": "in_1"}))
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)
	assert.Equal(t, int64(1), count(t, h.db, "payment_events", "processed_at IS NOT NULL"))
}

func TestCodeBatchShortfallIsToppedUpOnRedelivery(t *testing.T) {
	gen := &cyclingGenerator{codes: []string{"MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC"}}
	h := newHarness(t, gen)
	ctx := context.Background()
	batchID := h.node.Generate()
	dbtest.InsertCodeBatch(t, h.db, dbtest.CodeBatchRow{ID: batchID, PartnerID: h.partner, Quantity: 5})
	payload := h.payload(t, "evt_short", "checkout.session.completed", batchSession(batchID))

	first, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.True(t, first.Retry)

	record := h.event(t, "evt_short")
	assert.Nil(t, record.ProcessedAt)
	require.NotNil(t, record.ProcessingError)
	assert.Contains(t, *record.ProcessingError, "shortfall")

	gen.replace("MEM-AAAA-AAAA", "MEM-BBBB-BBBB", "MEM-CCCC-CCCC", "MEM-DDDD-DDDD", "MEM-EEEE-EEEE", "MEM-FFFF-FFFF")

	again, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.False(t, again.Duplicate)
	assert.False(t, again.Retry)
	assert.Empty(t, again.Warnings)

	batch, err := h.batches.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, codebatchdomain.StatusGenerated, batch.Status)
	assert.Nil(t, batch.ErrorNote)

	counts, err := h.codes.CountByBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts.Total)

	record = h.event(t, "evt_short")
	assert.NotNil(t, record.ProcessedAt)
	assert.Nil(t, record.ProcessingError)

	third, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.True(t, third.Duplicate)

	revenue, err := h.ledger.Balance(ctx, ledgerdomain.AccountCodeRevenueCodes, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(-7900*5), revenue)
	assert.Equal(t, int64(5), h.counter(t, "memoria_activation_codes_generated_total"))
	assert.Equal(t, int64(2), h.counter(t, "memoria_activation_code_shortfall_total"))
}

func TestOrderFollowUpFailureIsNotedAndRetried(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedReferral(t, "STUDIO15")
	orderID, _ := h.seedOrder(t, "MEM-4001", 0)
	payload := h.payload(t, "evt_partial", "checkout.session.completed", orderSession("MEM-4001", "STUDIO15"))

	require.NoError(t, h.db.Exec(`ALTER TABLE supplier_orders RENAME TO supplier_orders_offline`).Error)

	first, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.True(t, first.Retry)

	order, err := h.orders.GetByNumber(ctx, "MEM-4001")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	require.NotNil(t, order.ProcessingNote)
	assert.Contains(t, *order.ProcessingNote, "supplier_order")
	assert.Nil(t, h.event(t, "evt_partial").ProcessedAt)

	require.NoError(t, h.db.Exec(`ALTER TABLE supplier_orders_offline RENAME TO supplier_orders`).Error)

	again, err := h.ingest(t, payload)
	require.NoError(t, err)
	assert.False(t, again.Duplicate)
	assert.False(t, again.Retry)

	order, err = h.orders.GetByNumber(ctx, "MEM-4001")
	require.NoError(t, err)
	assert.Nil(t, order.ProcessingNote)
	assert.NotNil(t, h.event(t, "evt_partial").ProcessedAt)
	assert.Equal(t, int64(1), count(t, h.db, "supplier_orders", "order_id = ?", orderID))
	assert.Equal(t, int64(1), count(t, h.db, "commissions", "order_id = ?", orderID))

	cash, err := h.ledger.Balance(ctx, ledgerdomain.AccountCodeCash, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(24900), cash)
}

func TestSessionWithoutMetadataIsAcknowledged(t *testing.T) {
	h := newHarness(t, nil)
	outcome, err := h.ingest(t, h.payload(t, "evt_bare", "checkout.session.completed", map[string]any{
		"id":       "cs_bare",
		"metadata": map[string]any{"type": "order"},
	}))
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)
	assert.NotNil(t, h.event(t, "evt_bare").ProcessedAt)
}
