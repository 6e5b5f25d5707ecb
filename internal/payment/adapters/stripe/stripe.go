package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
)

const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventCheckoutExpired   = "checkout.session.expired"
	defaultTolerance       = 5 * time.Minute
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Adapter{webhookSecret: secret, tolerance: tolerance, now: now}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age < 0 {
		age = -age
	}
	if age > a.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

// Sign computes the v1 signature for timestamp.payload.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a Stripe-Signature value, used by tests and local tooling.
func SignatureHeader(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, Sign(secret, ts, payload))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	meta := paymentdomain.EventMeta{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		OccurredAt:      timestamp(event.Created, a.now),
	}

	if meta.Type != eventCheckoutCompleted && meta.Type != eventCheckoutExpired {
		return paymentdomain.Unhandled{EventMeta: meta, Reason: "event_type"}, nil
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	completed := meta.Type == eventCheckoutCompleted

	switch readMetadataValue(session.Metadata, "type") {
	case paymentdomain.MetadataTypeOrder:
		number := readMetadataValue(session.Metadata, "order_number")
		if number == "" {
			return paymentdomain.Unhandled{EventMeta: meta, Reason: "metadata_missing"}, nil
		}
		if !completed {
			return paymentdomain.OrderPaymentExpired{EventMeta: meta, OrderNumber: number}, nil
		}
		return paymentdomain.OrderPaymentCompleted{
			EventMeta:        meta,
			OrderNumber:      number,
			PaymentReference: session.paymentReference(),
			ReferralCode:     readMetadataValue(session.Metadata, "referral_code"),
			CustomerEmail:    session.customerEmail(),
			AmountTotal:      session.AmountTotal,
			Currency:         strings.ToUpper(strings.TrimSpace(session.Currency)),
			Shipping:         session.shippingAddress(),
		}, nil
	case paymentdomain.MetadataTypeCodeBatch:
		batchID, err := snowflake.ParseString(readMetadataValue(session.Metadata, "batch_id"))
		if err != nil || batchID == 0 {
			return paymentdomain.Unhandled{EventMeta: meta, Reason: "metadata_missing"}, nil
		}
		if !completed {
			return paymentdomain.CodeBatchExpired{EventMeta: meta, BatchID: batchID}, nil
		}
		return paymentdomain.CodeBatchCompleted{
			EventMeta:        meta,
			BatchID:          batchID,
			PaymentReference: session.paymentReference(),
		}, nil
	default:
		return paymentdomain.Unhandled{EventMeta: meta, Reason: "metadata_type"}, nil
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type checkoutSession struct {
	ID              string           `json:"id"`
	PaymentIntent   *string          `json:"payment_intent"`
	AmountTotal     int64            `json:"amount_total"`
	Currency        string           `json:"currency"`
	CustomerEmail   *string          `json:"customer_email"`
	CustomerDetails *customerDetails `json:"customer_details"`
	ShippingDetails *shippingDetails `json:"shipping_details"`
	Metadata        map[string]any   `json:"metadata"`
}

type customerDetails struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type shippingDetails struct {
	Name    string        `json:"name"`
	Phone   string        `json:"phone"`
	Address stripeAddress `json:"address"`
}

type stripeAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

func (s checkoutSession) paymentReference() string {
	if s.PaymentIntent != nil && strings.TrimSpace(*s.PaymentIntent) != "" {
		return strings.TrimSpace(*s.PaymentIntent)
	}
	return s.ID
}

func (s checkoutSession) customerEmail() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != nil {
		return strings.TrimSpace(*s.CustomerDetails.Email)
	}
	if s.CustomerEmail != nil {
		return strings.TrimSpace(*s.CustomerEmail)
	}
	return ""
}

func (s checkoutSession) shippingAddress() *orderdomain.ShippingAddress {
	if s.ShippingDetails == nil {
		return nil
	}
	addr := orderdomain.ShippingAddress{
		Name:       strings.TrimSpace(s.ShippingDetails.Name),
		Line1:      strings.TrimSpace(s.ShippingDetails.Address.Line1),
		Line2:      strings.TrimSpace(s.ShippingDetails.Address.Line2),
		City:       strings.TrimSpace(s.ShippingDetails.Address.City),
		PostalCode: strings.TrimSpace(s.ShippingDetails.Address.PostalCode),
		State:      strings.TrimSpace(s.ShippingDetails.Address.State),
		Country:    strings.ToUpper(strings.TrimSpace(s.ShippingDetails.Address.Country)),
		Phone:      strings.TrimSpace(s.ShippingDetails.Phone),
	}
	if addr.Phone == "" && s.CustomerDetails != nil && s.CustomerDetails.Phone != nil {
		addr.Phone = strings.TrimSpace(*s.CustomerDetails.Phone)
	}
	if addr.Empty() {
		return nil
	}
	return &addr
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(created int64, now func() time.Time) time.Time {
	if created == 0 {
		return now()
	}
	return time.Unix(created, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
