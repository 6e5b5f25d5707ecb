package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderEveryKind(t *testing.T) {
	cases := []struct {
		kind    string
		payload map[string]any
		subject string
		body    string
	}{
		{"order.confirmation", map[string]any{"order_number": "MEM-1001", "total": "41.09 EUR"}, "Your memorial order MEM-1001 is confirmed", "41.09 EUR"},
		{"order.fulfillment_required", map[string]any{"order_number": "MEM-1001", "product_type": "plaque", "quantity": 2}, "Order MEM-1001 needs manufacturing", "plaque"},
		{"commission.earned", map[string]any{"order_number": "MEM-1001", "amount": "4.11 EUR"}, "You earned a commission", "4.11 EUR"},
		{"code_batch.ready", map[string]any{"batch_id": "77", "quantity": 10, "product_type": "qr_tag"}, "Your activation codes are ready", "qr_tag"},
		{"code_batch.failed", map[string]any{"batch_id": "77", "note": "payment failed"}, "Activation code batch needs attention", "payment failed"},
		{"payout.created", map[string]any{"payout_number": "PAY-0001", "amount": "120.00 EUR", "commission_count": 3}, "Payout PAY-0001 is on its way", "120.00 EUR"},
	}

	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			subject, body, err := Render(tc.kind, tc.payload)
			require.NoError(t, err)
			require.Equal(t, tc.subject, subject)
			require.Contains(t, body, tc.body)
		})
	}
}

func TestRenderUnknownKind(t *testing.T) {
	_, _, err := Render("order.lost", nil)
	require.Error(t, err)
}

func TestRenderEscapesPayload(t *testing.T) {
	_, body, err := Render("code_batch.failed", map[string]any{"batch_id": "1", "note": "<script>x</script>"})
	require.NoError(t, err)
	require.False(t, strings.Contains(body, "<script>"))
}

func TestBuildMessageStripsHeaderBreaks(t *testing.T) {
	msg := string(buildMessage("from@memoria.local", []string{"a@x.io", "b@x.io"}, "hi\r\nBcc: evil@x.io", "<p>ok</p>"))
	require.Contains(t, msg, "To: a@x.io, b@x.io\r\n")
	require.Contains(t, msg, "Subject: hi  Bcc: evil@x.io\r\n")
	require.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>ok</p>"))
}
