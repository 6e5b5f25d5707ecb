package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStatement(t *testing.T) {
	out, err := New().GenerateStatement(context.Background(), StatementData{
		PayoutNumber:    "PO-20260301-ABC234",
		PartnerName:     "Atelier Noord",
		PartnerEmail:    "hello@atelier.test",
		IssuedAt:        "2026-03-01",
		Total:           "60.00 EUR",
		CommissionCount: 1,
		Lines: []StatementLine{
			{CommissionID: "1", OrderID: "2", EarnedAt: "2026-02-01", OrderTotal: "400.00", Percent: "15", Amount: "60.00"},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateStatementRequiresNumber(t *testing.T) {
	_, err := New().GenerateStatement(context.Background(), StatementData{})
	assert.Error(t, err)
}
