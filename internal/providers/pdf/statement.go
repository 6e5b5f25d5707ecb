package pdf

import (
	"context"
	"errors"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is preformatted; the renderer does no money arithmetic.
type StatementData struct {
	PayoutNumber     string
	PartnerName      string
	PartnerEmail     string
	IssuedAt         string
	PaymentReference string
	Notes            string
	Lines            []StatementLine
	Total            string
	CommissionCount  int
}

type StatementLine struct {
	CommissionID string
	OrderID      string
	EarnedAt     string
	OrderTotal   string
	Percent      string
	Amount       string
}

type MarotoProvider struct{}

func (p *MarotoProvider) GenerateStatement(ctx context.Context, data StatementData) ([]byte, error) {
	if data.PayoutNumber == "" {
		return nil, errors.New("statement requires a payout number")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payout statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.PayoutNumber, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New(data.PartnerName, props.Text{Style: fontstyle.Bold}),
			text.New(data.PartnerEmail, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Issued: "+data.IssuedAt, props.Text{Align: align.Right}),
			text.New("Reference: "+orDash(data.PaymentReference), props.Text{Top: 5, Align: align.Right}),
		),
	)

	if data.Notes != "" {
		m.AddRow(12, text.NewCol(12, data.Notes, props.Text{Size: 9, Style: fontstyle.Italic}))
	}

	m.AddRow(10,
		text.NewCol(3, "Commission", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Order", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Earned", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Order total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "%", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Lines {
		m.AddRow(8,
			text.NewCol(3, item.CommissionID, props.Text{Size: 8}),
			text.NewCol(3, item.OrderID, props.Text{Size: 8}),
			text.NewCol(2, item.EarnedAt, props.Text{Size: 8}),
			text.NewCol(2, item.OrderTotal, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(1, item.Percent, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(1, item.Amount, props.Text{Size: 8, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Commissions", props.Text{Size: 9}),
		text.NewCol(3, strconv.Itoa(data.CommissionCount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total paid", props.Text{Size: 10, Style: fontstyle.Bold}),
		text.NewCol(3, data.Total, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
