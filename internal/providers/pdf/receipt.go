package pdf

import (
	"context"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type MarotoProvider struct{}

func NewMarotoProvider() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) GeneratePayoutReceipt(ctx context.Context, data PayoutReceiptData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	issuer := data.IssuerName
	if strings.TrimSpace(issuer) == "" {
		issuer = "payoutd"
	}

	m.AddRow(20,
		text.NewCol(8, "Payout receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, issuer, props.Text{
			Size:  10,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Reference: "+data.Reference, props.Text{Top: 0}),
			text.New("Requested: "+data.RequestedAt, props.Text{Top: 5}),
			text.New("Settled: "+valueOrDash(data.SettledAt), props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Status: "+strings.ToUpper(data.Status), props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New("Transfer: "+valueOrDash(data.TransferCode), props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(4, line.NewCol(12))

	m.AddRow(30,
		col.New(12).Add(
			text.New("Paid to", props.Text{Style: fontstyle.Bold}),
			text.New(data.AccountName, props.Text{Top: 5}),
			text.New(data.BankName, props.Text{Top: 10}),
			text.New(data.AccountNumber, props.Text{Top: 15}),
		),
	)

	m.AddRow(15,
		text.NewCol(8, "Amount", props.Text{Size: 12, Style: fontstyle.Bold}),
		text.NewCol(4, data.Currency+" "+data.Amount, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	if strings.TrimSpace(data.FailureReason) != "" {
		m.AddRow(15,
			text.NewCol(12, "Reason: "+data.FailureReason, props.Text{Size: 9}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func valueOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
