package render

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
)

const dateLayout = "02/01/2006"

// InvoicePDF renders a persisted invoice as a PDF document.
func InvoicePDF(inv *invoicedomain.Invoice, customerName, customerEmail string) ([]byte, error) {
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Fatura "+inv.Code, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Emissão: "+inv.IssueDate.Format(dateLayout), props.Text{Top: 0}),
			text.New("Vencimento: "+inv.DueDate.Format(dateLayout), props.Text{Top: 4}),
			text.New("Situação: "+string(inv.Status), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New(customerName, props.Text{Style: fontstyle.Bold}),
			text.New(customerEmail, props.Text{Top: 4}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Descrição", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qtd", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Valor unitário", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Valor", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range inv.Items {
		m.AddRow(10,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, FormatMoney(item.UnitAmount), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, FormatMoney(item.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, FormatMoney(inv.Subtotal), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Desconto", props.Text{Size: 9}),
		text.NewCol(2, FormatMoney(inv.Discount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, FormatMoney(inv.Total), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if notes := strings.TrimSpace(inv.Notes); notes != "" {
		m.AddRow(15,
			text.NewCol(12, notes, props.Text{Size: 8, Top: 5}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// FormatMoney renders cents as Brazilian currency, e.g. 123456 -> "R$ 1.234,56".
func FormatMoney(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), frac)
}
