package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillableLine is a service order line eligible for invoicing. Lines already
// stamped with invoiced_at must not be offered to the builder.
type BillableLine struct {
	SourceItemID snowflake.ID
	Description  string
	Quantity     int64
	UnitAmount   int64
}

// BudgetContext carries the budget and customer the invoice is issued
// against. Both are required.
type BudgetContext struct {
	BudgetID     snowflake.ID
	BudgetCode   string
	CustomerID   snowflake.ID
	CustomerName string
}

type BuildOptions struct {
	IssueDate time.Time
	DueInDays int
	Discount  int64
	Notes     string
	Automatic bool
}

// Draft is a fully computed invoice that has not been persisted. Code
// allocation happens at persistence time, inside the caller's transaction.
type Draft struct {
	TenantID       snowflake.ID
	ServiceOrderID snowflake.ID
	IssueDate      time.Time
	DueDate        time.Time
	Subtotal       int64
	Discount       int64
	Total          int64
	Notes          string
	IsAutomatic    bool
	Lines          []BillableLine
}

const defaultDueInDays = 30

// BuildDraft computes invoice amounts from the billable lines. It performs
// no IO and never mutates its inputs.
func BuildDraft(tenantID, orderID snowflake.ID, lines []BillableLine, budget *BudgetContext, opts BuildOptions) (*Draft, error) {
	if budget == nil || budget.BudgetID == 0 || budget.CustomerID == 0 {
		return nil, ErrMissingBudgetContext
	}

	billable := make([]BillableLine, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitAmount < 0 {
			continue
		}
		subtotal += line.UnitAmount * line.Quantity
		billable = append(billable, line)
	}
	if len(billable) == 0 {
		return nil, ErrNoBillableItems
	}

	if opts.Discount < 0 || opts.Discount > subtotal {
		return nil, ErrInvalidDiscount
	}

	issue := opts.IssueDate
	if issue.IsZero() {
		issue = time.Now().UTC()
	}
	dueIn := opts.DueInDays
	if dueIn <= 0 {
		dueIn = defaultDueInDays
	}

	return &Draft{
		TenantID:       tenantID,
		ServiceOrderID: orderID,
		IssueDate:      issue,
		DueDate:        issue.AddDate(0, 0, dueIn),
		Subtotal:       subtotal,
		Discount:       opts.Discount,
		Total:          subtotal - opts.Discount,
		Notes:          strings.TrimSpace(opts.Notes),
		IsAutomatic:    opts.Automatic,
		Lines:          billable,
	}, nil
}
