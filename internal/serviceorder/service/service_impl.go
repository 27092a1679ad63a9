package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/orcafacil/billing/internal/audit/domain"
	budgetdomain "github.com/orcafacil/billing/internal/budget/domain"
	customerdomain "github.com/orcafacil/billing/internal/customer/domain"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	notifdomain "github.com/orcafacil/billing/internal/notification/domain"
	orderdomain "github.com/orcafacil/billing/internal/serviceorder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         orderdomain.Repository
	BudgetRepo   budgetdomain.Repository
	CustomerRepo customerdomain.Repository
	InvoiceSvc   invoicedomain.Service
	AuditSvc     auditdomain.Service
	Dispatcher   notifdomain.Dispatcher `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         orderdomain.Repository
	budgetRepo   budgetdomain.Repository
	customerRepo customerdomain.Repository
	invoiceSvc   invoicedomain.Service
	auditSvc     auditdomain.Service
	dispatcher   notifdomain.Dispatcher
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("serviceorder.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		budgetRepo:   p.BudgetRepo,
		customerRepo: p.CustomerRepo,
		invoiceSvc:   p.InvoiceSvc,
		auditSvc:     p.AuditSvc,
		dispatcher:   p.Dispatcher,
	}
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, code string) (*orderdomain.ServiceOrder, error) {
	order, err := s.repo.FindByCode(ctx, s.db, tenantID, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FindItems(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// Transition moves an order through its lifecycle. The status update and any
// invoice insert commit in one transaction; an invoice failure on completion
// is deferred for manual retry instead of rolling the status back.
func (s *Service) Transition(ctx context.Context, tenantID snowflake.ID, code string, target orderdomain.Status, opts orderdomain.TransitionOptions) (*orderdomain.Result, error) {
	code = strings.TrimSpace(code)
	result := &orderdomain.Result{}

	notify := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.LockByCode(ctx, tx, tenantID, code)
		if err != nil {
			return err
		}

		cmds, err := orderdomain.Plan(order.Status, target, opts)
		if err != nil {
			return err
		}

		for _, cmd := range cmds {
			switch c := cmd.(type) {
			case orderdomain.CommandCreateInvoice:
				inv, deferred, err := s.runCreateInvoice(ctx, tx, order, c.Partial, opts.DeliveredItemIDs)
				if err != nil {
					return err
				}
				result.Invoice = inv
				result.InvoiceDeferred = deferred
			case orderdomain.CommandNotify:
				notify = true
			}
		}

		if err := s.repo.UpdateStatus(ctx, tx, order.ID, target); err != nil {
			return err
		}
		order.Status = target
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("service order transition",
		zap.String("code", code),
		zap.String("status", string(target)),
		zap.Bool("invoice_created", result.Invoice != nil),
	)

	if notify {
		s.notifyCompleted(ctx, result)
	}
	return result, nil
}

// runCreateInvoice bills the selected unbilled lines inside a savepoint so
// a failure does not take the status update down with it.
func (s *Service) runCreateInvoice(ctx context.Context, tx *gorm.DB, order *orderdomain.ServiceOrder, partial bool, deliveredIDs []snowflake.ID) (*invoicedomain.Invoice, bool, error) {
	var created *invoicedomain.Invoice

	err := tx.Transaction(func(sp *gorm.DB) error {
		inv, err := s.createInvoice(ctx, sp, order, partial, deliveredIDs)
		if err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err == nil {
		return created, false, nil
	}
	if errors.Is(err, invoicedomain.ErrNoBillableItems) {
		// Everything already billed; the transition is an idempotent re-save.
		return nil, false, nil
	}
	if errors.Is(err, orderdomain.ErrNoDeliveredItems) {
		return nil, false, err
	}
	if partial {
		// A partial delivery without an invoice is a caller error, not a
		// deferred completion.
		return nil, false, err
	}

	s.log.Error("automatic invoice failed, deferring",
		zap.String("order", order.Code),
		zap.Error(err),
	)
	s.auditAutocreateFailure(ctx, order, err)
	return nil, true, nil
}

func (s *Service) createInvoice(ctx context.Context, tx *gorm.DB, order *orderdomain.ServiceOrder, partial bool, deliveredIDs []snowflake.ID) (*invoicedomain.Invoice, error) {
	items, err := s.repo.FindUnbilledItems(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}

	fullOrder := true
	if partial && len(deliveredIDs) > 0 {
		selected := make([]orderdomain.ServiceOrderItem, 0, len(items))
		wanted := make(map[snowflake.ID]bool, len(deliveredIDs))
		for _, id := range deliveredIDs {
			wanted[id] = true
		}
		for _, item := range items {
			if wanted[item.ID] {
				selected = append(selected, item)
			}
		}
		if len(selected) == 0 {
			return nil, orderdomain.ErrNoDeliveredItems
		}
		fullOrder = len(selected) == len(items)
		items = selected
	}
	if len(items) == 0 {
		return nil, invoicedomain.ErrNoBillableItems
	}

	budget, err := s.budgetRepo.FindByID(ctx, tx, order.TenantID, order.BudgetID)
	if err != nil {
		return nil, err
	}
	cust, err := s.customerRepo.FindByID(ctx, tx, order.TenantID, order.CustomerID)
	if err != nil {
		return nil, err
	}

	lines := make([]invoicedomain.BillableLine, 0, len(items))
	itemIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		lines = append(lines, invoicedomain.BillableLine{
			SourceItemID: item.ID,
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitAmount:   item.UnitAmount,
		})
		itemIDs = append(itemIDs, item.ID)
	}

	// The order discount lands on the invoice that bills the whole order in
	// one shot. Partial deliveries and remainders bill at face value so the
	// discount is never applied twice.
	var discount int64
	if fullOrder && !s.orderHasBilledLines(ctx, tx, order.ID) {
		discount = order.Discount
	}

	draft, err := invoicedomain.BuildDraft(order.TenantID, order.ID, lines, &invoicedomain.BudgetContext{
		BudgetID:     budget.ID,
		BudgetCode:   budget.Code,
		CustomerID:   cust.ID,
		CustomerName: cust.Name,
	}, invoicedomain.BuildOptions{
		Discount:  discount,
		Automatic: true,
	})
	if err != nil {
		return nil, err
	}

	inv, err := s.invoiceSvc.Create(ctx, tx, draft)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkItemsInvoiced(ctx, tx, itemIDs, time.Now().UTC()); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) orderHasBilledLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) bool {
	var count int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM service_order_items WHERE service_order_id = ? AND invoiced_at IS NOT NULL`,
		orderID,
	).Scan(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// CreateInvoice bills the remaining lines of a completed order. Companion to
// the automatic path when invoicing was deferred by a failure.
func (s *Service) CreateInvoice(ctx context.Context, tenantID snowflake.ID, code string) (*invoicedomain.Invoice, error) {
	var created *invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.LockByCode(ctx, tx, tenantID, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		if order.Status != orderdomain.StatusCompleted {
			return orderdomain.ErrInvalidTransition
		}
		inv, err := s.createInvoice(ctx, tx, order, false, nil)
		if err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) notifyCompleted(ctx context.Context, result *orderdomain.Result) {
	if s.dispatcher == nil || result.Order == nil {
		return
	}
	cust, err := s.customerRepo.FindByID(ctx, s.db, result.Order.TenantID, result.Order.CustomerID)
	if err != nil {
		s.log.Warn("completion notification skipped", zap.Error(err))
		return
	}
	n := notifdomain.OrderNotification{
		TenantID:      result.Order.TenantID,
		OrderCode:     result.Order.Code,
		CustomerName:  cust.Name,
		CustomerEmail: cust.Email,
	}
	if result.Invoice != nil {
		n.InvoiceCode = result.Invoice.Code
	}
	if err := s.dispatcher.OrderCompleted(ctx, n); err != nil {
		s.log.Warn("completion notification failed", zap.Error(err))
	}
}

func (s *Service) auditAutocreateFailure(ctx context.Context, order *orderdomain.ServiceOrder, cause error) {
	tenantID := order.TenantID
	targetID := order.Code
	metadata := map[string]any{
		"error":       cause.Error(),
		"order_total": order.Total,
	}
	if err := s.auditSvc.Record(ctx, &tenantID, "invoice.autocreate_failed", "service_order", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit deferred invoice", zap.Error(err))
	}
}
