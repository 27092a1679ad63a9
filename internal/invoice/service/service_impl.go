package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	"github.com/orcafacil/billing/internal/invoice/render"
	obsmetrics "github.com/orcafacil/billing/internal/observability/metrics"
	"github.com/orcafacil/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const codePrefix = "FAT"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       invoicedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       invoicedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, draft *invoicedomain.Draft) (*invoicedomain.Invoice, error) {
	if draft == nil || len(draft.Lines) == 0 {
		return nil, invoicedomain.ErrNoBillableItems
	}
	if draft.Discount < 0 || draft.Discount > draft.Subtotal {
		return nil, invoicedomain.ErrInvalidDiscount
	}
	if draft.Total != draft.Subtotal-draft.Discount {
		return nil, invoicedomain.ErrInvalidDiscount
	}

	now := time.Now().UTC()
	inv := &invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		TenantID:       draft.TenantID,
		ServiceOrderID: draft.ServiceOrderID,
		Status:         invoicedomain.StatusPending,
		IssueDate:      draft.IssueDate,
		DueDate:        draft.DueDate,
		Subtotal:       draft.Subtotal,
		Discount:       draft.Discount,
		Total:          draft.Total,
		Notes:          draft.Notes,
		IsAutomatic:    draft.IsAutomatic,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.insertWithCode(ctx, tx, inv); err != nil {
		return nil, err
	}

	items := make([]invoicedomain.InvoiceItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		sourceID := line.SourceItemID
		item := invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			TenantID:    draft.TenantID,
			InvoiceID:   inv.ID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitAmount:  line.UnitAmount,
			Amount:      line.UnitAmount * line.Quantity,
			CreatedAt:   now,
		}
		if sourceID != 0 {
			item.ServiceOrderItemID = &sourceID
		}
		items = append(items, item)
	}
	if err := s.repo.InsertItems(ctx, tx, items); err != nil {
		return nil, err
	}
	inv.Items = items

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceIssued(ctx, inv.IsAutomatic)
	}
	s.log.Info("invoice created",
		zap.String("code", inv.Code),
		zap.Int64("total", inv.Total),
		zap.Bool("automatic", inv.IsAutomatic),
	)
	return inv, nil
}

// insertWithCode allocates a sequential tenant code. A concurrent writer can
// win the same code; one retry with a fresh sequence value covers it.
func (s *Service) insertWithCode(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	for attempt := 0; attempt < 2; attempt++ {
		seq, err := s.repo.NextSequence(ctx, tx, inv.TenantID, codePrefix)
		if err != nil {
			return err
		}
		inv.Code = fmt.Sprintf("%s-%s-%04d", codePrefix, inv.IssueDate.Format("20060102"), seq)

		err = s.repo.Insert(ctx, tx, inv)
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) || attempt == 1 {
			return err
		}
		s.log.Warn("invoice code collision, retrying", zap.String("code", inv.Code))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, code string) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindByCode(ctx, s.db, tenantID, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FindItems(ctx, s.db, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID snowflake.ID, code string, note string) (*invoicedomain.Invoice, error) {
	var cancelled *invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.LockByCode(ctx, tx, tenantID, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		if inv.Status == invoicedomain.StatusPaid {
			return invoicedomain.ErrInvoicePaid
		}
		if inv.Status == invoicedomain.StatusCancelled {
			cancelled = inv
			return nil
		}

		notes := inv.Notes
		if note = strings.TrimSpace(note); note != "" {
			notes = strings.TrimSpace(notes + " " + note)
		}
		if err := s.repo.UpdateStatus(ctx, tx, inv.ID, invoicedomain.StatusCancelled, notes); err != nil {
			return err
		}
		// The cancelled invoice no longer covers its order lines.
		if err := s.repo.ReleaseBilledLines(ctx, tx, inv.ID); err != nil {
			return err
		}
		inv.Status = invoicedomain.StatusCancelled
		inv.Notes = notes
		cancelled = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("invoice cancelled", zap.String("code", cancelled.Code))
	return cancelled, nil
}

func (s *Service) AttachPreference(ctx context.Context, tenantID snowflake.ID, code, preferenceID string) error {
	inv, err := s.repo.FindByCode(ctx, s.db, tenantID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	return s.repo.UpdatePreference(ctx, s.db, inv.ID, strings.TrimSpace(preferenceID))
}

func (s *Service) RenderPDF(ctx context.Context, tenantID snowflake.ID, code string) ([]byte, error) {
	inv, err := s.Get(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}
	customerName, customerEmail := s.loadCustomer(ctx, tenantID, inv.ServiceOrderID)
	return render.InvoicePDF(inv, customerName, customerEmail)
}

func (s *Service) loadCustomer(ctx context.Context, tenantID, orderID snowflake.ID) (string, string) {
	var row struct {
		Name  string `gorm:"column:name"`
		Email string `gorm:"column:email"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT c.name, c.email
		 FROM service_orders so
		 JOIN customers c ON c.id = so.customer_id
		 WHERE so.tenant_id = ? AND so.id = ?`,
		tenantID,
		orderID,
	).Scan(&row).Error; err != nil {
		return "", ""
	}
	return strings.TrimSpace(row.Name), strings.TrimSpace(row.Email)
}
