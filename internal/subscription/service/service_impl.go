package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Request(ctx context.Context, tenantID snowflake.ID, planID string, amount int64, currency string) (*domain.PlanSubscription, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, domain.ErrInvalidPlan
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "BRL"
	}

	now := time.Now().UTC()
	sub := &domain.PlanSubscription{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		PlanID:    planID,
		Status:    domain.StatusPending,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, sub); err != nil {
		return nil, err
	}

	s.log.Info("plan subscription requested",
		zap.String("plan_id", planID),
		zap.Int64("amount", amount),
	)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.PlanSubscription, error) {
	return s.repo.FindByID(ctx, s.db, tenantID, id)
}
