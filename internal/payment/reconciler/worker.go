package reconciler

import (
	"context"
	"time"

	"github.com/orcafacil/billing/internal/config"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"github.com/orcafacil/billing/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	RowTimeout   time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = time.Minute
	}
	if c.RowTimeout <= 0 {
		c.RowTimeout = 30 * time.Second
	}
	return c
}

func workerConfigFromApp(cfg config.Config) WorkerConfig {
	return WorkerConfig{
		BatchSize:    cfg.WebhookBatchSize,
		PollInterval: cfg.WebhookPollInterval,
	}.withDefaults()
}

type WorkerParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Repo    paymentdomain.Repository
	Service *Service
	Locker  *ratelimit.Locker `optional:"true"`
}

// Worker drains the webhook delivery queue. Deliveries are claimed in a
// transaction so concurrent workers never pick up the same row.
type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    paymentdomain.Repository
	service *Service
	locker  *ratelimit.Locker
	cfg     WorkerConfig
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		db:      p.DB,
		log:     p.Log.Named("payment.reconciler.worker"),
		repo:    p.Repo,
		service: p.Service,
		locker:  p.Locker,
		cfg:     workerConfigFromApp(p.Cfg),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("webhook reconciliation run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

const drainLockKey = "billing:webhook:drain"

func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	// Row claiming already serializes workers on postgres; the redis lock
	// keeps multiple instances from hammering the queue on dialects without
	// SKIP LOCKED. Without redis each instance drains independently.
	if w.locker != nil {
		token, ok, err := w.locker.TryLock(ctx, drainLockKey, w.cfg.RunTimeout)
		if err != nil {
			w.log.Warn("drain lock unavailable, proceeding unlocked", zap.Error(err))
		} else if !ok {
			return nil
		} else {
			defer func() {
				if err := w.locker.Release(ctx, drainLockKey, token); err != nil {
					w.log.Warn("drain lock release failed", zap.Error(err))
				}
			}()
		}
	}

	_, err := w.processBatch(ctx, w.cfg.BatchSize)
	return err
}

func (w *Worker) processBatch(ctx context.Context, limit int) (int, error) {
	deliveries, err := w.repo.ClaimDueDeliveries(ctx, w.db, limit, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if len(deliveries) == 0 {
		return 0, nil
	}

	processed := 0
	for _, delivery := range deliveries {
		rowCtx, cancel := context.WithTimeout(ctx, w.cfg.RowTimeout)
		err := w.service.ProcessDelivery(rowCtx, delivery)
		cancel()

		if err != nil {
			w.log.Warn("webhook delivery failed",
				zap.Error(err),
				zap.String("gateway_payment_id", delivery.GatewayPaymentID),
				zap.Int("attempts", delivery.Attempts),
			)
			continue
		}
		processed++
	}

	return processed, nil
}
