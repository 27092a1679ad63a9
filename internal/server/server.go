package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/orcafacil/billing/internal/audit/domain"
	"github.com/orcafacil/billing/internal/config"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	"github.com/orcafacil/billing/internal/observability"
	obslogger "github.com/orcafacil/billing/internal/observability/logger"
	obsmetrics "github.com/orcafacil/billing/internal/observability/metrics"
	obstracing "github.com/orcafacil/billing/internal/observability/tracing"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	orderdomain "github.com/orcafacil/billing/internal/serviceorder/domain"
	subscriptiondomain "github.com/orcafacil/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	cfg             config.Config
	db              *gorm.DB
	orderSvc        orderdomain.Service
	invoiceSvc      invoicedomain.Service
	subscriptionSvc subscriptiondomain.Service
	credentialSvc   credentialdomain.Service
	preferenceSvc   paymentdomain.PreferenceService
	webhookSvc      paymentdomain.WebhookService
	auditSvc        auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	Cfg             config.Config
	DB              *gorm.DB
	OrderSvc        orderdomain.Service
	InvoiceSvc      invoicedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	CredentialSvc   credentialdomain.Service
	PreferenceSvc   paymentdomain.PreferenceService
	WebhookSvc      paymentdomain.WebhookService
	AuditSvc        auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		cfg:             p.Cfg,
		db:              p.DB,
		orderSvc:        p.OrderSvc,
		invoiceSvc:      p.InvoiceSvc,
		subscriptionSvc: p.SubscriptionSvc,
		credentialSvc:   p.CredentialSvc,
		preferenceSvc:   p.PreferenceSvc,
		webhookSvc:      p.WebhookSvc,
		auditSvc:        p.AuditSvc,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider/:kind", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.TenantRequired())

	v1.GET("/service-orders/:code", s.GetServiceOrder)
	v1.POST("/service-orders/:code/transition", s.TransitionServiceOrder)
	v1.POST("/service-orders/:code/invoice", s.CreateServiceOrderInvoice)

	v1.GET("/invoices/:code", s.GetInvoice)
	v1.GET("/invoices/:code/pdf", s.RenderInvoicePDF)
	v1.POST("/invoices/:code/cancel", s.CancelInvoice)
	v1.POST("/invoices/:code/preference", s.CreateInvoicePreference)

	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/subscriptions/:id", s.GetSubscription)
	v1.POST("/subscriptions/:id/preference", s.CreateSubscriptionPreference)

	v1.PUT("/credentials", s.StoreCredential)
	v1.DELETE("/credentials", s.RevokeCredential)
}
