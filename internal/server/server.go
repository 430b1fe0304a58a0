package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/config"
	customerdomain "github.com/smallbiznis/payoutd/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	"github.com/smallbiznis/payoutd/internal/observability"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payoutd/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	accountdomain "github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.RequestLogger(log, obslogger.MiddlewareConfig{
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	cfg             config.Config
	log             *zap.Logger
	ledgerSvc       ledgerdomain.Service
	accountSvc      accountdomain.Service
	payoutSvc       payoutdomain.Service
	subscriptionSvc subscriptiondomain.Service
	orderSvc        orderdomain.Service
	customerSvc     customerdomain.Service
	paymentSvc      paymentdomain.Service
	alertSvc        alertdomain.Service
	auditSvc        auditdomain.Service
	payoutLimiter   *ratelimit.PayoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	LedgerSvc       ledgerdomain.Service
	AccountSvc      accountdomain.Service
	PayoutSvc       payoutdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	OrderSvc        orderdomain.Service
	CustomerSvc     customerdomain.Service
	PaymentSvc      paymentdomain.Service
	AlertSvc        alertdomain.Service
	AuditSvc        auditdomain.Service
	PayoutLimiter   *ratelimit.PayoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		ledgerSvc:       p.LedgerSvc,
		accountSvc:      p.AccountSvc,
		payoutSvc:       p.PayoutSvc,
		subscriptionSvc: p.SubscriptionSvc,
		orderSvc:        p.OrderSvc,
		customerSvc:     p.CustomerSvc,
		paymentSvc:      p.PaymentSvc,
		alertSvc:        p.AlertSvc,
		auditSvc:        p.AuditSvc,
		payoutLimiter:   p.PayoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.UserRequired())

	api.GET("/ledger", s.GetLedger)
	api.GET("/ledger/entries", s.ListLedgerEntries)

	api.POST("/payout_accounts", s.AddPayoutAccount)
	api.GET("/payout_accounts", s.ListPayoutAccounts)
	api.GET("/payout_accounts/active", s.GetActivePayoutAccount)
	api.POST("/payout_accounts/:id/activate", s.ActivatePayoutAccount)

	api.POST("/payouts", s.PayoutRateLimit(), s.InitiatePayout)
	api.GET("/payouts", s.ListPayouts)
	api.GET("/payouts/:id", s.GetPayout)
	api.GET("/payouts/:id/receipt", s.GetPayoutReceipt)

	api.POST("/subscriptions", s.Subscribe)
	api.GET("/subscriptions/current", s.CurrentSubscription)

	api.GET("/sales", s.ListSales)
	api.GET("/customers", s.ListCustomers)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminRequired())

	admin.GET("/webhook_events", s.ListFailedWebhookEvents)
	admin.POST("/webhook_events/replay", s.ReplayWebhookEvents)
	admin.GET("/alerts", s.ListAlerts)
	admin.GET("/audit_logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
