package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	assetdomain "github.com/maintly/maintly/internal/asset/domain"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	billingeventdomain "github.com/maintly/maintly/internal/billingevent/domain"
	"github.com/maintly/maintly/internal/config"
	"github.com/maintly/maintly/internal/observability"
	obsmiddleware "github.com/maintly/maintly/internal/observability/logger"
	obsmetrics "github.com/maintly/maintly/internal/observability/metrics"
	obstracing "github.com/maintly/maintly/internal/observability/tracing"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
	"github.com/maintly/maintly/internal/pricing"
	"github.com/maintly/maintly/internal/ratelimit"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	cfg             config.Config
	log             *zap.Logger
	genID           *snowflake.Node
	tiers           pricing.TierSource
	subscriptionSvc subscriptiondomain.Service
	organizationSvc organizationdomain.Service
	assetSvc        assetdomain.Service
	apiKeySvc       apikeydomain.Service
	provider        billingdomain.Provider
	processor       billingeventdomain.Processor
	webhookLimiter  *ratelimit.WebhookLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	GenID           *snowflake.Node
	Tiers           pricing.TierSource
	SubscriptionSvc subscriptiondomain.Service
	OrganizationSvc organizationdomain.Service
	AssetSvc        assetdomain.Service
	APIKeySvc       apikeydomain.Service
	Provider        billingdomain.Provider
	Processor       billingeventdomain.Processor
	WebhookLimiter  *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		genID:           p.GenID,
		tiers:           p.Tiers,
		subscriptionSvc: p.SubscriptionSvc,
		organizationSvc: p.OrganizationSvc,
		assetSvc:        p.AssetSvc,
		apiKeySvc:       p.APIKeySvc,
		provider:        p.Provider,
		processor:       p.Processor,
		webhookLimiter:  p.WebhookLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	s.registerAPIRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Organizations --------
	api.POST("/orgs", s.CreateOrganization)
	api.GET("/orgs", s.ListOrganizations)
	api.GET("/orgs/:orgId", s.APIKeyRequired(), s.GetOrganization)
	api.POST("/orgs/:orgId/members", s.APIKeyRequired(), s.RequireBillingRole(), s.AddMember)

	// -------- API keys --------
	api.POST("/api-keys", s.CreateAPIKey)
	api.GET("/api-keys", s.APIKeyRequired(), s.ListAPIKeys)
	api.DELETE("/api-keys/:id", s.APIKeyRequired(), s.RequireBillingRole(), s.RevokeAPIKey)

	// -------- Subscriptions --------
	api.POST("/subscriptions/pricing-preview", s.PricingPreview)
	api.POST("/subscriptions/create-checkout", s.APIKeyRequired(), s.RequireBillingRole(), s.CreateCheckout)
	api.POST("/subscriptions/org/:orgId/update-asset-count", s.APIKeyRequired(), s.RequireBillingRole(), s.UpdateAssetCount)
	api.GET("/subscriptions/org/:orgId", s.APIKeyRequired(), s.GetSubscription)
	api.GET("/subscriptions/org/:orgId/invoices", s.APIKeyRequired(), s.ListSubscriptionInvoices)
	api.GET("/subscriptions/org/:orgId/usage-history", s.APIKeyRequired(), s.ListUsageHistory)

	// -------- Assets & issues --------
	assets := api.Group("/assets", s.APIKeyRequired())
	{
		assets.GET("", s.ListAssets)
		assets.POST("", s.CreateAsset)
		assets.GET("/:id", s.GetAsset)
		assets.PATCH("/:id", s.UpdateAsset)
	}

	issues := api.Group("/issues", s.APIKeyRequired())
	{
		issues.GET("", s.ListIssues)
		issues.POST("", s.CreateIssue)
		issues.PATCH("/:id", s.UpdateIssue)
	}

	// -------- Billing webhooks --------
	api.POST("/webhooks/billing", s.HandleBillingWebhook)
}
