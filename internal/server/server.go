package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fitmirror/fitmirror/internal/analytics"
	analyticsdomain "github.com/fitmirror/fitmirror/internal/analytics/domain"
	"github.com/fitmirror/fitmirror/internal/apikey"
	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
	"github.com/fitmirror/fitmirror/internal/billing"
	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
	"github.com/fitmirror/fitmirror/internal/cache"
	"github.com/fitmirror/fitmirror/internal/config"
	"github.com/fitmirror/fitmirror/internal/observability"
	obsmiddleware "github.com/fitmirror/fitmirror/internal/observability/logger"
	obsmetrics "github.com/fitmirror/fitmirror/internal/observability/metrics"
	obstracing "github.com/fitmirror/fitmirror/internal/observability/tracing"
	"github.com/fitmirror/fitmirror/internal/partner"
	"github.com/fitmirror/fitmirror/internal/product"
	productdomain "github.com/fitmirror/fitmirror/internal/product/domain"
	"github.com/fitmirror/fitmirror/internal/ratelimit"
	"github.com/fitmirror/fitmirror/internal/shop"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
	"github.com/fitmirror/fitmirror/internal/tryon"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	shop.Module,
	tryon.Module,
	product.Module,
	analytics.Module,
	billing.Module,
	partner.Module,
	apikey.Module,
	ratelimit.Module,
	cache.Module,
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	shopSvc       shopdomain.Service
	tryonSvc      tryondomain.Service
	productRepo   productdomain.Repository
	analyticsSvc  analyticsdomain.Service
	billingSvc    billingdomain.Service
	apiKeySvc     apikeydomain.Service
	partnerClient partner.Client
	ingestLimiter *ratelimit.IngestLimiter
	resolverCache cache.IngestResolverCache
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	ShopSvc       shopdomain.Service
	TryonSvc      tryondomain.Service
	ProductRepo   productdomain.Repository
	AnalyticsSvc  analyticsdomain.Service
	BillingSvc    billingdomain.Service
	APIKeySvc     apikeydomain.Service
	PartnerClient partner.Client
	IngestLimiter *ratelimit.IngestLimiter  `optional:"true"`
	ResolverCache cache.IngestResolverCache `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		shopSvc:       p.ShopSvc,
		tryonSvc:      p.TryonSvc,
		productRepo:   p.ProductRepo,
		analyticsSvc:  p.AnalyticsSvc,
		billingSvc:    p.BillingSvc,
		apiKeySvc:     p.APIKeySvc,
		partnerClient: p.PartnerClient,
		ingestLimiter: p.IngestLimiter,
		resolverCache: p.ResolverCache,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth/shopfront")
	auth.GET("/install", s.HandleInstall)
	auth.GET("/callback", s.HandleInstallCallback)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	analyticsGroup := api.Group("/analytics")
	analyticsGroup.GET("/overview", s.HandleAnalyticsOverview)
	analyticsGroup.GET("/timeseries", s.HandleAnalyticsTimeseries)

	keys := api.Group("/keys")
	keys.GET("", s.HandleListAPIKeys)
	keys.POST("", s.HandleCreateAPIKey)
	keys.POST("/:key_id/rotate", s.HandleRotateAPIKey)
	keys.DELETE("/:key_id", s.HandleRevokeAPIKey)

	v1 := api.Group("/v1")
	v1.Use(s.APIKeyRequired())
	v1.POST("/tryons", s.HandleRecordTryon)
	v1.PATCH("/tryons/:tryon_id", s.HandleCompleteTryon)
	v1.PUT("/products/:external_id", s.HandleUpsertProduct)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhook/stripe", s.HandleStripeWebhook)
}
