package http

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmehdipour/realestate-billing/internal/http/middleware"
	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/ratelimit"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the collaborators the routes need; serve wires the real ones.
type Deps struct {
	Subscriptions SubscriptionService
	Webhooks      billing.WebhookVerifier
	Events        repository.LifecycleEventsRepository
	Listings      repository.ListingsRepository
	Limiter       ratelimit.Limiter
	Rules         ratelimit.Rules
	Log           *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())
	if cfg.HTTP.Debug {
		e.Logger.SetLevel(log.DEBUG)
	} else {
		e.Logger.SetLevel(log.INFO)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.JWTAuth([]byte(cfg.Auth.JWTSecret))
	checkoutRule, _ := d.Rules.Get(ratelimit.RuleCheckout)
	generalRule, _ := d.Rules.Get(ratelimit.RuleGeneral)
	checkoutMW := middleware.RateLimitMiddleware(d.Limiter, checkoutRule, d.Log)
	generalMW := middleware.RateLimitMiddleware(d.Limiter, generalRule, d.Log)

	// routes
	v1 := e.Group("/v1", authMW)
	sub := v1.Group("/subscription", checkoutMW)
	sub.POST("/cancel", cancelHandler(d.Subscriptions, cfg.HTTP.Debug))
	sub.POST("/reactivate", reactivateHandler(d.Subscriptions, cfg.HTTP.Debug))
	sub.POST("/portal", portalHandler(d.Subscriptions))
	v1.GET("/reports/lifecycle", lifecycleReportHandler(d.Events, d.Listings), generalMW)

	e.POST("/webhooks/stripe", stripeWebhookHandler(d.Subscriptions, d.Webhooks, d.Log))

	internal := e.Group("/internal", middleware.APIKeyMiddleware(cfg.Auth.InternalAPIKey))
	internal.POST("/ratelimit/check", rateLimitCheckHandler(d.Limiter, d.Rules, validator.New()))

	return &Server{e: e, log: d.Log}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
