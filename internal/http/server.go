package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/config"
	"github.com/jmehdipour/payroll-projector/internal/http/middleware"
	"github.com/jmehdipour/payroll-projector/internal/metrics"
	"github.com/jmehdipour/payroll-projector/internal/repository"
	"github.com/jmehdipour/payroll-projector/internal/service/ingest"
)

// Deps are the collaborators the HTTP surface is built from. Changes, Feed
// and Redis may be nil; the matching routes then answer 503 or skip limiting.
type Deps struct {
	Employees     repository.EmployeesRepository
	PayAttributes repository.PayAttributesRepository
	Changes       repository.CHChangesRepository
	Ingest        *ingest.Service
	Feed          Feed
	Redis         *redis.Client
	Log           *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	log.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// push subscriptions (broker sidecar, no client auth)
	sub := e.Group("/api/eventsubscription")
	sub.POST("/employee-events", employeeEventsPushHandler(d.Ingest, cfg.HTTP.MaxBodyBytes))
	sub.POST("/net-pay", netPayPushHandler(d.Ingest, cfg.HTTP.MaxBodyBytes))

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Auth.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/employees", listEmployeesHandler(d.Employees))
	v1.DELETE("/employees", deleteAllEmployeesHandler(d.Employees))
	v1.GET("/employees/changes", changesFeedHandler(d.Feed))
	v1.GET("/employees/:id", getEmployeeHandler(d.Employees, d.PayAttributes))
	v1.GET("/reports/changes", listChangesHandler(d.Changes))

	return &Server{e: e, log: d.Log}
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }
