package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	middleware "github.com/oapi-codegen/echo-middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/controller"
	"github.com/rryowa/botgate/internal/obs"
	"github.com/rryowa/botgate/internal/service"
	"github.com/rryowa/botgate/internal/util"
)

const (
	shutdownTimeout = 5 * time.Second
	healthTimeout   = 500 * time.Millisecond
)

// HealthCheck is one dependency checked by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type API struct {
	server          *echo.Echo
	httpServer      *http.Server
	controller      *controller.Controller
	tokens          *service.TokenService
	rateLimitGate   *RateLimitGate
	metrics         *obs.Metrics
	health          []HealthCheck
	log             *zap.SugaredLogger
	gracefulTimeout time.Duration
}

func NewAPI(
	c *controller.Controller,
	l *zap.SugaredLogger,
	sc util.ServerConfig,
	production bool,
	tokens *service.TokenService,
	gate *RateLimitGate,
	metrics *obs.Metrics,
	health ...HealthCheck,
) *API {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(l, production)
	e.IPExtractor = newIPExtractor(l, sc.TrustedProxies)

	a := &API{
		server:          e,
		controller:      c,
		tokens:          tokens,
		rateLimitGate:   gate,
		metrics:         metrics,
		health:          health,
		log:             l,
		gracefulTimeout: sc.GracefulTimeout,
	}
	a.httpServer = &http.Server{
		Addr:              sc.ServerAddr,
		Handler:           otelhttp.NewHandler(e, "botgate.http"),
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}
	return a
}

// Setup registers middleware and routes. Call it once, before serving.
func (a *API) Setup() error {
	swagger, err := controller.GetSwagger()
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI specification: %w", err)
	}
	swagger.Servers = nil

	a.server.Use(echomiddleware.Recover())
	a.server.Use(echomiddleware.RequestID())
	a.server.Use(echomiddleware.RequestLoggerWithConfig(GetLoggerMiddlewareConfig(a)))
	a.server.Use(MetricsMiddleware(a.metrics))
	if a.rateLimitGate != nil {
		a.server.Use(a.rateLimitGate.Middleware(skipOperational))
	}

	a.server.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	a.server.GET("/healthz", a.healthz)

	controller.RegisterHandlers(a.server, a.controller, AuthGate(a.tokens), middleware.OapiRequestValidator(swagger))
	return nil
}

// Handler exposes the instrumented root handler.
func (a *API) Handler() http.Handler {
	return a.httpServer.Handler
}

func (a *API) Run(ctxBackground context.Context) error {
	ctx, stop := signal.NotifyContext(ctxBackground, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Setup(); err != nil {
		return err
	}

	return a.ListenGracefulShutdown(ctx)
}

func (a *API) ListenGracefulShutdown(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		err := a.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	a.log.Infof("Listening on: %s", a.httpServer.Addr)

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	case <-ctx.Done():
	}
	a.log.Info("Shutting down server...")

	timeout := a.gracefulTimeout
	if timeout <= 0 {
		timeout = shutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("shutdown: %v", err)
		return err
	}
	a.log.Info("server shutdown completed")
	return nil
}

func (a *API) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	for _, h := range a.health {
		if err := h.Check(ctx); err != nil {
			a.log.Warnw("health check failed", "dependency", h.Name, "error", err)
			return c.String(http.StatusServiceUnavailable, "unhealthy: "+h.Name)
		}
	}
	return c.String(http.StatusOK, "ok")
}

// newIPExtractor resolves the client address from the socket peer. X-Forwarded-For is
// only consulted when the peer is one of the trusted proxies.
func newIPExtractor(l *zap.SugaredLogger, trusted []string) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range trusted {
		ipNet, err := util.ParseTrustedProxy(p)
		if err != nil {
			l.Warnw("ignoring trusted proxy", "proxy", p, "error", err)
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func skipOperational(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/metrics" || p == "/healthz" || strings.HasPrefix(p, "/metrics/")
}
