package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/obs"
	"github.com/rryowa/botgate/internal/service"
	"github.com/rryowa/botgate/internal/util"
)

const (
	tierAuthenticated   = "authenticated"
	tierUnauthenticated = "unauthenticated"
)

// AuthGate admits requests carrying a valid access token cookie and stores the user id
// under models.MwUserIDKey.
func AuthGate(tokens *service.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(models.AccessTokenCookie)
			if err != nil || cookie.Value == "" {
				return service.ErrNotAuthenticated
			}

			claims, err := tokens.VerifyAccessToken(cookie.Value)
			if err != nil {
				return err
			}

			c.Set(models.MwUserIDKey, claims.UserID)
			return next(c)
		}
	}
}

// RateLimitGate applies the sliding-window limit and the violation escalation per caller.
type RateLimitGate struct {
	limiter *service.RateLimiter
	tracker *service.ViolationTracker
	tokens  *service.TokenService
	cfg     util.RateLimiterConfig
	metrics *obs.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewRateLimitGate(
	log *zap.SugaredLogger,
	limiter *service.RateLimiter,
	tracker *service.ViolationTracker,
	tokens *service.TokenService,
	cfg util.RateLimiterConfig,
	metrics *obs.Metrics,
) *RateLimitGate {
	return &RateLimitGate{
		limiter: limiter,
		tracker: tracker,
		tokens:  tokens,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// caller resolves the tier and the identifier (ip, or ip:userId for authenticated callers).
func (g *RateLimitGate) caller(c echo.Context) (string, util.RateLimitTier, string) {
	ip := c.RealIP()
	if cookie, err := c.Cookie(models.AccessTokenCookie); err == nil && cookie.Value != "" {
		if claims, err := g.tokens.VerifyAccessToken(cookie.Value); err == nil {
			return tierAuthenticated, g.cfg.Authenticated, ip + ":" + claims.UserID
		}
	}
	return tierUnauthenticated, g.cfg.Unauthenticated, ip
}

func (g *RateLimitGate) Middleware(skipper echomiddleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = echomiddleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			tier, limits, identifier := g.caller(c)
			if err := g.admit(c, tier, limits, identifier); err != nil {
				return err
			}
			return next(c)
		}
	}
}

func (g *RateLimitGate) admit(c echo.Context, tier string, limits util.RateLimitTier, identifier string) error {
	ctx := c.Request().Context()
	violations := g.cfg.Violations

	if violations.CountAllRequests {
		status, err := g.tracker.Track(ctx, identifier, violations.MemoryDuration)
		if err != nil {
			return g.fail(tier, err)
		}
		if status.IsBlocked {
			return g.blocked(c, tier, identifier, status.BlockExpiry, status.Violations == violations.MaxViolations)
		}
	} else {
		expiry, blocked, err := g.tracker.BlockedUntil(ctx, identifier)
		if err != nil {
			return g.fail(tier, err)
		}
		if blocked {
			return g.blocked(c, tier, identifier, expiry, false)
		}
	}

	res, err := g.limiter.Check(ctx, g.cfg.KeyPrefixes.IP+identifier, limits.Window, limits.Limit)
	if err != nil {
		return g.fail(tier, err)
	}

	h := c.Response().Header()
	h.Set(models.HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(models.HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	h.Set(models.HeaderRateLimitReset, strconv.FormatInt(res.ResetTime, 10))

	if res.Allowed {
		g.metrics.RateLimitDecisions.WithLabelValues(tier, obs.OutcomeAllowed).Inc()
		return nil
	}

	if !violations.CountAllRequests {
		status, err := g.tracker.Track(ctx, identifier, violations.MemoryDuration)
		if err != nil {
			return g.fail(tier, err)
		}
		if status.Violations == violations.MaxViolations {
			g.metrics.ViolationBlocks.Inc()
		}
	}

	g.metrics.RateLimitDecisions.WithLabelValues(tier, obs.OutcomeThrottled).Inc()
	h.Set(models.HeaderRetryAfter, strconv.FormatInt(res.ResetTime, 10))
	wait := math.Ceil(float64(res.ResetTime-g.now().Unix()) / 60)
	return service.ErrRateLimitExceeded.WithDetails("Rate limit exceeded. Please try again in %d minutes", int64(max(0, wait)))
}

// fail closes the gate: any store failure rejects the request.
func (g *RateLimitGate) fail(tier string, err error) error {
	g.metrics.RateLimitDecisions.WithLabelValues(tier, obs.OutcomeError).Inc()
	return service.ErrRateLimitService.Wrap(err)
}

func (g *RateLimitGate) blocked(c echo.Context, tier, identifier string, expiry int64, justBlocked bool) error {
	if justBlocked {
		g.metrics.ViolationBlocks.Inc()
		g.log.Warnw("caller blocked after repeated violations", "identifier", identifier, "until", expiry)
	}
	g.metrics.RateLimitDecisions.WithLabelValues(tier, obs.OutcomeBlocked).Inc()

	h := c.Response().Header()
	h.Set(models.HeaderRateLimitLimit, "0")
	h.Set(models.HeaderRateLimitRemaining, "0")
	h.Set(models.HeaderRateLimitReset, strconv.FormatInt(expiry, 10))
	h.Set(models.HeaderRetryAfter, strconv.FormatInt(expiry, 10))

	return service.ErrRateLimitExceeded.WithDetails("You are temporarily blocked for %s", blockDuration(g.cfg.Violations.BlockDuration))
}

func blockDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(math.Ceil(d.Minutes())))
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		HandleError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.RequestID != "" {
				fields = append(fields, "request_id", v.RequestID)
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				a.log.Errorw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}

// MetricsMiddleware records request latency by route pattern.
func MetricsMiddleware(m *obs.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			var (
				he *echo.HTTPError
				re *util.MyResponseError
			)
			switch {
			case err == nil:
			case errors.As(err, &re):
				status = re.Status
			case errors.As(err, &he):
				status = he.Code
			default:
				status = http.StatusInternalServerError
			}
			m.RequestDuration.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
