package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/service"
	"github.com/rryowa/botgate/internal/util"
)

type Controller struct {
	zapLogger  *zap.SugaredLogger
	sessions   *service.SessionService
	cookies    util.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewController(
	logger *zap.SugaredLogger,
	sessions *service.SessionService,
	cookies util.CookieConfig,
	tokens util.TokenConfig,
) *Controller {
	return &Controller{
		zapLogger:  logger,
		sessions:   sessions,
		cookies:    cookies,
		accessTTL:  tokens.AccessTTL,
		refreshTTL: tokens.RefreshTTL,
	}
}

// RegisterHandlers mounts the /auth routes, the protected /api routes behind authGate and /ping.
func RegisterHandlers(e *echo.Echo, c *Controller, authGate echo.MiddlewareFunc, authMw ...echo.MiddlewareFunc) {
	e.GET("/ping", c.CheckServer)

	auth := e.Group("/auth", authMw...)
	auth.POST("/register", c.Register)
	auth.POST("/login", c.Login)
	auth.POST("/refresh", c.Refresh)
	auth.POST("/logout", c.Logout, authGate)

	protected := e.Group("/api", authGate)
	protected.GET("/me", c.Me)
}

// (GET /ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.CredentialsRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	res, err := c.sessions.Register(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	c.setAuthCookies(ctx, res.Tokens)
	return ctx.JSON(http.StatusCreated, models.AuthResponse{
		Message: "New user created",
		User:    res.User.Public(),
	})
}

// (POST /auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.CredentialsRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	res, err := c.sessions.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	c.setAuthCookies(ctx, res.Tokens)
	return ctx.JSON(http.StatusOK, models.AuthResponse{
		Message: "Login successful",
		User:    res.User.Public(),
	})
}

// (POST /auth/refresh). The token comes from the body, or from the refresh cookie when the body has none.
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		if cookie, err := ctx.Cookie(models.RefreshTokenCookie); err == nil {
			req.RefreshToken = cookie.Value
		}
	}

	meta := models.ClientMeta{
		IPAddress: ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
	}
	res, err := c.sessions.Refresh(ctx.Request().Context(), req.RefreshToken, meta)
	if err != nil {
		return err
	}

	c.setAuthCookies(ctx, res.Tokens)
	return ctx.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// (POST /auth/logout).
func (c *Controller) Logout(ctx echo.Context) error {
	userID, ok := ctx.Get(models.MwUserIDKey).(string)
	if !ok || userID == "" {
		return service.ErrNotAuthenticated
	}

	if err := c.sessions.Logout(ctx.Request().Context(), userID); err != nil {
		return err
	}

	c.clearAuthCookies(ctx)
	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Logout successful"})
}

// (GET /api/me).
func (c *Controller) Me(ctx echo.Context) error {
	userID, ok := ctx.Get(models.MwUserIDKey).(string)
	if !ok || userID == "" {
		return service.ErrNotAuthenticated
	}

	user, err := c.sessions.CurrentUser(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.AuthResponse{User: user.Public()})
}
