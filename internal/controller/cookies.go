package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rryowa/botgate/internal/models"
)

func (c *Controller) newCookie(name, value string, maxAge time.Duration) *http.Cookie {
	path := c.cookies.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.cookies.Domain,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c *Controller) setAuthCookies(ctx echo.Context, tokens models.TokenPair) {
	ctx.SetCookie(c.newCookie(models.AccessTokenCookie, tokens.AccessToken, c.accessTTL))
	ctx.SetCookie(c.newCookie(models.RefreshTokenCookie, tokens.RefreshToken, c.refreshTTL))
}

func (c *Controller) clearAuthCookies(ctx echo.Context) {
	for _, name := range []string{models.AccessTokenCookie, models.RefreshTokenCookie} {
		cookie := c.newCookie(name, "", 0)
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		ctx.SetCookie(cookie)
	}
}
