package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/util"
)

// A development sink for the webhook security notifier.
func main() {
	logger := util.NewZapLogger(util.LogConfig{Level: "info", Pretty: true})
	defer func() { _ = logger.Sync() }()

	addr := os.Getenv("WEBHOOK_RECEIVER_ADDR")
	if addr == "" {
		addr = ":9090"
	}

	e := echo.New()
	e.HideBanner = true
	e.POST("/", func(c echo.Context) error {
		var event models.SecurityEvent
		if err := c.Bind(&event); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Error parsing JSON")
		}

		logger.Infow("Received security event",
			"type", event.Type,
			"user_id", event.UserID,
			"family", event.Family,
			"ip", event.IPAddress,
			"user_agent", event.UserAgent,
			"occurred_at", event.OccurredAt,
		)
		return c.String(http.StatusOK, "Webhook received!")
	})

	logger.Infof("Webhook receiver listening on %s", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
