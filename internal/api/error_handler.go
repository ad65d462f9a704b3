package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/service"
	"github.com/rryowa/botgate/internal/util"
)

// ErrorHandler renders every error leaving a handler or middleware as {error, details}.
// Details of unclassified errors are hidden in production.
func ErrorHandler(log *zap.SugaredLogger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var respErr *util.MyResponseError
		if errors.As(err, &respErr) {
			if respErr.Status >= http.StatusInternalServerError {
				log.Errorw("request failed", "error", err, "code", respErr.Code, "uri", c.Request().RequestURI)
			} else {
				log.Debugw("request rejected", "error", err, "code", respErr.Code, "uri", c.Request().RequestURI)
			}
			writeJSON(log, c, respErr.Status, models.ErrorResponse{Error: respErr.Category, Details: respErr.Details})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			if he.Code >= http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			writeJSON(log, c, he.Code, models.ErrorResponse{
				Error:   http.StatusText(he.Code),
				Details: fmt.Sprint(he.Message),
			})
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		details := err.Error()
		if production {
			details = service.ErrInternal.Details
		}
		writeJSON(log, c, service.ErrInternal.Status, models.ErrorResponse{Error: service.ErrInternal.Category, Details: details})
	}
}

func writeJSON(log *zap.SugaredLogger, c echo.Context, status int, body models.ErrorResponse) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		log.Errorw("failed to write json response", "error", err)
	}
}
