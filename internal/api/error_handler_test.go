package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
)

func TestErrorHandlerUnclassifiedErrors(t *testing.T) {
	tests := []struct {
		name        string
		production  bool
		wantDetails string
	}{
		{name: "development shows cause", production: false, wantDetails: "pool exhausted"},
		{name: "production hides cause", production: true, wantDetails: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = ErrorHandler(zap.NewNop().Sugar(), tt.production)
			e.GET("/boom", func(c echo.Context) error { return errors.New("pool exhausted") })

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Internal server error", body.Error)
			assert.Equal(t, tt.wantDetails, body.Details)
		})
	}
}
