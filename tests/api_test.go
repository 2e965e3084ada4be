package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"dentalink/internal/adapter/api"
	"dentalink/internal/adapter/api/router"
)

func TestHealthCheck(t *testing.T) {
	e := echo.New()
	router.SetupHealthRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestValidatorRejectsMissingFields(t *testing.T) {
	v := api.NewValidator()

	type payload struct {
		Token string `validate:"required"`
	}

	assert.Error(t, v.Validate(&payload{}))
	assert.NoError(t, v.Validate(&payload{Token: "abc"}))
}
