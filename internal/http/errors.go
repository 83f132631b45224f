package http

import (
	"net/http"

	"github.com/jmehdipour/realestate-billing/internal/service/lifecycle"
	echo "github.com/labstack/echo/v4"
)

// failure is the error envelope of the subscription routes.
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// writeFailure maps err onto the envelope. Technical details are only exposed in debug mode.
func writeFailure(c echo.Context, err error, debug bool) error {
	appErr, ok := lifecycle.AsAppError(err)
	if !ok {
		c.Logger().Errorf("unhandled error: %v", err)
		body := failure{Error: "Ocurrió un error inesperado. Inténtalo de nuevo.", Code: lifecycle.CodeInternal}
		if debug {
			body.Details = err.Error()
		}
		return c.JSON(http.StatusInternalServerError, body)
	}

	if appErr.Status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s: %v", appErr.Code, appErr.Err)
	}
	body := failure{Error: appErr.Message, Code: appErr.Code}
	if debug && appErr.Err != nil {
		body.Details = appErr.Err.Error()
	}
	return c.JSON(appErr.Status, body)
}
