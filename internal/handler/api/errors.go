package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/usecase"
	xhttp "StockPulse/pkg/http"
	applogger "StockPulse/pkg/logger"
)

// toAppError maps domain errors onto HTTP errors. Unknown errors become 500.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	var retrieve *oauth2.RetrieveError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidSymbol),
		errors.Is(err, usecase.ErrUnsupportedTimeframe),
		errors.Is(err, usecase.ErrInvalidRange),
		errors.Is(err, usecase.ErrAuthCodeRequired),
		errors.Is(err, usecase.ErrUniverseTooLarge):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrNotAuthenticated),
		errors.Is(err, usecase.ErrSessionExpired),
		errors.Is(err, usecase.ErrNoRefreshToken):
		return xhttp.UnauthorizedError(err.Error()).WithError(err)
	case errors.As(err, &retrieve):
		return xhttp.UnauthorizedError("broker rejected the authorization").WithError(err)
	case errors.Is(err, usecase.ErrAlreadyCollecting):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrUnknownSymbol),
		errors.Is(err, usecase.ErrNoBars):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

// fail writes err and logs it when it maps to a server error.
func fail(c echo.Context, l *applogger.Logger, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		l.Error(op+" failed", applogger.String("route", c.Path()), applogger.Error(err))
	}
	return xhttp.Fail(c, appErr)
}
