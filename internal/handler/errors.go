package handler

import (
	"errors"
	"net/http"
	"strconv"

	"partstore-core/internal/dto"
	"partstore-core/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrSaleMismatch),
		errors.Is(err, service.ErrMalformedWebhook):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, service.ErrPartNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrSaleNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, service.ErrPartInUse):
		return http.StatusConflict
	case errors.Is(err, service.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewHTTPErrorHandler renders every error as dto.ErrorResponse. Messages of
// 5xx errors stay in the log.
func NewHTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := StatusFor(err)
		message := err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
			if status == http.StatusInternalServerError {
				message = http.StatusText(status)
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, dto.ErrorResponse{Error: message})
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}
