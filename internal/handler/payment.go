package handler

import (
	"errors"
	"io"
	"net/http"

	"partstore-core/internal/dto"
	"partstore-core/internal/middleware"
	"partstore-core/internal/service"
	"partstore-core/internal/webhook"

	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) CreatePreference(c echo.Context) error {
	var req dto.PreferenceRequest
	if err := c.Bind(&req); err != nil || req.OrderID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id is required")
	}

	info, err := h.paymentService.CreatePreference(c.Request().Context(), middleware.IdentityFrom(c), req.OrderID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, info)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.paymentService.GetPayment(c.Request().Context(), middleware.IdentityFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

// Webhook is public. The body is read raw so the service sees exactly what
// the provider sent.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	ack, err := h.paymentService.HandleWebhook(ctx, webhook.Request{
		Header: c.Request().Header,
		Query:  c.QueryParams(),
		Body:   body,
	})
	if errors.Is(err, service.ErrProviderUnavailable) {
		// The provider retries non-2xx deliveries; nothing was written yet.
		return echo.NewHTTPError(http.StatusBadRequest, "payment could not be fetched from provider")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ack)
}
