package handler

import (
	"net/http"
	"strings"

	"partstore-core/internal/dto"
	"partstore-core/internal/middleware"
	"partstore-core/internal/model"
	"partstore-core/internal/service"

	"github.com/labstack/echo/v4"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	user := middleware.IdentityFrom(c)

	var (
		order *model.Order
		err   error
	)
	if key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey)); key != "" {
		order, err = h.orderService.CheckoutIdempotent(ctx, user, key, req.Items)
	} else {
		order, err = h.orderService.Checkout(ctx, user, req.Items)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	orders, err := h.orderService.ListOrders(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), middleware.IdentityFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateStatus is the administrative transition endpoint.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	target := model.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	order, err := h.orderService.UpdateStatus(c.Request().Context(), id, target, req.TrackingNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}
