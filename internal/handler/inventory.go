package handler

import (
	"net/http"
	"strconv"

	"partstore-core/internal/dto"
	"partstore-core/internal/service"

	"github.com/labstack/echo/v4"
)

const defaultMovementLimit = 50

type InventoryHandler struct {
	inventoryService service.InventoryService
}

func NewInventoryHandler(inventoryService service.InventoryService) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
	}
}

func (h *InventoryHandler) RegisterEntry(c echo.Context) error {
	var req dto.MovementRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	movement, err := h.inventoryService.RegisterEntry(c.Request().Context(), req.PartID, req.Quantity, req.UnitPrice, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, movement)
}

func (h *InventoryHandler) RegisterExit(c echo.Context) error {
	var req dto.MovementRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	movement, err := h.inventoryService.RegisterExit(c.Request().Context(), req.PartID, req.Quantity, req.UnitPrice, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, movement)
}

func (h *InventoryHandler) RegisterReturn(c echo.Context) error {
	var req dto.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	ret, err := h.inventoryService.RegisterReturn(c.Request().Context(), service.ReturnInput{
		PartID:    req.PartID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		SaleID:    req.SaleID,
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ret)
}

func (h *InventoryHandler) CreatePart(c echo.Context) error {
	var req dto.CreatePartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	part, err := h.inventoryService.CreatePart(c.Request().Context(), service.NewPart{
		PartNumber:   req.PartNumber,
		Name:         req.Name,
		Brand:        req.Brand,
		Price:        req.Price,
		InitialStock: req.InitialStock,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, part)
}

func (h *InventoryHandler) GetPart(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	part, err := h.inventoryService.GetPart(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, part)
}

func (h *InventoryHandler) DeletePart(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.inventoryService.DeletePart(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *InventoryHandler) ListMovements(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	limit := defaultMovementLimit
	if v := c.QueryParam("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	movements, err := h.inventoryService.ListMovements(c.Request().Context(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, movements)
}

func (h *InventoryHandler) Reconcile(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	report, err := h.inventoryService.Reconcile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
