package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"partstore-core/internal/dto"
	"partstore-core/internal/model"
	"partstore-core/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminHeaders(t *testing.T) map[string]string {
	return map[string]string{"Authorization": bearer(t, adminID)}
}

func TestInventoryHandler_RegisterEntry(t *testing.T) {
	var gotPrice *decimal.Decimal
	inventory := &fakeInventoryService{
		EntryFn: func(partID uint, qty int64, price *decimal.Decimal, note string) (*model.Movement, error) {
			gotPrice = price
			if qty <= 0 {
				return nil, service.ErrInvalidQuantity
			}
			return &model.Movement{ID: 1, PartID: partID, Quantity: qty, Direction: model.MovementEntry, Note: note}, nil
		},
	}
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, inventory)

	rec := doRequest(t, e, http.MethodPost, "/api/v1/admin/inventario/entrada",
		`{"part_id":3,"quantity":5,"unit_price":"80.25","note":"proveedor"}`, adminHeaders(t))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, gotPrice)
	assert.Equal(t, "80.25", gotPrice.String())

	var m model.Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, model.MovementEntry, m.Direction)
	assert.Equal(t, int64(5), m.Quantity)

	rec = doRequest(t, e, http.MethodPost, "/api/v1/admin/inventario/entrada", `{"part_id":3,"quantity":0}`, adminHeaders(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, gotPrice)
}

func TestInventoryHandler_RegisterExit(t *testing.T) {
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, &fakeInventoryService{})

	assert.Equal(t, http.StatusCreated,
		doRequest(t, e, http.MethodPost, "/api/v1/admin/inventario/salida", `{"part_id":3,"quantity":3}`, adminHeaders(t)).Code)
	assert.Equal(t, http.StatusConflict,
		doRequest(t, e, http.MethodPost, "/api/v1/admin/inventario/salida", `{"part_id":3,"quantity":4}`, adminHeaders(t)).Code)
}

func TestInventoryHandler_RegisterReturn(t *testing.T) {
	inventory := &fakeInventoryService{}
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, inventory)

	rec := doRequest(t, e, http.MethodPost, "/api/v1/admin/inventario/devolucion",
		`{"part_id":3,"quantity":1,"sale_id":12,"reason":"defectuosa"}`, adminHeaders(t))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, inventory.ReturnInputs, 1)
	in := inventory.ReturnInputs[0]
	assert.Equal(t, uint(3), in.PartID)
	require.NotNil(t, in.SaleID)
	assert.Equal(t, uint(12), *in.SaleID)
	assert.Equal(t, "defectuosa", in.Reason)
	assert.Nil(t, in.UnitPrice)
}

func TestInventoryHandler_Parts(t *testing.T) {
	inventory := &fakeInventoryService{}
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, inventory)

	rec := doRequest(t, e, http.MethodPost, "/api/v1/admin/refacciones",
		`{"part_number":"BOS-0242","name":"Bujía","brand":"Bosch","price":"120.00","initial_stock":6}`, adminHeaders(t))
	require.Equal(t, http.StatusCreated, rec.Code)
	var part model.Part
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &part))
	assert.Equal(t, "BOS-0242", part.PartNumber)
	assert.Equal(t, int64(6), part.Stock)

	assert.Equal(t, http.StatusNotFound, doRequest(t, e, http.MethodGet, "/api/v1/admin/refacciones/10", "", adminHeaders(t)).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(t, e, http.MethodDelete, "/api/v1/admin/refacciones/10", "", adminHeaders(t)).Code)

	inventory.DeleteErr = service.ErrPartInUse
	assert.Equal(t, http.StatusConflict, doRequest(t, e, http.MethodDelete, "/api/v1/admin/refacciones/10", "", adminHeaders(t)).Code)
}

func TestInventoryHandler_ListMovements(t *testing.T) {
	inventory := &fakeInventoryService{}
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, inventory)

	assert.Equal(t, http.StatusOK, doRequest(t, e, http.MethodGet, "/api/v1/admin/refacciones/3/movimientos", "", adminHeaders(t)).Code)
	assert.Equal(t, defaultMovementLimit, inventory.MovementLimit)

	assert.Equal(t, http.StatusOK, doRequest(t, e, http.MethodGet, "/api/v1/admin/refacciones/3/movimientos?limit=5", "", adminHeaders(t)).Code)
	assert.Equal(t, 5, inventory.MovementLimit)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, e, http.MethodGet, "/api/v1/admin/refacciones/3/movimientos?limit=-1", "", adminHeaders(t)).Code)
}

func TestInventoryHandler_Reconcile(t *testing.T) {
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, &fakeInventoryService{})

	rec := doRequest(t, e, http.MethodGet, "/api/v1/admin/refacciones/3/conciliacion", "", adminHeaders(t))

	require.Equal(t, http.StatusOK, rec.Code)
	var report dto.StockReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Consistent)
	assert.Equal(t, uint(3), report.PartID)
}

func TestInventoryHandler_RequiresAdmin(t *testing.T) {
	e := newTestEcho(t, &fakeOrderService{}, &fakePaymentService{}, &fakeInventoryService{})

	rec := doRequest(t, e, http.MethodPost, "/api/v1/admin/inventario/entrada", `{"part_id":3,"quantity":5}`,
		map[string]string{"Authorization": bearer(t, customerID)})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
