package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"partstore-core/internal/auth"
	"partstore-core/internal/dto"
	"partstore-core/internal/middleware"
	"partstore-core/internal/model"
	"partstore-core/internal/service"
	"partstore-core/internal/webhook"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testJWT = auth.NewJWTService("handler-test-secret", time.Hour)

// newTestEcho wires the handlers onto routes shaped like the real server.
func newTestEcho(t *testing.T, orders service.OrderService, payments service.PaymentService, inventory service.InventoryService) *echo.Echo {
	t.Helper()

	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(zaptest.NewLogger(t))

	oh := NewOrderHandler(orders)
	ph := NewPaymentHandler(payments)
	ih := NewInventoryHandler(inventory)

	authed := e.Group("/api/v1", middleware.RequireAuth(testJWT))
	authed.POST("/pedidos/checkout", oh.Checkout)
	authed.GET("/pedidos", oh.ListOrders)
	authed.GET("/pedidos/:id", oh.GetOrder)
	authed.POST("/pagos/preferencia", ph.CreatePreference)
	authed.GET("/pagos/:id", ph.GetPayment)
	e.POST("/api/v1/pagos/webhook", ph.Webhook)

	adm := e.Group("/api/v1/admin", middleware.RequireAuth(testJWT), middleware.RequireAdmin())
	adm.PATCH("/pedidos/:id/status", oh.UpdateStatus)
	adm.POST("/inventario/entrada", ih.RegisterEntry)
	adm.POST("/inventario/salida", ih.RegisterExit)
	adm.POST("/inventario/devolucion", ih.RegisterReturn)
	adm.POST("/refacciones", ih.CreatePart)
	adm.GET("/refacciones/:id", ih.GetPart)
	adm.DELETE("/refacciones/:id", ih.DeletePart)
	adm.GET("/refacciones/:id/movimientos", ih.ListMovements)
	adm.GET("/refacciones/:id/conciliacion", ih.Reconcile)
	return e
}

func bearer(t *testing.T, id auth.Identity) string {
	t.Helper()
	token, _, err := testJWT.GenerateAccessToken(id)
	require.NoError(t, err)
	return "Bearer " + token
}

var (
	customerID = auth.Identity{UserID: 7, Email: "cliente@example.com"}
	adminID    = auth.Identity{UserID: 1, Email: "admin@example.com", Role: auth.RoleAdmin}
)

func doRequest(t *testing.T, e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// ============================================
// Fakes
// ============================================

type fakeOrderService struct {
	CheckoutFn     func(ctx context.Context, user *auth.Identity, items []dto.CheckoutItem) (*model.Order, error)
	IdempotentKeys []string
	UpdateFn       func(ctx context.Context, id uint, target model.OrderStatus, tracking *string) (*model.Order, error)
	GetFn          func(ctx context.Context, user *auth.Identity, id uint) (*model.Order, error)
}

func (f *fakeOrderService) Checkout(ctx context.Context, user *auth.Identity, items []dto.CheckoutItem) (*model.Order, error) {
	return f.CheckoutFn(ctx, user, items)
}

func (f *fakeOrderService) CheckoutIdempotent(ctx context.Context, user *auth.Identity, key string, items []dto.CheckoutItem) (*model.Order, error) {
	f.IdempotentKeys = append(f.IdempotentKeys, key)
	return f.CheckoutFn(ctx, user, items)
}

func (f *fakeOrderService) UpdateStatus(ctx context.Context, id uint, target model.OrderStatus, tracking *string) (*model.Order, error) {
	return f.UpdateFn(ctx, id, target, tracking)
}

func (f *fakeOrderService) CancelExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeOrderService) GetOrder(ctx context.Context, user *auth.Identity, id uint) (*model.Order, error) {
	return f.GetFn(ctx, user, id)
}

func (f *fakeOrderService) ListOrders(ctx context.Context, user *auth.Identity) ([]*model.Order, error) {
	return []*model.Order{{ID: 1, UserID: user.UserID, Status: model.OrderCreated}}, nil
}

type fakePaymentService struct {
	PreferenceFn func(ctx context.Context, user *auth.Identity, orderID uint) (*dto.PreferenceInfo, error)
	WebhookFn    func(ctx context.Context, req webhook.Request) (*dto.WebhookAck, error)
	Received     []webhook.Request
}

func (f *fakePaymentService) CreatePreference(ctx context.Context, user *auth.Identity, orderID uint) (*dto.PreferenceInfo, error) {
	return f.PreferenceFn(ctx, user, orderID)
}

func (f *fakePaymentService) HandleWebhook(ctx context.Context, req webhook.Request) (*dto.WebhookAck, error) {
	f.Received = append(f.Received, req)
	return f.WebhookFn(ctx, req)
}

func (f *fakePaymentService) GetPayment(ctx context.Context, user *auth.Identity, id uint) (*model.Payment, error) {
	if id != 5 {
		return nil, service.ErrPaymentNotFound
	}
	return &model.Payment{ID: 5, UserID: user.UserID, Status: model.PaymentPending, Amount: decimal.NewFromInt(10), RawPayload: "secret"}, nil
}

type fakeInventoryService struct {
	EntryFn       func(partID uint, qty int64, price *decimal.Decimal, note string) (*model.Movement, error)
	ReturnInputs  []service.ReturnInput
	DeleteErr     error
	MovementLimit int
}

func (f *fakeInventoryService) RegisterEntry(ctx context.Context, partID uint, qty int64, price *decimal.Decimal, note string) (*model.Movement, error) {
	return f.EntryFn(partID, qty, price, note)
}

func (f *fakeInventoryService) RegisterExit(ctx context.Context, partID uint, qty int64, price *decimal.Decimal, note string) (*model.Movement, error) {
	if qty > 3 {
		return nil, service.ErrInsufficientStock
	}
	return &model.Movement{ID: 2, PartID: partID, Quantity: qty, Direction: model.MovementExit}, nil
}

func (f *fakeInventoryService) RegisterExitInTx(ctx context.Context, tx *gorm.DB, partID uint, qty int64, price *decimal.Decimal, reason model.MovementReason, note string) (*model.Movement, error) {
	return nil, nil
}

func (f *fakeInventoryService) RegisterReturn(ctx context.Context, in service.ReturnInput) (*model.Return, error) {
	f.ReturnInputs = append(f.ReturnInputs, in)
	return &model.Return{ID: 1, PartID: in.PartID, Quantity: in.Quantity, SaleID: in.SaleID}, nil
}

func (f *fakeInventoryService) CreatePart(ctx context.Context, in service.NewPart) (*model.Part, error) {
	return &model.Part{ID: 10, PartNumber: in.PartNumber, Name: in.Name, Price: in.Price, Stock: in.InitialStock}, nil
}

func (f *fakeInventoryService) DeletePart(ctx context.Context, partID uint) error {
	return f.DeleteErr
}

func (f *fakeInventoryService) GetPart(ctx context.Context, partID uint) (*model.Part, error) {
	return nil, service.ErrPartNotFound
}

func (f *fakeInventoryService) Reconcile(ctx context.Context, partID uint) (*dto.StockReport, error) {
	return &dto.StockReport{PartID: partID, Counter: 4, LedgerSum: 4, Movements: 2, Consistent: true}, nil
}

func (f *fakeInventoryService) ListMovements(ctx context.Context, partID uint, limit int) ([]*model.Movement, error) {
	f.MovementLimit = limit
	return []*model.Movement{}, nil
}
