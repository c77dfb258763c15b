package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"partstore-core/internal/auth"
	"partstore-core/internal/client"
	"partstore-core/internal/dto"
	"partstore-core/internal/model"
	"partstore-core/internal/repository"
	"partstore-core/internal/webhook"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test"

var (
	customer = &auth.Identity{UserID: 7, Email: "cliente@example.com", Name: "Cliente"}
	stranger = &auth.Identity{UserID: 8, Email: "otro@example.com"}
	admin    = &auth.Identity{UserID: 1, Role: auth.RoleAdmin}
)

// newTestDB opens a private in-memory sqlite database. One connection means
// transactions run one after another, standing in for row locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, client.Migrate(db))
	return db
}

type testEnv struct {
	db          *gorm.DB
	inventory   InventoryService
	orders      OrderService
	fulfillment FulfillmentService
	payments    PaymentService
	mp          *fakeMPClient
	idempotency *fakeIdempotencyRepo
	verifier    *webhook.Verifier
	alerts      repository.FulfillmentAlertRepository
	sales       repository.SaleRepository
	outbox      repository.OutboxRepository
	deliveries  repository.WebhookDeliveryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	log := zaptest.NewLogger(t)

	partRepo := repository.NewPartRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	returnRepo := repository.NewReturnRepository(db)
	alertRepo := repository.NewFulfillmentAlertRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db)

	env := &testEnv{
		db:          db,
		mp:          newFakeMPClient(),
		idempotency: newFakeIdempotencyRepo(),
		verifier:    webhook.NewVerifier(testWebhookSecret),
		alerts:      alertRepo,
		sales:       saleRepo,
		outbox:      outboxRepo,
		deliveries:  deliveryRepo,
	}

	env.inventory = NewInventoryService(db, partRepo, movementRepo, orderRepo, saleRepo, returnRepo, outboxRepo, log)
	env.orders = NewOrderService(db, partRepo, orderRepo, paymentRepo, outboxRepo, env.idempotency, log)
	env.fulfillment = NewFulfillmentService(db, env.inventory, orderRepo, saleRepo, outboxRepo, log)
	env.payments = NewPaymentService(db, env.mp, env.verifier, env.fulfillment,
		partRepo, orderRepo, paymentRepo, alertRepo, outboxRepo, deliveryRepo,
		PaymentOptions{
			BaseURL:         "https://api.example.com/",
			FrontendURL:     "https://shop.example.com",
			Currency:        "MXN",
			ProviderTimeout: time.Second,
		}, log)

	return env
}

var partSeq int

func (e *testEnv) seedPart(t *testing.T, price string, stock int64) *model.Part {
	t.Helper()
	partSeq++

	part, err := e.inventory.CreatePart(context.Background(), NewPart{
		PartNumber:   fmt.Sprintf("PN-%04d", partSeq),
		Name:         fmt.Sprintf("Part %d", partSeq),
		Brand:        "Bosch",
		Price:        decimal.RequireFromString(price),
		InitialStock: stock,
	})
	require.NoError(t, err)
	return part
}

func (e *testEnv) stockOf(t *testing.T, partID uint) int64 {
	t.Helper()
	var part model.Part
	require.NoError(t, e.db.First(&part, partID).Error)
	return part.Stock
}

func (e *testEnv) count(t *testing.T, m any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (e *testEnv) order(t *testing.T, id uint) *model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, e.db.Preload("Lines").First(&o, id).Error)
	return &o
}

func (e *testEnv) payment(t *testing.T, id uint) *model.Payment {
	t.Helper()
	var p model.Payment
	require.NoError(t, e.db.First(&p, id).Error)
	return &p
}

// checkoutAndPrefer creates an order for customer and its pending payment.
func (e *testEnv) checkoutAndPrefer(t *testing.T, items ...dto.CheckoutItem) (*model.Order, *dto.PreferenceInfo) {
	t.Helper()
	ctx := context.Background()

	order, err := e.orders.Checkout(ctx, customer, items)
	require.NoError(t, err)

	info, err := e.payments.CreatePreference(ctx, customer, order.ID)
	require.NoError(t, err)
	return order, info
}

// signedWebhook builds a delivery for providerID signed with the test secret.
func (e *testEnv) signedWebhook(providerID string) webhook.Request {
	requestID := uuid.NewString()
	h := http.Header{}
	h.Set("x-request-id", requestID)
	h.Set("x-signature", e.verifier.Sign(providerID, requestID, strconv.FormatInt(time.Now().Unix(), 10)))

	return webhook.Request{
		Header: h,
		Query:  url.Values{"type": {"payment"}, "data.id": {providerID}},
		Body:   []byte(`{"action":"payment.updated","type":"payment","data":{"id":"` + providerID + `"}}`),
	}
}

// ============================================
// Fakes
// ============================================

type fakeMPClient struct {
	mu              sync.Mutex
	PreferenceCalls []*model.MPPreferenceRequest
	PaymentCalls    []string
	payments        map[string]*model.MPPayment
	PreferenceErr   error
	PaymentErr      error
}

func newFakeMPClient() *fakeMPClient {
	return &fakeMPClient{payments: make(map[string]*model.MPPayment)}
}

func (f *fakeMPClient) CreatePreference(ctx context.Context, req *model.MPPreferenceRequest) (*model.MPPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PreferenceCalls = append(f.PreferenceCalls, req)
	if f.PreferenceErr != nil {
		return nil, f.PreferenceErr
	}
	id := fmt.Sprintf("pref-%d", len(f.PreferenceCalls))
	return &model.MPPreference{
		ID:        id,
		InitPoint: "https://mp.example.com/checkout?pref_id=" + id,
	}, nil
}

func (f *fakeMPClient) GetPayment(ctx context.Context, paymentID string) (*model.MPPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PaymentCalls = append(f.PaymentCalls, paymentID)
	if f.PaymentErr != nil {
		return nil, f.PaymentErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, &client.APIError{StatusCode: http.StatusNotFound, Body: `{"message":"not found"}`}
	}
	cp := *p
	return &cp, nil
}

// SetPayment registers what the provider reports for providerID.
func (f *fakeMPClient) SetPayment(providerID, status string, localPaymentID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.payments[providerID] = &model.MPPayment{
		ID:                json.Number(providerID),
		Status:            status,
		StatusDetail:      status + "_detail",
		ExternalReference: strconv.FormatUint(uint64(localPaymentID), 10),
		CurrencyID:        "MXN",
		Raw:               []byte(`{"id":` + providerID + `,"status":"` + status + `"}`),
	}
}

func (f *fakeMPClient) paymentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.PaymentCalls)
}

type fakeIdempotencyRepo struct {
	mu      sync.Mutex
	values  map[string]uint
	LookErr error
}

func newFakeIdempotencyRepo() *fakeIdempotencyRepo {
	return &fakeIdempotencyRepo{values: make(map[string]uint)}
}

func (f *fakeIdempotencyRepo) Lookup(ctx context.Context, key string) (uint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LookErr != nil {
		return 0, false, f.LookErr
	}
	id, ok := f.values[key]
	return id, ok, nil
}

func (f *fakeIdempotencyRepo) Remember(ctx context.Context, key string, orderID uint, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		f.values[key] = orderID
	}
	return nil
}

var errProviderDown = errors.New("connection refused")

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
