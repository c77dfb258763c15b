package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"partstore-core/internal/auth"
	"partstore-core/internal/client"
	"partstore-core/internal/dto"
	"partstore-core/internal/metrics"
	"partstore-core/internal/model"
	"partstore-core/internal/repository"
	"partstore-core/internal/webhook"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentService interface {
	CreatePreference(ctx context.Context, user *auth.Identity, orderID uint) (*dto.PreferenceInfo, error)
	HandleWebhook(ctx context.Context, req webhook.Request) (*dto.WebhookAck, error)
	GetPayment(ctx context.Context, user *auth.Identity, paymentID uint) (*model.Payment, error)
}

type PaymentOptions struct {
	BaseURL         string // public URL of this API, used for notification_url
	FrontendURL     string // where the provider sends the buyer back
	Currency        string
	ProviderTimeout time.Duration
}

type paymentServiceImpl struct {
	db          *gorm.DB
	mpClient    client.MercadoPagoClient
	verifier    *webhook.Verifier
	fulfillment FulfillmentService
	partRepo    repository.PartRepository
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	alertRepo   repository.FulfillmentAlertRepository
	outboxRepo  repository.OutboxRepository
	deliveries  repository.WebhookDeliveryRepository
	opts        PaymentOptions
	log         *zap.Logger
}

func NewPaymentService(
	db *gorm.DB,
	mpClient client.MercadoPagoClient,
	verifier *webhook.Verifier,
	fulfillment FulfillmentService,
	partRepo repository.PartRepository,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	alertRepo repository.FulfillmentAlertRepository,
	outboxRepo repository.OutboxRepository,
	deliveries repository.WebhookDeliveryRepository,
	opts PaymentOptions,
	log *zap.Logger,
) PaymentService {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "MXN"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")

	return &paymentServiceImpl{
		db:          db,
		mpClient:    mpClient,
		verifier:    verifier,
		fulfillment: fulfillment,
		partRepo:    partRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		alertRepo:   alertRepo,
		outboxRepo:  outboxRepo,
		deliveries:  deliveries,
		opts:        opts,
		log:         log.Named("payment"),
	}
}

// CreatePreference registers the order with the provider. The PENDING payment
// row and the provider call share one transaction: if the provider fails, the
// row is rolled back.
func (s *paymentServiceImpl) CreatePreference(ctx context.Context, user *auth.Identity, orderID uint) (info *dto.PreferenceInfo, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.CreatePreference")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.Int64("order.id", int64(orderID)))

	if !user.Authenticated() {
		return nil, ErrAuthenticationRequired
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := lockOrderPayment(ctx, tx, s.paymentRepo, orderID)
		if err != nil {
			return err
		}

		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}
		if order.UserID != user.UserID {
			return ErrForbidden
		}
		if order.Status != model.OrderCreated {
			return fmt.Errorf("%w: order %d is %s", ErrAlreadyProcessed, orderID, order.Status)
		}

		switch {
		case payment == nil:
			payment = &model.Payment{
				OrderID:  &order.ID,
				UserID:   user.UserID,
				Status:   model.PaymentPending,
				Amount:   order.Total,
				Currency: s.opts.Currency,
			}
			if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
				return fmt.Errorf("store payment in db: %w", err)
			}
		case payment.Status != model.PaymentPending:
			return fmt.Errorf("%w: payment %d is %s", ErrAlreadyProcessed, payment.ID, payment.Status)
		}

		prefReq, err := s.buildPreference(ctx, tx, user, order, payment)
		if err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
		defer cancel()
		pref, err := s.mpClient.CreatePreference(callCtx, prefReq)
		if err != nil {
			return providerError(err)
		}

		payment.PreferenceID = &pref.ID
		if err := s.paymentRepo.Save(ctx, tx, payment); err != nil {
			return fmt.Errorf("update payment preference: %w", err)
		}

		info = &dto.PreferenceInfo{
			PaymentID:        payment.ID,
			PreferenceID:     pref.ID,
			InitPoint:        pref.InitPoint,
			SandboxInitPoint: pref.SandboxInitPoint,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment preference created",
		zap.Uint("order_id", orderID),
		zap.Uint("payment_id", info.PaymentID),
		zap.String("preference_id", info.PreferenceID),
	)
	return info, nil
}

func (s *paymentServiceImpl) buildPreference(ctx context.Context, tx *gorm.DB, user *auth.Identity, order *model.Order, payment *model.Payment) (*model.MPPreferenceRequest, error) {
	partIDs := make([]uint, len(order.Lines))
	for i, l := range order.Lines {
		partIDs[i] = l.PartID
	}
	parts, err := s.partRepo.FindMany(ctx, tx, partIDs)
	if err != nil {
		return nil, fmt.Errorf("load parts: %w", err)
	}
	names := make(map[uint]string, len(parts))
	for _, p := range parts {
		names[p.ID] = p.Name
	}

	items := make([]model.MPItem, len(order.Lines))
	for i, l := range order.Lines {
		title := names[l.PartID]
		if title == "" {
			title = fmt.Sprintf("Part %d", l.PartID)
		}
		items[i] = model.MPItem{
			ID:         strconv.FormatUint(uint64(l.PartID), 10),
			Title:      truncate(title, 250),
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.InexactFloat64(),
			CurrencyID: payment.Currency,
		}
	}

	return &model.MPPreferenceRequest{
		Items: items,
		Payer: model.MPPayer{
			Name:  user.Name,
			Email: user.Email,
		},
		BackURLs: model.MPBackURLs{
			Success: s.opts.FrontendURL + "/pago/exito",
			Failure: s.opts.FrontendURL + "/pago/fallo",
			Pending: s.opts.FrontendURL + "/pago/pendiente",
		},
		AutoReturn:        "approved",
		ExternalReference: strconv.FormatUint(uint64(payment.ID), 10),
		NotificationURL:   s.opts.BaseURL + "/api/v1/pagos/webhook",
		Expires:           true,
	}, nil
}

// HandleWebhook reconciles one provider notification. Only data.id is taken
// from the request; status and amount come from the provider's API.
func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, req webhook.Request) (ack *dto.WebhookAck, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.HandleWebhook")
	var n *webhook.Notification
	defer func() {
		outcome := "error"
		if ack != nil {
			outcome = ack.Status
		}
		metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()
		s.recordDelivery(ctx, req, n, outcome, err)
		finishSpan(span, err)
	}()

	n, err = webhook.Parse(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if !n.IsPayment() {
		return &dto.WebhookAck{Status: dto.WebhookIgnored}, nil
	}
	span.SetAttributes(attribute.String("provider.payment_id", n.DataID))

	if err := s.verifier.Verify(req.Header, n.DataID); err != nil {
		s.log.Warn("webhook signature rejected",
			zap.String("data_id", n.DataID),
			zap.String("request_id", req.Header.Get(webhook.HeaderRequestID)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	remote, err := s.mpClient.GetPayment(callCtx, n.DataID)
	cancel()
	if err != nil {
		return nil, providerError(err)
	}

	paymentID, err := strconv.ParseUint(strings.TrimSpace(remote.ExternalReference), 10, 64)
	if err != nil || paymentID == 0 {
		return nil, fmt.Errorf("%w: external_reference %q", ErrPaymentNotFound, remote.ExternalReference)
	}

	ack = &dto.WebhookAck{PaymentID: uint(paymentID)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.LockByID(ctx, tx, uint(paymentID))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
		}
		if err != nil {
			return fmt.Errorf("lock payment %d: %w", paymentID, err)
		}

		next := model.PaymentStatusFromProvider(remote.Status)
		ack.PaymentStatus = string(next)
		if next == payment.Status {
			ack.Status = dto.WebhookDuplicate
			return nil
		}
		if !model.PaymentCanTransition(payment.Status, next) {
			ack.Status = dto.WebhookStale
			ack.PaymentStatus = string(payment.Status)
			s.log.Warn("stale payment notification",
				zap.Uint("payment_id", payment.ID),
				zap.String("provider_payment_id", remote.ID.String()),
				zap.String("current", string(payment.Status)),
				zap.String("reported", string(next)),
			)
			return nil
		}

		prev := payment.Status
		providerID := remote.ID.String()
		payment.ProviderPaymentID = &providerID
		payment.Status = next
		payment.StatusDetail = truncate(remote.StatusDetail, 255)
		payment.RawPayload = string(remote.Raw)
		if next == model.PaymentApproved {
			now := time.Now()
			payment.ApprovedAt = &now
		}
		if err := s.paymentRepo.Save(ctx, tx, payment); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		if err := enqueueEvent(ctx, tx, s.outboxRepo, aggregatePayment, payment.ID, EventPaymentStatusChanged, map[string]any{
			"payment_id": payment.ID,
			"order_id":   payment.OrderID,
			"from":       prev,
			"to":         next,
		}); err != nil {
			return err
		}
		ack.Status = dto.WebhookProcessed

		s.log.Info("payment status changed",
			zap.Uint("payment_id", payment.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
		)

		if next != model.PaymentApproved || payment.OrderID == nil {
			return nil
		}

		_, ferr := s.fulfillment.FulfillInTx(ctx, tx, *payment.OrderID)
		if ferr == nil {
			ack.Fulfilled = true
			return nil
		}

		// Money has moved at the provider. Keep APPROVED and leave a record
		// for manual reconciliation instead of failing the delivery.
		alert := &model.FulfillmentAlert{
			PaymentID: payment.ID,
			OrderID:   *payment.OrderID,
			Reason:    truncate(ferr.Error(), 1000),
		}
		if err := s.alertRepo.Create(ctx, tx, alert); err != nil {
			return fmt.Errorf("store fulfillment alert: %w", err)
		}
		if err := enqueueEvent(ctx, tx, s.outboxRepo, aggregateOrder, *payment.OrderID, EventFulfillmentFailed, map[string]any{
			"payment_id": payment.ID,
			"order_id":   *payment.OrderID,
			"alert_id":   alert.ID,
			"reason":     alert.Reason,
		}); err != nil {
			return err
		}
		ack.AlertID = alert.ID

		metrics.FulfillmentAlerts.Inc()
		s.log.Error("fulfillment failed after payment approval",
			zap.Uint("payment_id", payment.ID),
			zap.Uint("order_id", *payment.OrderID),
			zap.Uint("alert_id", alert.ID),
			zap.Error(ferr),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ack, nil
}

// recordDelivery is best effort: a failed audit write never changes the answer
// given to the provider.
func (s *paymentServiceImpl) recordDelivery(ctx context.Context, req webhook.Request, n *webhook.Notification, outcome string, err error) {
	d := &model.WebhookDelivery{
		RequestID: truncate(req.Header.Get(webhook.HeaderRequestID), 128),
		Outcome:   outcome,
	}
	if n != nil {
		d.Topic = truncate(n.Topic, 64)
		d.DataID = n.DataID
	}
	if err != nil {
		d.Error = truncate(err.Error(), 500)
	}
	if rerr := s.deliveries.Record(context.WithoutCancel(ctx), d); rerr != nil {
		s.log.Warn("record webhook delivery", zap.String("request_id", d.RequestID), zap.Error(rerr))
	}
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, user *auth.Identity, paymentID uint) (*model.Payment, error) {
	if !user.Authenticated() {
		return nil, ErrAuthenticationRequired
	}

	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if payment.UserID != user.UserID && !user.IsAdmin() {
		return nil, ErrForbidden
	}
	return payment, nil
}

func providerError(err error) error {
	if errors.Is(err, client.ErrNotConfigured) {
		return fmt.Errorf("%w: %v", ErrProviderNotConfigured, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
