package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"partstore-core/internal/config"
	"partstore-core/internal/model"
	"strings"
)

var ErrNotConfigured = errors.New("mercadopago access token not configured")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago error %d: %s", e.StatusCode, e.Body)
}

type MercadoPagoClient interface {
	CreatePreference(ctx context.Context, req *model.MPPreferenceRequest) (*model.MPPreference, error)
	GetPayment(ctx context.Context, paymentID string) (*model.MPPayment, error)
}

type mercadoPagoClientImpl struct {
	httpClient  *http.Client
	baseApiURL  string
	accessToken string
}

func NewMercadoPagoClient(mpCfg *config.MercadoPago) MercadoPagoClient {
	return &mercadoPagoClientImpl{
		httpClient: &http.Client{
			Timeout: mpCfg.Timeout,
		},
		baseApiURL:  strings.TrimRight(mpCfg.BaseApiURL, "/"),
		accessToken: mpCfg.AccessToken,
	}
}

func (c *mercadoPagoClientImpl) CreatePreference(ctx context.Context, prefReq *model.MPPreferenceRequest) (*model.MPPreference, error) {
	body, err := json.Marshal(prefReq)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/checkout/preferences", body)
	if err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}

	var result model.MPPreference
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode preference response: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("preference response without id")
	}

	return &result, nil
}

func (c *mercadoPagoClientImpl) GetPayment(ctx context.Context, paymentID string) (*model.MPPayment, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", paymentID, err)
	}

	var payment model.MPPayment
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	payment.Raw = json.RawMessage(respBody)

	return &payment, nil
}

func (c *mercadoPagoClientImpl) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.accessToken == "" {
		return nil, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
