// Package billing реализует клиент биллингового провайдера.
//
// Провайдер — источник истины по оплаченным подпискам: контроллер
// доступа запрашивает подписки клиента по email и считает доступ
// оплаченным при наличии активной подписки с нужной платформой
// в метаданных. Ответы кешируются вызывающим кодом.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"encoding/json"
)

// Client HTTP-клиент API биллингового провайдера.
type Client struct {
	apiURL     string
	secretKey  string
	httpClient *http.Client
}

// NewClient создает клиент биллингового провайдера.
func NewClient(apiURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     apiURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListSubscriptions возвращает подписки клиента по его email.
// Любая сетевая ошибка или не-2xx ответ считается отказом зависимости.
func (c *Client) ListSubscriptions(ctx context.Context, email string) ([]Subscription, error) {
	const op = "billing.ListSubscriptions"

	reqURL := fmt.Sprintf("%s/subscriptions?customer_email=%s", c.apiURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w", op, errors.New("unexpected status: "+resp.Status))
	}

	var parsed listSubscriptionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return parsed.Data, nil
}
