package paypal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CaptureCompleted — статус, при котором средства считаются полученными.
// Любой другой статус capture — восстановимая неудача, не исключение.
const CaptureCompleted = "COMPLETED"

// Client выполняет запросы к PayPal REST API. Единственный компонент,
// которому разрешено общаться с платёжным процессором.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient создаёт клиента шлюза с ограниченным таймаутом запросов.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// OrderResult возвращается после создания заказа.
type OrderResult struct {
	OrderID     string
	ApprovalURL string
}

// CaptureResult возвращается после финализации платежа.
type CaptureResult struct {
	CaptureID   string
	Status      string
	GrossAmount float64
	Fee         float64
	NetAmount   float64
	Currency    string
}

// PayoutResult возвращается после отправки выплаты продавцу.
type PayoutResult struct {
	PayoutID string
	Status   string
}

// RefundResult возвращается после возврата средств покупателю.
type RefundResult struct {
	RefundID string
	Status   string
}

// GetAccessToken получает короткоживущий bearer токен. Токен кэшируется
// не дольше заявленного шлюзом срока действия.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))

	body := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(body.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: код ответа %d", ErrAuth, resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if result.AccessToken == "" {
		return "", ErrAuth
	}

	c.mu.Lock()
	c.token = result.AccessToken
	// Обновляем чуть раньше срока, чтобы не отдать протухший токен.
	c.tokenExp = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - 30*time.Second)
	c.mu.Unlock()

	return result.AccessToken, nil
}

// CreateOrder создаёт оплачиваемый заказ и возвращает ссылку на
// страницу подтверждения.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency, returnURL, cancelURL string) (*OrderResult, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]string{
					"currency_code": currency,
					"value":         formatAmount(amount),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var result struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := c.post(ctx, "createOrder", "/v2/checkout/orders", payload, &result); err != nil {
		return nil, err
	}

	order := &OrderResult{OrderID: result.ID}
	for _, link := range result.Links {
		if link.Rel == "approve" {
			order.ApprovalURL = link.Href
		}
	}
	return order, nil
}

// CaptureOrder финализирует платёж. Вызывающий обязан проверить
// Status == CaptureCompleted прежде чем считать средства полученными.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var result struct {
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Amount struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
					Breakdown struct {
						GrossAmount struct {
							Value string `json:"value"`
						} `json:"gross_amount"`
						PayPalFee struct {
							Value string `json:"value"`
						} `json:"paypal_fee"`
						NetAmount struct {
							Value string `json:"value"`
						} `json:"net_amount"`
					} `json:"seller_receivable_breakdown"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}

	path := "/v2/checkout/orders/" + orderID + "/capture"
	if err := c.post(ctx, "captureOrder", path, map[string]any{}, &result); err != nil {
		return nil, err
	}

	if len(result.PurchaseUnits) == 0 || len(result.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, &RequestError{Op: "captureOrder", Err: fmt.Errorf("ответ без capture")}
	}

	capture := result.PurchaseUnits[0].Payments.Captures[0]
	return &CaptureResult{
		CaptureID:   capture.ID,
		Status:      capture.Status,
		GrossAmount: parseAmount(capture.Breakdown.GrossAmount.Value, capture.Amount.Value),
		Fee:         parseAmount(capture.Breakdown.PayPalFee.Value, "0"),
		NetAmount:   parseAmount(capture.Breakdown.NetAmount.Value, capture.Amount.Value),
		Currency:    capture.Amount.CurrencyCode,
	}, nil
}

// Payout отправляет средства продавцу. Ключ идемпотентности передаётся
// как sender_batch_id: повтор после таймаута не приводит к двойной
// выплате.
func (c *Client) Payout(ctx context.Context, receiverEmail string, amount float64, currency, note, idempotencyKey string) (*PayoutResult, error) {
	payload := map[string]any{
		"sender_batch_header": map[string]string{
			"sender_batch_id": idempotencyKey,
			"email_subject":   "You have received a payment from Developer Marketplace",
			"email_message":   "You have received a payment for your service. Thank you for using our platform!",
		},
		"items": []map[string]any{
			{
				"recipient_type": "EMAIL",
				"amount": map[string]string{
					"value":    formatAmount(amount),
					"currency": currency,
				},
				"receiver": receiverEmail,
				"note":     note,
			},
		},
	}

	var result struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
			BatchStatus   string `json:"batch_status"`
		} `json:"batch_header"`
	}
	if err := c.post(ctx, "payout", "/v1/payments/payouts", payload, &result); err != nil {
		return nil, err
	}

	return &PayoutResult{
		PayoutID: result.BatchHeader.PayoutBatchID,
		Status:   result.BatchHeader.BatchStatus,
	}, nil
}

// Refund возвращает средства по ранее выполненному capture. Вызывающий
// обязан убедиться, что выплата продавцу ещё не прошла.
func (c *Client) Refund(ctx context.Context, captureID string, amount float64, currency, note string) (*RefundResult, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":         formatAmount(amount),
			"currency_code": currency,
		},
		"note_to_payer": note,
	}

	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := "/v2/payments/captures/" + captureID + "/refund"
	if err := c.post(ctx, "refund", path, payload, &result); err != nil {
		return nil, err
	}

	return &RefundResult{RefundID: result.ID, Status: result.Status}, nil
}

// post выполняет авторизованный запрос к шлюзу и декодирует ответ.
func (c *Client) post(ctx context.Context, op, path string, payload, out any) error {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &RequestError{Op: op, Err: fmt.Errorf("код ответа %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Err: err}
	}
	return nil
}

// formatAmount приводит сумму к формату шлюза ("90.00").
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// parseAmount разбирает сумму из ответа; при пустом значении берёт fallback.
func parseAmount(value, fallback string) float64 {
	if value == "" {
		value = fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}
