package aur

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/cake_billing_server/config"
)

var (
	// ErrTimeout 网关请求超时，可重试
	ErrTimeout = errors.New("aur: request timed out")
	// ErrUnavailable 网关不可达或返回 5xx，可重试
	ErrUnavailable = errors.New("aur: gateway unavailable")
	// ErrNotConfigured 缺少商户配置
	ErrNotConfigured = errors.New("aur: client not configured")
)

// ChargeRequest 发起扣款
type ChargeRequest struct {
	OrderID     string
	Phone       string
	Amount      int64
	Description string
}

// ChargeResult 扣款受理结果，Success 为 false 时 Error 为网关给出的原因
type ChargeResult struct {
	Success bool
	Token   string
	Status  string
	Error   string
	Raw     string
}

// StatusResult 交易状态查询结果
type StatusResult struct {
	Token         string
	OrderID       string
	Status        string
	TransactionID string
	Message       string
	Raw           string
}

type Client struct {
	BaseURL     string
	MerchantID  string
	APIKey      string
	CallbackURL string

	HTTPClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(cfg config.AurConfig, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		BaseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		MerchantID:  strings.TrimSpace(cfg.MerchantID),
		APIKey:      strings.TrimSpace(cfg.APIKey),
		CallbackURL: strings.TrimSpace(cfg.CallbackURL),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		log: log,
	}
}

type invoiceRequest struct {
	MerchantID  string `json:"merchant_id"`
	OrderID     string `json:"order_id"`
	Phone       string `json:"phone"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type invoiceResponse struct {
	Token         string    `json:"token"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	Message       string    `json:"message"`
	Error         *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateCharge 向用户手机发起一笔扣款请求。
// 网关拒绝时返回 Success=false 的结果；网络错误、超时、5xx 返回 error。
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if c.BaseURL == "" || c.MerchantID == "" {
		return nil, ErrNotConfigured
	}
	if req.OrderID == "" || req.Amount <= 0 {
		return &ChargeResult{Success: false, Error: "order id and positive amount are required"}, nil
	}

	payload, err := json.Marshal(invoiceRequest{
		MerchantID:  c.MerchantID,
		OrderID:     req.OrderID,
		Phone:       req.Phone,
		Amount:      req.Amount,
		Description: req.Description,
		CallbackURL: c.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, http.MethodPost, c.BaseURL+"/v1/invoices", payload)
	if err != nil {
		return nil, err
	}

	var out invoiceResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && status < 300 {
			return nil, fmt.Errorf("aur: decode invoice response: %w", err)
		}
	}

	if status >= 400 {
		return &ChargeResult{Success: false, Error: errorMessage(out, status, body), Raw: string(body)}, nil
	}
	if out.Token == "" {
		return &ChargeResult{Success: false, Error: "gateway returned no token", Raw: string(body)}, nil
	}

	c.log.WithFields(logrus.Fields{
		"order_id": req.OrderID,
		"token":    out.Token,
	}).Debug("aur invoice created")

	return &ChargeResult{Success: true, Token: out.Token, Status: out.Status, Raw: string(body)}, nil
}

// CheckTransactionStatus 轮询交易状态
func (c *Client) CheckTransactionStatus(ctx context.Context, token string) (*StatusResult, error) {
	if c.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("aur: token is required")
	}

	status, body, err := c.do(ctx, http.MethodGet, c.BaseURL+"/v1/invoices/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, err
	}

	var out invoiceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("aur: decode status response: %w", err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("aur: status query failed: %s", errorMessage(out, status, body))
	}

	if out.Token == "" {
		out.Token = token
	}
	return &StatusResult{
		Token:         out.Token,
		OrderID:       out.OrderID,
		Status:        strings.ToUpper(strings.TrimSpace(out.Status)),
		TransactionID: out.TransactionID,
		Message:       out.Message,
		Raw:           string(body),
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.MerchantID != "" {
		req.Header.Set("X-Merchant-Id", c.MerchantID)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: %s %s", ErrTimeout, method, endpoint)
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	c.log.WithFields(logrus.Fields{
		"method":  method,
		"status":  resp.StatusCode,
		"latency": time.Since(start),
	}).Debug("aur request")

	if resp.StatusCode >= 500 {
		return resp.StatusCode, body, fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorMessage(out invoiceResponse, status int, body []byte) string {
	if out.Error != nil && out.Error.Message != "" {
		return out.Error.Message
	}
	if out.Message != "" {
		return out.Message
	}
	return fmt.Sprintf("status=%d body=%s", status, strings.TrimSpace(string(body)))
}

// IsRetryable 超时与网关不可用可以重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}
