package aur

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/qs3c/cake_billing_server/internal/billing"
)

// SignatureHeader 回调签名请求头
const SignatureHeader = "X-Aur-Signature"

var ErrMalformedPayload = errors.New("aur: malformed webhook payload")

// Event 归一化后的回调事件。解析失败时 Err 非空，调用方仍应确认收到。
type Event struct {
	OrderID       string `json:"order_id"`
	Token         string `json:"token"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message,omitempty"`
	IsSuccessful  bool   `json:"is_successful"`
	IsFailed      bool   `json:"is_failed"`
	Raw           string `json:"raw"`
	Err           error  `json:"-"`
}

type webhookPayload struct {
	OrderID       string `json:"order_id"`
	Token         string `json:"token"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
	ErrorMessage  string `json:"error_message"`
}

// ParseWebhook 把网关回调转为 Event，不会 panic 也不返回 error
func ParseWebhook(body []byte) Event {
	event := Event{Raw: string(body)}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		event.Err = ErrMalformedPayload
		return event
	}

	event.OrderID = strings.TrimSpace(p.OrderID)
	event.Token = strings.TrimSpace(p.Token)
	event.Status = strings.ToUpper(strings.TrimSpace(p.Status))
	event.TransactionID = strings.TrimSpace(p.TransactionID)
	event.Message = p.Message
	if event.Message == "" {
		event.Message = p.ErrorMessage
	}

	if event.OrderID == "" && event.Token == "" {
		event.Err = errors.New("aur: webhook carries neither order_id nor token")
		return event
	}
	if event.Status == "" {
		event.Err = errors.New("aur: webhook carries no status")
		return event
	}

	event.IsSuccessful = billing.IsTerminalSuccess(event.Status)
	event.IsFailed = billing.IsTerminalFailure(event.Status)
	return event
}

// Result 转为计费核心使用的网关结果
func (e Event) Result() billing.GatewayResult {
	return billing.GatewayResult{
		Status:        e.Status,
		Token:         e.Token,
		TransactionID: e.TransactionID,
		Message:       e.Message,
		Raw:           e.Raw,
	}
}

// Result 转为计费核心使用的网关结果
func (s StatusResult) Result() billing.GatewayResult {
	return billing.GatewayResult{
		Status:        s.Status,
		Token:         s.Token,
		TransactionID: s.TransactionID,
		Message:       s.Message,
		Raw:           s.Raw,
	}
}

// Sign 计算回调体的 HMAC-SHA256 签名（小写十六进制）
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 校验回调签名；未配置密钥时不校验
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return true
	}
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")
	if sig == "" {
		return false
	}

	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}
