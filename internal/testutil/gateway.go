package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/qs3c/cake_billing_server/internal/pkg/aur"
)

// FakeGateway 可编排的网关替身，记录所有调用
type FakeGateway struct {
	mu sync.Mutex

	// ChargeFunc 为空时默认受理并返回 TOKEN-<orderID>
	ChargeFunc func(req aur.ChargeRequest) (*aur.ChargeResult, error)
	// StatusFunc 为空时返回 PENDING
	StatusFunc func(token string) (*aur.StatusResult, error)

	Charges      []aur.ChargeRequest
	StatusChecks []string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (g *FakeGateway) CreateCharge(ctx context.Context, req aur.ChargeRequest) (*aur.ChargeResult, error) {
	g.mu.Lock()
	g.Charges = append(g.Charges, req)
	fn := g.ChargeFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &aur.ChargeResult{Success: true, Token: "TOKEN-" + req.OrderID, Status: "CREATED"}, nil
}

func (g *FakeGateway) CheckTransactionStatus(ctx context.Context, token string) (*aur.StatusResult, error) {
	g.mu.Lock()
	g.StatusChecks = append(g.StatusChecks, token)
	fn := g.StatusFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(token)
	}
	return &aur.StatusResult{Token: token, Status: "PENDING"}, nil
}

// ChargeCount 已发起的扣款次数
func (g *FakeGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Charges)
}

// RejectCharges 让后续扣款全部被网关拒绝
func (g *FakeGateway) RejectCharges(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ChargeFunc = func(req aur.ChargeRequest) (*aur.ChargeResult, error) {
		return &aur.ChargeResult{Success: false, Error: reason}, nil
	}
}

// FailCharges 让后续扣款返回网络错误
func (g *FakeGateway) FailCharges(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ChargeFunc = func(req aur.ChargeRequest) (*aur.ChargeResult, error) {
		return nil, fmt.Errorf("fake gateway: %w", err)
	}
}

// SetStatus 让状态查询返回指定状态码
func (g *FakeGateway) SetStatus(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.StatusFunc = func(token string) (*aur.StatusResult, error) {
		return &aur.StatusResult{Token: token, Status: status, TransactionID: "TX-" + token}, nil
	}
}
