package dto

// EmployeeInput 订阅请求中的员工信息
type EmployeeInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Birthday string `json:"birthday" validate:"required,datetime=2006-01-02"`
	CakeType string `json:"cakeType" validate:"max=100"`
	CakeSize string `json:"cakeSize" validate:"required,oneof=small medium large extra-large"`
	Notes    string `json:"notes" validate:"max=500"`
}

// SubscribeRequest POST /subscribe 与 /subscribe/bank-transfer 的请求体
// validate 标签由 service 层在规范化之后执行
type SubscribeRequest struct {
	CompanyName  string          `json:"companyName" validate:"required,max=200"`
	CompanyEmail string          `json:"companyEmail" validate:"required,email"`
	Phone        string          `json:"phone" validate:"required,len=7,numeric"`
	Employees    []EmployeeInput `json:"employees" validate:"required,min=1,dive"`
}

type SubscribeResponse struct {
	CompanyID          int64  `json:"companyId"`
	OrderID            string `json:"orderId"`
	Status             string `json:"status"` // 支付状态
	SubscriptionStatus string `json:"subscriptionStatus"`
	GatewayToken       string `json:"gatewayToken,omitempty"`
	Tier               string `json:"tier"`
	MonthlyCost        int64  `json:"monthlyCost"`
}

// RetrySubscribeRequest 首次扣款失败后重新发起
type RetrySubscribeRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// BankDetails 银行转账收款信息
type BankDetails struct {
	BankName      string `json:"bankName"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	IBAN          string `json:"iban,omitempty"`
	Reference     string `json:"reference"` // 转账备注填写订单号
	Amount        int64  `json:"amount"`
}

type BankTransferResponse struct {
	CompanyID   int64       `json:"companyId"`
	OrderID     string      `json:"orderId"`
	Status      string      `json:"status"`
	Tier        string      `json:"tier"`
	MonthlyCost int64       `json:"monthlyCost"`
	Bank        BankDetails `json:"bank"`
}

type CompanySummary struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	EmployeeCount      int    `json:"employeeCount"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	SubscriptionTier   string `json:"subscriptionTier"`
	MonthlyCost        int64  `json:"monthlyCost"`
	NextBillingDate    string `json:"nextBillingDate"`
	LastPaymentDate    string `json:"lastPaymentDate,omitempty"`
	IsActive           bool   `json:"isActive"`
}

type SubscriptionStatusResponse struct {
	Company       *CompanySummary `json:"company"`
	LatestPayment *PaymentSummary `json:"latestPayment,omitempty"`
}

// UpdateEmployeesRequest 替换员工名单
type UpdateEmployeesRequest struct {
	Employees []EmployeeInput `json:"employees" validate:"required,min=1,dive"`
}
