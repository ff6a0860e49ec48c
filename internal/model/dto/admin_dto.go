package dto

type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AdminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type ConfirmPaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Notes   string `json:"notes"`
}

type ConfirmPaymentResponse struct {
	OrderID     string `json:"orderId"`
	CompanyID   int64  `json:"companyId"`
	Status      string `json:"status"`
	ConfirmedBy string `json:"confirmedBy"`
}

type PaymentLogItem struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"orderId"`
	CompanyID   int64  `json:"companyId"`
	ConfirmedBy string `json:"confirmedBy"`
	Amount      int64  `json:"amount"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"createdAt"`
}
