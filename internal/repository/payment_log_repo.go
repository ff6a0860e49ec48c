package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/model"
)

// PaymentLogFilter 审计记录查询条件，零值字段不参与过滤
type PaymentLogFilter struct {
	CompanyID   int64
	OrderID     string
	ConfirmedBy string
	Limit       int
}

// PaymentLogRepository 只提供追加与查询
type PaymentLogRepository struct {
	db *gorm.DB
}

func NewPaymentLogRepository(db *gorm.DB) *PaymentLogRepository {
	return &PaymentLogRepository{db: db}
}

func (r *PaymentLogRepository) Append(entry *model.PaymentLog) error {
	return r.db.Create(entry).Error
}

func (r *PaymentLogRepository) ExistsByOrderID(orderID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.PaymentLog{}).Where("order_id = ?", orderID).Count(&count).Error
	return count > 0, err
}

func (r *PaymentLogRepository) List(filter PaymentLogFilter) ([]*model.PaymentLog, error) {
	query := r.db.Model(&model.PaymentLog{})
	if filter.CompanyID != 0 {
		query = query.Where("company_id = ?", filter.CompanyID)
	}
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.ConfirmedBy != "" {
		query = query.Where("confirmed_by = ?", filter.ConfirmedBy)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []*model.PaymentLog
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
