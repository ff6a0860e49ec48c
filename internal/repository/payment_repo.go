package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(payment *model.Payment) error {
	return r.db.Create(payment).Error
}

func (r *PaymentRepository) GetByID(id int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByOrderID(orderID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("order_id = ?", orderID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByToken(token string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("aur_token = ?", token).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) ExistsByOrderID(orderID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Payment{}).Where("order_id = ?", orderID).Count(&count).Error
	return count > 0, err
}

// GetLatestByCompany 获取公司最近一笔支付
func (r *PaymentRepository) GetLatestByCompany(companyID int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("company_id = ?", companyID).Order("created_at DESC, id DESC").First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByCompanyPeriod 获取公司在指定计费周期的所有支付，最新在前
func (r *PaymentRepository) ListByCompanyPeriod(companyID int64, periodStart time.Time) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.Where("company_id = ? AND billing_period_start = ?", companyID, periodStart).
		Order("created_at DESC, id DESC").
		Find(&payments).Error
	return payments, err
}

// SaveUnlessCompleted 仅当库中记录尚未 completed 时写入，返回是否写入
func (r *PaymentRepository) SaveUnlessCompleted(payment *model.Payment) (bool, error) {
	result := r.db.Model(&model.Payment{}).
		Where("id = ? AND status <> ?", payment.ID, model.PaymentCompleted).
		Select("*").
		Omit("id", "created_at").
		Updates(payment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListStaleProcessing 获取超过一定时间仍在 processing 的网关支付，用于轮询兜底
func (r *PaymentRepository) ListStaleProcessing(before time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.Where("status = ? AND payment_method = ? AND aur_token <> '' AND updated_at <= ?",
		model.PaymentProcessing, model.MethodAur, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// CancelOpenByCompany 取消公司所有未完成的支付
func (r *PaymentRepository) CancelOpenByCompany(companyID int64) (int64, error) {
	result := r.db.Model(&model.Payment{}).
		Where("company_id = ? AND status IN ?", companyID,
			[]model.PaymentStatus{model.PaymentPending, model.PaymentProcessing, model.PaymentFailed}).
		Updates(map[string]interface{}{
			"status":          model.PaymentCancelled,
			"next_retry_date": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *PaymentRepository) CountByStatus(statuses ...model.PaymentStatus) (int64, error) {
	var count int64
	err := r.db.Model(&model.Payment{}).Where("status IN ?", statuses).Count(&count).Error
	return count, err
}

// CountRetrying 失败但仍有重试计划的支付数
func (r *PaymentRepository) CountRetrying() (int64, error) {
	var count int64
	err := r.db.Model(&model.Payment{}).
		Where("status = ? AND next_retry_date IS NOT NULL", model.PaymentFailed).
		Count(&count).Error
	return count, err
}
