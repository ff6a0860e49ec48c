package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/model"
)

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) Create(company *model.Company) error {
	return r.db.Create(company).Error
}

func (r *CompanyRepository) GetByID(id int64) (*model.Company, error) {
	var company model.Company
	err := r.db.Where("id = ?", id).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *CompanyRepository) GetByOrderID(orderID string) (*model.Company, error) {
	var company model.Company
	err := r.db.Where("order_id = ?", orderID).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *CompanyRepository) Update(company *model.Company) error {
	return r.db.Save(company).Error
}

func (r *CompanyRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Company{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *CompanyRepository) ExistsByPhone(phone string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Company{}).Where("phone = ?", phone).Count(&count).Error
	return count > 0, err
}

func (r *CompanyRepository) ExistsByName(name string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Company{}).Where("name = ?", name).Count(&count).Error
	return count > 0, err
}

// ListDue 获取到期需要续费的 active 公司
func (r *CompanyRepository) ListDue(now time.Time, limit int) ([]*model.Company, error) {
	var companies []*model.Company
	err := r.db.Where("subscription_status = ? AND next_billing_date <= ?", model.SubscriptionActive, now).
		Order("next_billing_date ASC").
		Limit(limit).
		Find(&companies).Error
	return companies, err
}

func (r *CompanyRepository) CountByStatus(status model.SubscriptionStatus) (int64, error) {
	var count int64
	err := r.db.Model(&model.Company{}).Where("subscription_status = ?", status).Count(&count).Error
	return count, err
}

func (r *CompanyRepository) CountDue(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Company{}).
		Where("subscription_status = ? AND next_billing_date <= ?", model.SubscriptionActive, now).
		Count(&count).Error
	return count, err
}
