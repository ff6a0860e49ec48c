package repository

import (
	"gorm.io/gorm"
)

// Tx 一个事务内可用的仓储集合
type Tx struct {
	Companies   *CompanyRepository
	Payments    *PaymentRepository
	PaymentLogs *PaymentLogRepository
}

// Transactor 在单个数据库事务中执行多仓储操作
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// Do fn 返回错误时回滚
func (t *Transactor) Do(fn func(tx *Tx) error) error {
	return t.db.Transaction(func(db *gorm.DB) error {
		return fn(&Tx{
			Companies:   NewCompanyRepository(db),
			Payments:    NewPaymentRepository(db),
			PaymentLogs: NewPaymentLogRepository(db),
		})
	})
}
