package repository

import (
	"context"

	repo "marketpay/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders        repo.OrderRepository
	orderItems    repo.OrderItemRepository
	transactions  repo.PaymentTransactionRepository
	commissions   repo.CommissionRepository
	webhookEvents repo.WebhookEventRepository
	inventory     repo.InventoryRepository
	products      repo.ProductRepository
	auditLogs     repo.AuditLogRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository                      { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository              { return r.orderItems }
func (r *txReposGorm) Transactions() repo.PaymentTransactionRepository   { return r.transactions }
func (r *txReposGorm) Commissions() repo.CommissionRepository            { return r.commissions }
func (r *txReposGorm) WebhookEvents() repo.WebhookEventRepository        { return r.webhookEvents }
func (r *txReposGorm) Inventory() repo.InventoryRepository               { return r.inventory }
func (r *txReposGorm) Products() repo.ProductRepository                  { return r.products }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository                { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:        NewOrderGormRepository(tx),
			orderItems:    NewOrderItemGormRepository(tx),
			transactions:  NewPaymentTransactionGormRepository(tx),
			commissions:   NewCommissionGormRepository(tx),
			webhookEvents: NewWebhookEventGormRepository(tx),
			inventory:     NewInventoryGormRepository(tx),
			products:      NewProductGormRepository(tx),
			auditLogs:     NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
