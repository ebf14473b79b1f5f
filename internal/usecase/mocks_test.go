package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketpay/internal/domain/model"
	"marketpay/internal/gateway"
	repo "marketpay/internal/repository"
)

func testCtx() context.Context {
	return context.Background()
}

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(m.Repos)
}

type TxReposMock struct {
	orders        *OrderRepoMock
	orderItems    *OrderItemRepoMock
	transactions  *TransactionRepoMock
	commissions   *CommissionRepoMock
	webhookEvents *WebhookEventRepoMock
	inventory     *InventoryRepoMock
	products      *ProductRepoMock
	auditLogs     *AuditLogRepoMock
}

func newTxReposMock() *TxReposMock {
	return &TxReposMock{
		orders:        &OrderRepoMock{},
		orderItems:    &OrderItemRepoMock{},
		transactions:  &TransactionRepoMock{},
		commissions:   &CommissionRepoMock{},
		webhookEvents: &WebhookEventRepoMock{},
		inventory:     &InventoryRepoMock{},
		products:      &ProductRepoMock{},
		auditLogs:     &AuditLogRepoMock{},
	}
}

func (r *TxReposMock) Orders() repo.OrderRepository                    { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository            { return r.orderItems }
func (r *TxReposMock) Transactions() repo.PaymentTransactionRepository { return r.transactions }
func (r *TxReposMock) Commissions() repo.CommissionRepository          { return r.commissions }
func (r *TxReposMock) WebhookEvents() repo.WebhookEventRepository      { return r.webhookEvents }
func (r *TxReposMock) Inventory() repo.InventoryRepository             { return r.inventory }
func (r *TxReposMock) Products() repo.ProductRepository                { return r.products }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository              { return r.auditLogs }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByBuyerID(ctx context.Context, buyerID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, buyerID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) UpdateStatusVersioned(ctx context.Context, order model.Order, fromVersion int64) error {
	args := m.Called(ctx, order, fromVersion)
	return args.Error(0)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, buyerID int64, key string) (model.Order, bool, error) {
	args := m.Called(ctx, buyerID, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type TransactionRepoMock struct{ mock.Mock }

func (m *TransactionRepoMock) Create(ctx context.Context, tx model.PaymentTransaction) (int64, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *TransactionRepoMock) FindByGatewayRef(ctx context.Context, ref string) (model.PaymentTransaction, error) {
	args := m.Called(ctx, ref)
	tx, _ := args.Get(0).(model.PaymentTransaction)
	return tx, args.Error(1)
}

func (m *TransactionRepoMock) FindActiveByOrderID(ctx context.Context, orderID int64) (model.PaymentTransaction, bool, error) {
	args := m.Called(ctx, orderID)
	tx, _ := args.Get(0).(model.PaymentTransaction)
	return tx, args.Bool(1), args.Error(2)
}

func (m *TransactionRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.PaymentTransaction, error) {
	args := m.Called(ctx, orderID)
	txs, _ := args.Get(0).([]model.PaymentTransaction)
	return txs, args.Error(1)
}

func (m *TransactionRepoMock) UpdateStatusVersioned(ctx context.Context, tx model.PaymentTransaction, fromVersion int64) error {
	args := m.Called(ctx, tx, fromVersion)
	return args.Error(0)
}

type CommissionRepoMock struct{ mock.Mock }

func (m *CommissionRepoMock) Create(ctx context.Context, rec model.CommissionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *CommissionRepoMock) FindByOrderID(ctx context.Context, orderID int64) (model.CommissionRecord, bool, error) {
	args := m.Called(ctx, orderID)
	rec, _ := args.Get(0).(model.CommissionRecord)
	return rec, args.Bool(1), args.Error(2)
}

type WebhookEventRepoMock struct{ mock.Mock }

func (m *WebhookEventRepoMock) Insert(ctx context.Context, ev model.WebhookEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *InventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

type AuditLogRepoMock struct{ mock.Mock }

func (m *AuditLogRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditLogRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, f)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) FindByID(ctx context.Context, productID int64) (model.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

// =====================
// Gateway client mock
// =====================

type GatewayClientMock struct{ mock.Mock }

func (m *GatewayClientMock) CreateIntent(ctx context.Context, in gateway.CreateIntentInput) (gateway.Intent, error) {
	args := m.Called(ctx, in)
	intent, _ := args.Get(0).(gateway.Intent)
	return intent, args.Error(1)
}

func (m *GatewayClientMock) GetStatus(ctx context.Context, ref string) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

func (m *GatewayClientMock) Refund(ctx context.Context, in gateway.RefundInput) (gateway.Refund, error) {
	args := m.Called(ctx, in)
	r, _ := args.Get(0).(gateway.Refund)
	return r, args.Error(1)
}
