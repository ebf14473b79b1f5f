package usecase

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"marketpay/internal/domain/model"
	"marketpay/internal/gateway"
)

func newTestCancelUsecase(r *TxReposMock, gw *GatewayClientMock) *CancelUsecase {
	sm := newTestStateMachine(r, "0.10")
	return NewCancelUsecase(&TxManagerMock{Repos: r}, gw, sm)
}

func TestCancel_RefundAcceptedBeforeOrderCancelled(t *testing.T) {
	r := newTxReposMock()
	gw := &GatewayClientMock{}
	uc := newTestCancelUsecase(r, gw)

	approved := model.PaymentTransaction{
		ID: 2, OrderID: 10, GatewayRef: "pi_1",
		Amount: mustMoney(t, "134.00"),
		Status: model.TransactionStatusApproved, Version: 3,
	}

	r.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, BuyerID: 1, Status: model.OrderStatusProcessing, Version: 2,
	}, nil)
	r.transactions.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.PaymentTransaction{approved}, nil)

	gw.On("Refund", mock.Anything, mock.MatchedBy(func(in gateway.RefundInput) bool {
		return in.OrderID == 10 && in.Ref == "pi_1" && in.Amount.Equal(mustMoney(t, "134.00"))
	})).Return(gateway.Refund{Ref: "re_1", Status: "pending"}, nil)

	//以降はApplyCancel側
	r.orders.On("UpdateStatusVersioned", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusCancelled && o.CancelReason == "cancelled by buyer"
	}), int64(2)).Return(nil)
	r.auditLogs.On("Create", mock.Anything, mock.MatchedBy(func(al model.AuditLog) bool {
		return al.Action == model.AuditActionCancelOrder && al.ActorID == 1
	})).Return(nil)
	r.orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	r.transactions.On("FindActiveByOrderID", mock.Anything, int64(10)).Return(model.PaymentTransaction{}, false, nil)
	r.transactions.On("UpdateStatusVersioned", mock.Anything, mock.MatchedBy(func(tx model.PaymentTransaction) bool {
		return tx.ID == 2 && tx.RefundRef == "re_1"
	}), int64(3)).Return(nil)

	err := uc.Cancel(testCtx(), 1, 10, "")

	assert.NoError(t, err)
	gw.AssertExpectations(t)
	r.orders.AssertExpectations(t)
}

func TestCancel_RefundUnavailableLeavesOrderUntouched(t *testing.T) {
	r := newTxReposMock()
	gw := &GatewayClientMock{}
	uc := newTestCancelUsecase(r, gw)

	r.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, BuyerID: 1, Status: model.OrderStatusProcessing, Version: 2,
	}, nil)
	r.transactions.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.PaymentTransaction{
		{ID: 2, OrderID: 10, GatewayRef: "pi_1", Amount: mustMoney(t, "134.00"), Status: model.TransactionStatusApproved},
	}, nil)

	gw.On("Refund", mock.Anything, mock.Anything).Return(gateway.Refund{}, gateway.ErrGatewayUnavailable)

	err := uc.Cancel(testCtx(), 1, 10, "changed my mind")

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, he.Status)
	assert.Zero(t, callCount(&r.orders.Mock, "UpdateStatusVersioned"))
}

func TestCancel_RefundRejectedReturnsBadGateway(t *testing.T) {
	r := newTxReposMock()
	gw := &GatewayClientMock{}
	uc := newTestCancelUsecase(r, gw)

	r.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, BuyerID: 1, Status: model.OrderStatusProcessing, Version: 2,
	}, nil)
	r.transactions.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.PaymentTransaction{
		{ID: 2, OrderID: 10, GatewayRef: "pi_1", Amount: mustMoney(t, "134.00"), Status: model.TransactionStatusApproved},
	}, nil)

	gw.On("Refund", mock.Anything, mock.Anything).Return(gateway.Refund{}, &gateway.APIError{StatusCode: 422, Message: "already refunded"})

	err := uc.Cancel(testCtx(), 1, 10, "")

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, he.Status)
	assert.Zero(t, callCount(&r.orders.Mock, "UpdateStatusVersioned"))
}

func TestCancel_ShippedOrderRejectedWithoutRefund(t *testing.T) {
	r := newTxReposMock()
	gw := &GatewayClientMock{}
	uc := newTestCancelUsecase(r, gw)

	r.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, BuyerID: 1, Status: model.OrderStatusShipped,
	}, nil)
	r.transactions.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.PaymentTransaction{}, nil)

	err := uc.Cancel(testCtx(), 1, 10, "")

	var ise *InvalidStateError
	assert.ErrorAs(t, err, &ise)
	assert.Equal(t, model.OrderStatusShipped, ise.Status)
	assert.Zero(t, callCount(&gw.Mock, "Refund"))
	assert.Zero(t, callCount(&r.orders.Mock, "UpdateStatusVersioned"))
}

func TestCancel_PendingOrderSkipsRefund(t *testing.T) {
	r := newTxReposMock()
	gw := &GatewayClientMock{}
	uc := newTestCancelUsecase(r, gw)

	r.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, BuyerID: 1, Status: model.OrderStatusPending, Version: 1,
	}, nil)
	r.transactions.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.PaymentTransaction{}, nil)

	r.orders.On("UpdateStatusVersioned", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusCancelled
	}), int64(1)).Return(nil)
	r.auditLogs.On("Create", mock.Anything, mock.Anything).Return(nil)
	r.orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{
		{ProductID: 3, Quantity: 2},
	}, nil)
	r.inventory.On("IncreaseStock", mock.Anything, int64(3), int64(2)).Return(nil)
	r.transactions.On("FindActiveByOrderID", mock.Anything, int64(10)).Return(model.PaymentTransaction{}, false, nil)

	err := uc.Cancel(testCtx(), 1, 10, "changed my mind")

	assert.NoError(t, err)
	assert.Zero(t, callCount(&gw.Mock, "Refund"))
	r.inventory.AssertExpectations(t)
}

func TestCancel_OtherBuyersOrderIsHidden(t *testing.T) {
	r := newTxReposMock()
	gw := &GatewayClientMock{}
	uc := newTestCancelUsecase(r, gw)

	r.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, BuyerID: 1, Status: model.OrderStatusPending,
	}, nil)
	r.transactions.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.PaymentTransaction{}, nil)

	err := uc.Cancel(testCtx(), 2, 10, "")

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}
