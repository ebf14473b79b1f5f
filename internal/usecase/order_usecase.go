package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketpay/internal/domain/model"
	"marketpay/internal/domain/money"
	"marketpay/internal/gateway"
	"marketpay/internal/logger"
	repo "marketpay/internal/repository"
)

type OrderUsecase struct {
	tx       repo.TransactionManager
	gw       gateway.Client
	taxRate  decimal.Decimal
	shipFee  money.Money
	currency string
	log      *zap.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, gw gateway.Client, taxRate decimal.Decimal, shippingFee decimal.Decimal, currency string) *OrderUsecase {
	return &OrderUsecase{
		tx:       tx,
		gw:       gw,
		taxRate:  taxRate,
		shipFee:  money.FromDecimal(shippingFee),
		currency: currency,
		log:      logger.L(),
	}
}

type PlaceOrderItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type PlaceOrderInput struct {
	Items           []PlaceOrderItemInput
	ShippingName    string
	ShippingAddress string
	Discount        string // 任意。"10.00"など。
	IdempotencyKey  string
}

type OrderItemOutput struct {
	ProductID int64       `json:"product_id"`
	Name      string      `json:"name"`
	SKU       string      `json:"sku"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int64       `json:"quantity"`
	LineTotal money.Money `json:"line_total"`
}

type OrderOutput struct {
	ID          int64             `json:"id"`
	OrderNumber string            `json:"order_number"`
	BuyerID     int64             `json:"buyer_id"`
	Status      string            `json:"status"`
	Subtotal    money.Money       `json:"subtotal"`
	Tax         money.Money       `json:"tax"`
	Shipping    money.Money       `json:"shipping"`
	Discount    money.Money       `json:"discount"`
	Total       money.Money       `json:"total"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []OrderItemOutput `json:"items"`

	//フロントの決済widgetに渡すintent参照（未発行なら空）
	PaymentRef string `json:"payment_ref,omitempty"`
}

func (u *OrderUsecase) PlaceOrder(ctx context.Context, buyerID int64, in PlaceOrderInput) (OrderOutput, error) {
	if buyerID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, NewValidationError("invalid idempotency_key")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewValidationError("items must not be empty")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return OrderOutput{}, NewValidationError("invalid item")
		}
	}
	if strings.TrimSpace(in.ShippingName) == "" || strings.TrimSpace(in.ShippingAddress) == "" {
		return OrderOutput{}, NewValidationError("shipping info is required")
	}

	discount := money.Zero()
	if in.Discount != "" {
		var err error
		discount, err = money.FromString(in.Discount)
		if err != nil || discount.IsNegative() {
			return OrderOutput{}, NewValidationError("invalid discount")
		}
	}

	var out OrderOutput

	//注文確定はトランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, buyerID, key)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = toOrderOutput(existing, items)
			return nil
		}

		//商品スナップショット＋在庫減算
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		subtotal := money.Zero()
		var vendorID int64

		for _, it := range in.Items {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewValidationError("product %d not found", it.ProductID)
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewValidationError("product %d is not available", it.ProductID)
			}

			//1注文は1出品者（手数料が注文単位のため）
			if vendorID == 0 {
				vendorID = p.VendorID
			} else if vendorID != p.VendorID {
				return NewValidationError("items must belong to a single vendor")
			}

			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewValidationError("product %d is out of stock", it.ProductID)
			}

			lineTotal := p.Price.MulInt(it.Quantity)
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           it.ProductID,
				ProductNameSnapshot: p.Name,
				SKUSnapshot:         p.SKU,
				UnitPrice:           p.Price,
				Quantity:            it.Quantity,
				LineTotal:           lineTotal,
			})
			subtotal = subtotal.Add(lineTotal)
		}

		if discount.Cmp(subtotal) > 0 {
			return NewValidationError("discount exceeds subtotal")
		}

		tax := money.FromDecimal(subtotal.Decimal().Mul(u.taxRate))
		total := subtotal.Add(tax).Add(u.shipFee).Sub(discount)

		order := model.Order{
			OrderNumber:     newOrderNumber(),
			BuyerID:         buyerID,
			VendorID:        vendorID,
			Status:          model.OrderStatusPending,
			Subtotal:        subtotal,
			Tax:             tax,
			Shipping:        u.shipFee,
			Discount:        discount,
			Total:           total,
			ShippingName:    strings.TrimSpace(in.ShippingName),
			ShippingAddress: strings.TrimSpace(in.ShippingAddress),
			IdempotencyKey:  key,
		}

		//構成上ここで破れることはないが、金額を書く前に必ず確認する
		if !order.CheckTotals() {
			return NewInvariantViolation("order totals inconsistent at creation")
		}
		for _, oi := range orderItems {
			if !oi.CheckLineTotal() {
				return NewInvariantViolation("line total inconsistent for product %d", oi.ProductID)
			}
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//競合（同時に同じキーが入った等）はもう一回検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, buyerID, key)
			if err2 == nil && found2 {
				items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
				if err3 != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				out = toOrderOutput(ex2, items2)
				return nil
			}
			return NewHTTPError(http.StatusBadRequest, "idempotency conflict")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.ID = orderID
		out = toOrderOutput(order, orderItems)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	//intent発行はDBロックの外。失敗しても注文はPENDINGのまま残り、後から再試行できる。
	ref, err := u.ensureIntent(ctx, out.ID)
	if err != nil {
		u.log.Warn("payment intent not issued, order stays pending",
			zap.Int64("order_id", out.ID),
			zap.Error(err))
		return out, NewHTTPError(http.StatusServiceUnavailable, "payment temporarily unavailable, retry later")
	}
	out.PaymentRef = ref
	return out, nil
}

// ensureIntent はPENDINGの注文に未終了トランザクションが無ければintentを発行して記録する。
// 冪等キーは注文IDと試行回数から決まるので、結果不明後の再実行で二重請求にならない。
func (u *OrderUsecase) ensureIntent(ctx context.Context, orderID int64) (string, error) {
	var o model.Order
	var attempt int
	var activeRef string

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, err = r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if atx, found, err := r.Transactions().FindActiveByOrderID(ctx, orderID); err != nil {
			return err
		} else if found {
			activeRef = atx.GatewayRef
			return nil
		}
		txs, err := r.Transactions().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		attempt = len(txs) + 1
		return nil
	})
	if err != nil {
		return "", err
	}
	if activeRef != "" {
		return activeRef, nil
	}
	if o.Status != model.OrderStatusPending {
		return "", &InvalidStateError{
			Status: o.Status,
			Reason: fmt.Sprintf("cannot start payment for a %s order", strings.ToLower(string(o.Status))),
		}
	}

	//外部呼び出し中はロックを持たない
	intent, err := u.gw.CreateIntent(ctx, gateway.CreateIntentInput{
		OrderID:   o.ID,
		Amount:    o.Total,
		Currency:  u.currency,
		Reference: o.OrderNumber,
		Attempt:   attempt,
	})
	if err != nil {
		return "", err
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//同じintentが既に記録済みなら何もしない（冪等な再実行）
		if _, err := r.Transactions().FindByGatewayRef(ctx, intent.Ref); err == nil {
			return nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		//レースで先に別のトランザクションが入っていたら作らない
		if _, found, err := r.Transactions().FindActiveByOrderID(ctx, orderID); err != nil {
			return err
		} else if found {
			return nil
		}
		_, err := r.Transactions().Create(ctx, model.PaymentTransaction{
			OrderID:    o.ID,
			GatewayRef: intent.Ref,
			Amount:     o.Total,
			Currency:   u.currency,
			Status:     model.TransactionStatusPending,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return intent.Ref, nil
}

// RetryPayment は決済が確定していないPENDING注文の再試行
func (u *OrderUsecase) RetryPayment(ctx context.Context, buyerID int64, orderID int64) (string, error) {
	if buyerID <= 0 {
		return "", NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return "", NewValidationError("invalid id")
	}

	var o model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, err = r.Orders().FindByID(ctx, orderID)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return "", NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return "", NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.BuyerID != buyerID {
		//他人の注文は「存在しない扱い」にする
		return "", NewHTTPError(http.StatusNotFound, "not found")
	}

	return u.ensureIntent(ctx, orderID)
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, buyerID int64) ([]OrderOutput, error) {
	if buyerID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByBuyerID(ctx, buyerID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, buyerID int64, orderID int64) (OrderOutput, error) {
	if buyerID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.BuyerID != buyerID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)

		if atx, found, err := r.Transactions().FindActiveByOrderID(ctx, orderID); err == nil && found {
			out.PaymentRef = atx.GatewayRef
		}
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

type TimelineEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// GetOrderTracking は注文の時系列ビュー（買い手向け読み取り専用）
func (u *OrderUsecase) GetOrderTracking(ctx context.Context, buyerID int64, orderID int64) ([]TimelineEvent, error) {
	if buyerID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return nil, NewValidationError("invalid id")
	}

	var events []TimelineEvent

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.BuyerID != buyerID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		events = append(events, TimelineEvent{Type: "created", At: o.CreatedAt})

		txs, err := r.Transactions().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		for _, tx := range txs {
			events = append(events, TimelineEvent{
				Type: "payment_attempted",
				At:   tx.CreatedAt,
				Note: tx.GatewayRef,
			})
			if tx.ConfirmedAt != nil {
				events = append(events, TimelineEvent{
					Type: "payment_" + strings.ToLower(string(tx.Status)),
					At:   *tx.ConfirmedAt,
					Note: tx.GatewayRef,
				})
			}
		}

		if o.ConfirmedAt != nil {
			events = append(events, TimelineEvent{Type: "confirmed", At: *o.ConfirmedAt})
		}
		if o.ShippedAt != nil {
			events = append(events, TimelineEvent{Type: "shipped", At: *o.ShippedAt})
		}
		if o.DeliveredAt != nil {
			events = append(events, TimelineEvent{Type: "delivered", At: *o.DeliveredAt})
		}
		if o.CancelledAt != nil {
			events = append(events, TimelineEvent{Type: "cancelled", At: *o.CancelledAt, Note: o.CancelReason})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
	return events, nil
}

func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:13])
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			SKU:       it.SKUSnapshot,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}

	return OrderOutput{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		BuyerID:     o.BuyerID,
		Status:      string(o.Status),
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		Shipping:    o.Shipping,
		Discount:    o.Discount,
		Total:       o.Total,
		CreatedAt:   o.CreatedAt,
		Items:       outItems,
	}
}
