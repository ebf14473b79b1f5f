package handler

import (
	"errors"
	"net/http"
	"strconv"

	"marketpay/internal/config"
	"marketpay/internal/middleware"
	"marketpay/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// usecaseのエラーをHTTPへ写す。詳細は内側に出さない。
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var ve *usecase.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Message})
	}

	var ise *usecase.InvalidStateError
	if errors.As(err, &ise) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: ise.Reason})
	}

	var ite *usecase.IllegalTransitionError
	if errors.As(err, &ite) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: ite.Error()})
	}

	var iv *usecase.InvariantViolationError
	if errors.As(err, &iv) {
		//中身はログにだけ残っている
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	raw := c.Get(middleware.CtxUserIDKey)
	id, ok := raw.(int64)
	return id, ok && id > 0
}

type OrderHandler struct {
	uc     *usecase.OrderUsecase
	cancel *usecase.CancelUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase, cancel *usecase.CancelUsecase) *OrderHandler {
	return &OrderHandler{uc: uc, cancel: cancel}
}

type OrderCreateRequest struct {
	Items           []usecase.PlaceOrderItemInput `json:"items"`
	ShippingName    string                        `json:"shipping_name"`
	ShippingAddress string                        `json:"shipping_address"`
	Discount        string                        `json:"discount"`
}

type OrderCancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.GET("/:id/tracking", h.tracking)
	g.POST("/:id/cancel", h.cancelOrder)
	g.POST("/:id/retry-payment", h.retryPayment)
}

func (h *OrderHandler) create(c echo.Context) error {
	buyerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("X-Idempotency-Key")

	out, err := h.uc.PlaceOrder(c.Request().Context(), buyerID, usecase.PlaceOrderInput{
		Items:           req.Items,
		ShippingName:    req.ShippingName,
		ShippingAddress: req.ShippingAddress,
		Discount:        req.Discount,
		IdempotencyKey:  idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	buyerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), buyerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	buyerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetMyOrderDetail(c.Request().Context(), buyerID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) tracking(c echo.Context) error {
	buyerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	events, err := h.uc.GetOrderTracking(c.Request().Context(), buyerID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *OrderHandler) cancelOrder(c echo.Context) error {
	buyerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req OrderCancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.cancel.Cancel(c.Request().Context(), buyerID, id, req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *OrderHandler) retryPayment(c echo.Context) error {
	buyerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	ref, err := h.uc.RetryPayment(c.Request().Context(), buyerID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"payment_ref": ref})
}
