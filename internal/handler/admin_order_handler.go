package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketpay/internal/config"
	"marketpay/internal/gateway"
	"marketpay/internal/middleware"
	repo "marketpay/internal/repository"
	"marketpay/internal/usecase"

	"github.com/labstack/echo/v4"
)

// OrderReconciler は結果不明のまま残った決済をゲートウェイに問い合わせて突き合わせる
type OrderReconciler interface {
	ReconcileOrder(ctx context.Context, orderID int64) error
}

type AdminOrderHandler struct {
	uc  *usecase.FulfillmentUsecase
	rec OrderReconciler
}

func NewAdminOrderHandler(uc *usecase.FulfillmentUsecase, rec OrderReconciler) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc, rec: rec}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/admin/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.AdminRoleGuard())

	g.GET("", h.list)
	g.GET("/:id/audit", h.audit)
	g.POST("/:id/ship", h.ship)
	g.POST("/:id/deliver", h.deliver)
	g.POST("/:id/reconcile", h.reconcile)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	f := repo.AdminOrderListFilter{Page: 1, Limit: 20}

	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		f.Page = n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		f.Limit = n
	}
	f.Status = c.QueryParam("status")
	if v := c.QueryParam("buyer_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid buyer_id"})
		}
		f.BuyerID = &n
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
		}
		f.To = &t
	}

	out, err := h.uc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) ship(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.MarkShipped(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "shipped"})
}

func (h *AdminOrderHandler) deliver(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.MarkDelivered(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "delivered"})
}

func (h *AdminOrderHandler) audit(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	logs, err := h.uc.ListAuditTrail(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// webhookが落ちたまま不明で残った決済のための手動突き合わせ
func (h *AdminOrderHandler) reconcile(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.rec.ReconcileOrder(c.Request().Context(), id); err != nil {
		if errors.Is(err, gateway.ErrGatewayUnavailable) || errors.Is(err, gateway.ErrOutcomeUnknown) {
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "gateway unavailable, retry later"})
		}
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "gateway rejected status query"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reconciled"})
}
