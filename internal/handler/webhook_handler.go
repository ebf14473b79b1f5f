package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"marketpay/internal/usecase"
	"marketpay/internal/webhook"

	"github.com/labstack/echo/v4"
)

const signatureHeader = "X-Webhook-Signature"

// webhookPayload はゲートウェイから届くbody。
// RefundRefはrefund系イベントにだけ入る。
type webhookPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	TxRef     string `json:"transaction_reference"`
	Status    string `json:"status"`
	RefundRef string `json:"refund_reference"`
	Timestamp int64  `json:"timestamp"`
}

type WebhookHandler struct {
	verifier *webhook.Verifier
	uc       *usecase.WebhookUsecase
}

func NewWebhookHandler(verifier *webhook.Verifier, uc *usecase.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, uc: uc}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	//認証はmiddlewareではなく署名検証。JWT groupには入れない。
	e.POST("/webhooks/payment", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	//署名はraw bodyに対して計算されるので、Bindより先に読み切る
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot read body"})
	}

	sig := c.Request().Header.Get(signatureHeader)
	if err := h.verifier.VerifySignature(rawBody, sig); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
	}

	var p webhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.verifier.VerifyFreshness(time.Unix(p.Timestamp, 0)); err != nil {
		if errors.Is(err, webhook.ErrStaleEvent) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "stale event"})
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid timestamp"})
	}

	ev := usecase.InboundEvent{
		EventID:    p.EventID,
		EventType:  p.EventType,
		TxRef:      p.TxRef,
		Status:     p.Status,
		RefundRef:  p.RefundRef,
		RawPayload: string(rawBody),
	}

	if err := h.uc.Process(c.Request().Context(), ev); err != nil {
		//一時障害。5xxを返してゲートウェイに再配送させる。
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "temporary failure"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}
