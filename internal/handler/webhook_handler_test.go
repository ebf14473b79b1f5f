package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"marketpay/internal/usecase"
	"marketpay/internal/webhook"
)

func postWebhook(h *WebhookHandler, body string, sig string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sig != "" {
		req.Header.Set(signatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = h.receive(c)
	return rec
}

func TestWebhookHandler_RejectsMissingSignature(t *testing.T) {
	v := webhook.NewVerifier("whsec_test", 5*time.Minute)
	h := NewWebhookHandler(v, nil)

	rec := postWebhook(h, `{"event_id":"evt_1"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_RejectsTamperedBody(t *testing.T) {
	v := webhook.NewVerifier("whsec_test", 5*time.Minute)
	h := NewWebhookHandler(v, nil)

	signed := []byte(`{"event_id":"evt_1"}`)
	sig := v.Sign(signed)

	rec := postWebhook(h, `{"event_id":"evt_EVIL"}`, sig)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_RejectsWrongSecret(t *testing.T) {
	signer := webhook.NewVerifier("whsec_other", 5*time.Minute)
	v := webhook.NewVerifier("whsec_test", 5*time.Minute)
	h := NewWebhookHandler(v, nil)

	body := `{"event_id":"evt_1"}`
	rec := postWebhook(h, body, signer.Sign([]byte(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_RejectsStaleTimestamp(t *testing.T) {
	v := webhook.NewVerifier("whsec_test", 5*time.Minute)
	h := NewWebhookHandler(v, nil)

	//許容時間を大きく超えた古いイベント
	old := time.Now().Add(-time.Hour).Unix()
	body := fmt.Sprintf(`{"event_id":"evt_1","event_type":"payment.approved","transaction_reference":"pi_1","status":"approved","timestamp":%d}`, old)

	rec := postWebhook(h, body, v.Sign([]byte(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_RejectsMalformedJSON(t *testing.T) {
	v := webhook.NewVerifier("whsec_test", 5*time.Minute)
	h := NewWebhookHandler(v, nil)

	body := `{not json`
	rec := postWebhook(h, body, v.Sign([]byte(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_AcknowledgesEventWithoutIdentifiers(t *testing.T) {
	v := webhook.NewVerifier("whsec_test", 5*time.Minute)
	//識別子が欠けたイベントはusecase側で即ACKされ、repoには触れない
	h := NewWebhookHandler(v, usecase.NewWebhookUsecase(nil, nil, nil))

	body := fmt.Sprintf(`{"event_type":"payment.approved","timestamp":%d}`, time.Now().Unix())
	rec := postWebhook(h, body, v.Sign([]byte(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
}
