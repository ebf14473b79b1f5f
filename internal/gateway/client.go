package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketpay/internal/domain/money"
	"marketpay/internal/logger"
)

var (
	//リトライ尽きた／ブレーカーopen。注文はPENDINGのまま残す。
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	//タイムアウトで結果不明。失敗と断定せずstatusポーリングで突き合わせる。
	ErrOutcomeUnknown = errors.New("gateway outcome unknown")
)

// APIError はゲートウェイが返した4xx（リトライしない）
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api error %d: %s", e.StatusCode, e.Message)
}

type CreateIntentInput struct {
	OrderID   int64
	Amount    money.Money
	Currency  string
	Reference string // 注文番号
	Attempt   int    // この注文での何回目の決済試行か（冪等キーに使う）
}

type Intent struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
}

type RefundInput struct {
	OrderID int64
	Ref     string // 元トランザクションのゲートウェイ参照
	Amount  money.Money
	Attempt int
}

type Refund struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
}

type Client interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error)
	GetStatus(ctx context.Context, ref string) (string, error)
	Refund(ctx context.Context, in RefundInput) (Refund, error)
}

// HTTPClient は外部決済ゲートウェイのHTTPクライアント。
// リトライ（指数バックオフ+ジッタ）、ブレーカー、レート制限を内蔵する。
type HTTPClient struct {
	baseURL   string
	secretKey string

	httpc       *http.Client
	limiter     *rate.Limiter
	breaker     *Breaker
	maxAttempts int
	backoffBase time.Duration

	log *zap.Logger
}

type Option func(*HTTPClient)

func WithMaxAttempts(n int) Option {
	return func(c *HTTPClient) { c.maxAttempts = n }
}

func WithBackoffBase(d time.Duration) Option {
	return func(c *HTTPClient) { c.backoffBase = d }
}

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.httpc.Timeout = d }
}

func WithBreaker(b *Breaker) Option {
	return func(c *HTTPClient) { c.breaker = b }
}

func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func NewHTTPClient(baseURL string, secretKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		secretKey:   secretKey,
		httpc:       &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(20), 40),
		breaker:     NewBreaker(5, 30*time.Second),
		maxAttempts: 4,
		backoffBase: 200 * time.Millisecond,
		log:         logger.L(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *HTTPClient) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	body := map[string]interface{}{
		"amount":    in.Amount.String(),
		"currency":  in.Currency,
		"reference": in.Reference,
	}

	var out Intent
	err := c.doJSON(ctx, http.MethodPost, "/v1/intents", idemKey(in.OrderID, in.Attempt), body, &out)
	if err != nil {
		return Intent{}, err
	}
	return out, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, ref string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	//GETは冪等なのでキー不要
	err := c.doJSON(ctx, http.MethodGet, "/v1/intents/"+ref, "", nil, &out)
	if err != nil {
		//ポーリングに「不明」は無い。届かなければunavailable。
		if errors.Is(err, ErrOutcomeUnknown) {
			return "", ErrGatewayUnavailable
		}
		return "", err
	}
	return out.Status, nil
}

func (c *HTTPClient) Refund(ctx context.Context, in RefundInput) (Refund, error) {
	body := map[string]interface{}{
		"amount": in.Amount.String(),
	}

	var out Refund
	//作成側のキーと衝突しないようprefixを変える
	err := c.doJSON(ctx, http.MethodPost, "/v1/intents/"+in.Ref+"/refund", "refund-"+idemKey(in.OrderID, in.Attempt), body, &out)
	if err != nil {
		return Refund{}, err
	}
	return out, nil
}

// 冪等キーは注文IDと試行回数から決める。
// プロセス内リトライでは同じキーになるので、上流で成功済みの要求が二重実行されない。
func idemKey(orderID int64, attempt int) string {
	return fmt.Sprintf("order-%d-attempt-%d", orderID, attempt)
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetriable
	outcomeTerminal
)

// doJSON はリトライポリシーごと1回の論理呼び出しを実行する。
func (c *HTTPClient) doJSON(ctx context.Context, method string, path string, idempotencyKey string, body interface{}, out interface{}) error {
	var lastErr error
	lastWasTimeout := false

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		//openの間はfail fast
		if !c.breaker.Allow() {
			c.log.Warn("gateway circuit open",
				zap.String("path", path))
			return fmt.Errorf("circuit open: %w", ErrGatewayUnavailable)
		}

		//外向きレート制限
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := c.attempt(ctx, method, path, idempotencyKey, body, out)
		switch res {
		case outcomeSuccess:
			c.breaker.Success()
			return nil
		case outcomeTerminal:
			//ゲートウェイは生きていて明確に拒否した。ブレーカーは開けない。
			c.breaker.Success()
			return err
		case outcomeRetriable:
			c.breaker.Failure()
			lastErr = err
			lastWasTimeout = isTimeout(err)
			c.log.Warn("gateway attempt failed",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}

		if attempt == c.maxAttempts-1 {
			break
		}

		//指数バックオフ+ジッタ
		delay := c.backoffBase << uint(attempt)
		delay += time.Duration(rand.Int63n(int64(c.backoffBase)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	//書き込み系でタイムアウトが最後の失敗なら結果不明として返す
	if lastWasTimeout && method != http.MethodGet {
		return fmt.Errorf("%v: %w", lastErr, ErrOutcomeUnknown)
	}
	return fmt.Errorf("%v: %w", lastErr, ErrGatewayUnavailable)
}

func (c *HTTPClient) attempt(ctx context.Context, method string, path string, idempotencyKey string, body interface{}, out interface{}) (outcome, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return outcomeTerminal, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return outcomeTerminal, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		//ネットワーク起因はリトライ対象
		return outcomeRetriable, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return outcomeRetriable, fmt.Errorf("decode response: %w", err)
			}
		}
		return outcomeSuccess, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return outcomeRetriable, fmt.Errorf("gateway status %d: %s", resp.StatusCode, string(b))

	default:
		//その他4xxは確定失敗
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return outcomeTerminal, &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
