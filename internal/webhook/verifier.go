package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	//署名不一致。payloadは一切信用しない。
	ErrInvalidSignature = errors.New("invalid signature")
	//リプレイ対策の許容時間を外れたイベント
	ErrStaleEvent = errors.New("stale event")
)

// Verifier はゲートウェイwebhookの署名とタイムスタンプを検証する
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// VerifySignature はraw bodyに対するHMAC-SHA256（hex）を定数時間で比較する
func (v *Verifier) VerifySignature(rawBody []byte, signatureHex string) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	want := mac.Sum(nil)

	if !hmac.Equal(sig, want) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyFreshness はイベントのタイムスタンプが許容時間内かを確認する
func (v *Verifier) VerifyFreshness(eventTime time.Time) error {
	diff := v.now().Sub(eventTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > v.tolerance {
		return ErrStaleEvent
	}
	return nil
}

// Sign はテストや送信側シミュレーション用
func (v *Verifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
