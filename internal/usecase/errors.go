package usecase

import (
	"errors"
	"fmt"

	"marketpay/internal/domain/model"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// ValidationError は入力不正。どこにもmutationが走る前に弾く。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IllegalTransitionError は状態機械が拒否した遷移
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// InvalidStateError は現在の注文状態では許可されないコマンド
type InvalidStateError struct {
	Status model.OrderStatus
	Reason string
}

func (e *InvalidStateError) Error() string {
	return e.Reason
}

// InvariantViolationError は金額整合性などの致命的な破れ。
// 絶対に握りつぶさず、該当処理を止めてオペレーター対応に回す。
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Message
}

func NewInvariantViolation(format string, args ...interface{}) error {
	return &InvariantViolationError{Message: fmt.Sprintf(format, args...)}
}
