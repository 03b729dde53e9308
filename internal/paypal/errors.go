package paypal

import (
	"errors"
	"fmt"
)

// ErrAuth возвращается, когда шлюз отверг учётные данные сервиса или
// токен не удалось получить.
var ErrAuth = errors.New("paypal: не удалось получить access token")

// RequestError означает сетевую ошибку или 5xx от шлюза: запрос можно
// повторить, состояние на стороне шлюза неизвестно.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("paypal: %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// RejectedError означает, что шлюз отклонил запрос (4xx): повтор с теми
// же параметрами не поможет.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("paypal: %s отклонён, код %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRejected сообщает, отклонил ли шлюз запрос.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
