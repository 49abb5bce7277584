// Package apperr содержит таксономию ошибок приложения: каждая ошибка
// относится к одному из четырех классов (Transient/Permanent/Business/Fatal),
// что определяет стратегию обработки и HTTP-статус в ответе API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind классифицирует ошибку для выбора стратегии обработки.
type Kind string

const (
	// KindTransient - сетевая ошибка, 5xx биржи, rate-limit: повторить с backoff.
	KindTransient Kind = "transient"
	// KindPermanent - неверный символ, невалидный ключ, размер ниже минимума биржи.
	KindPermanent Kind = "permanent"
	// KindBusiness - бизнес-правило нарушено (недостаточно средств, позиция уже в процессе).
	KindBusiness Kind = "business"
	// KindFatal - приложение не может продолжать работу (нет ключа шифрования, несовпадение схемы БД).
	KindFatal Kind = "fatal"
)

// Code - стабильный строковый код ошибки, не меняется между релизами.
type Code string

const (
	CodeValidation          Code = "VALIDATION_FAILED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeTradeNotFound       Code = "TRADE_NOT_FOUND"
	CodePositionNotFound    Code = "POSITION_NOT_FOUND"
	CodeOpportunityNotFound Code = "OPPORTUNITY_NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodePositionInProgress  Code = "POSITION_IN_PROGRESS"
	CodeNoEligiblePositions Code = "NO_ELIGIBLE_POSITIONS"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeCannotDemoteSelf    Code = "CANNOT_DEMOTE_SELF"
	CodeExchangeUnavailable Code = "EXCHANGE_UNAVAILABLE"
	CodeInvalidCredentials  Code = "INVALID_CREDENTIALS"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// AppError - типизированная ошибка приложения с кодом, классом и сообщением,
// предназначенным для показа пользователю через структурированный конверт ответа.
type AppError struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus возвращает HTTP-статус, соответствующий коду ошибки.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden, CodeCannotDemoteSelf:
		return http.StatusForbidden
	case CodeNotFound, CodeTradeNotFound, CodePositionNotFound, CodeOpportunityNotFound:
		return http.StatusNotFound
	case CodeConflict, CodePositionInProgress:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInsufficientBalance, CodeNoEligiblePositions:
		return http.StatusBadRequest
	case CodeExchangeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code Code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code Code, message string, cause error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Cause: cause}
}

// Конструкторы для наиболее частых случаев, аналогично тому, как сервисный
// слой определяет свои Err*-синглтоны для конкретных нарушений.

func Validation(message string) *AppError {
	return New(KindPermanent, CodeValidation, message)
}

func Unauthorized(message string) *AppError {
	return New(KindPermanent, CodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(KindPermanent, CodeForbidden, message)
}

func NotFound(code Code, message string) *AppError {
	return New(KindPermanent, code, message)
}

func Conflict(code Code, message string) *AppError {
	return New(KindBusiness, code, message)
}

func RateLimited(message string) *AppError {
	return New(KindTransient, CodeRateLimited, message)
}

func Business(code Code, message string) *AppError {
	return New(KindBusiness, code, message)
}

// Fatal оборачивает ошибку, которая должна прервать запуск приложения
// (например, отсутствующий ENCRYPTION_KEY или несовпадение схемы БД).
func Fatal(message string, cause error) *AppError {
	return &AppError{Kind: KindFatal, Code: CodeInternal, Message: message, Cause: cause}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Kind: KindTransient, Code: CodeInternal, Message: message, Cause: cause}
}

// As пытается извлечь *AppError из произвольной ошибки через цепочку Unwrap.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind проверяет, относится ли ошибка (или любая ошибка в ее цепочке) к заданному классу.
func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// Envelope - структура тела ответа при ошибке, см. внешний HTTP-интерфейс.
type Envelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToEnvelope конвертирует ошибку в структуру ответа API. Ошибки, не являющиеся
// *AppError, представляются как непредвиденная внутренняя ошибка (500), без
// утечки деталей реализации пользователю.
func ToEnvelope(err error) (int, Envelope) {
	ae, ok := As(err)
	if !ok {
		return http.StatusInternalServerError, Envelope{
			Success: false,
			Error:   ErrorBody{Code: CodeInternal, Message: "internal server error"},
		}
	}
	return ae.HTTPStatus(), Envelope{
		Success: false,
		Error:   ErrorBody{Code: ae.Code, Message: ae.Message},
	}
}
