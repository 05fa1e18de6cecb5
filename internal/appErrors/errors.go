package appErrors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode - тип для кодов ошибок
type ErrorCode string

// AppError - основная структура ошибки приложения
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Err      error       `json:"-"`
	HTTPCode int         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Конструктор
func New(code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
	}
}

// С цепочкой ошибок
func Wrap(err error, code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Err:      err,
		HTTPCode: httpCode,
	}
}

// Вспомогательные методы
func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// Для маршалинга в JSON
func (e *AppError) MarshalJSON() ([]byte, error) {
	type alias struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}
	return json.Marshal(&alias{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// Is - обертка над стандартной функцией errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As - обертка над стандартной функцией errors.As
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Предопределенные ошибки.
// Политика распространения (см. таксономию подсистемы):
//   - ValidationError / PersistenceError прерывают операцию и видны вызывающему;
//   - DeliveryError ловится и только логируется - запись уже сохранена;
//   - ConnectionError питает машину переподключения, а не пользователя;
//   - SyncError ловится циклом фоновой синхронизации.
var (
	// Валидация
	ErrValidationFailed = New(CodeValidationFailed, "Validation failed", http.StatusBadRequest)
	ErrInvalidRecipient = New(CodeInvalidRecipient, "Exactly one of recipientId or role must be set", http.StatusBadRequest)
	ErrMessageRequired  = New(CodeValidationFailed, "Message is required", http.StatusBadRequest)
	ErrInvalidType      = New(CodeInvalidType, "Unknown notification type", http.StatusBadRequest)

	// Хранилище
	ErrPersistence          = New(CodePersistenceError, "Failed to persist notification", http.StatusInternalServerError)
	ErrNotificationNotFound = New(CodeNotificationNotFound, "Notification not found", http.StatusNotFound)
	ErrSubscriptionNotFound = New(CodeSubscriptionNotFound, "Push subscription not found", http.StatusNotFound)
	ErrKeyPairUnavailable   = New(CodeKeyPairUnavailable, "Push key pair unavailable", http.StatusInternalServerError)

	// Доставка
	ErrDelivery            = New(CodeDeliveryError, "Push delivery failed", http.StatusBadGateway)
	ErrSubscriptionExpired = New(CodeSubscriptionExpired, "Push subscription expired", http.StatusGone)

	// Соединение
	ErrConnection       = New(CodeConnectionError, "Connection failed", http.StatusServiceUnavailable)
	ErrHandshakeTimeout = New(CodeHandshakeTimeout, "Handshake timed out", http.StatusGatewayTimeout)
	ErrRetriesExhausted = New(CodeRetriesExhausted, "Reconnect attempts exhausted", http.StatusServiceUnavailable)

	// Фоновая синхронизация
	ErrSync = New(CodeSyncError, "Background sync failed", http.StatusInternalServerError)

	// Системные
	ErrInternal = New(CodeInternalError, "Internal server error", http.StatusInternalServerError)
	ErrDatabase = New(CodeDatabaseError, "Database error", http.StatusInternalServerError)
)
