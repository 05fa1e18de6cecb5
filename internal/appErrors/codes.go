package appErrors

// Коды ошибок сгруппированные по доменам
const (
	// Валидация
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeInvalidRecipient ErrorCode = "INVALID_RECIPIENT"
	CodeInvalidType      ErrorCode = "INVALID_NOTIFICATION_TYPE"

	// Хранилище
	CodePersistenceError     ErrorCode = "PERSISTENCE_ERROR"
	CodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"
	CodeSubscriptionNotFound ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	CodeKeyPairUnavailable   ErrorCode = "KEY_PAIR_UNAVAILABLE"

	// Доставка
	CodeDeliveryError       ErrorCode = "DELIVERY_ERROR"
	CodeSubscriptionExpired ErrorCode = "SUBSCRIPTION_EXPIRED"

	// Соединение
	CodeConnectionError  ErrorCode = "CONNECTION_ERROR"
	CodeHandshakeTimeout ErrorCode = "HANDSHAKE_TIMEOUT"
	CodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"

	// Фоновая синхронизация
	CodeSyncError ErrorCode = "SYNC_ERROR"

	// Системные ошибки
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError ErrorCode = "DATABASE_ERROR"
)
