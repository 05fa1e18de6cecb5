package validator

import (
	"log"

	"github.com/go-playground/validator/v10"

	"mektep_backend/internal/models"
)

// registerCustomRules регистрирует кастомные функции валидации.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// Ошибка регистрации правила - ошибка конфигурации приложения
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// 'notification-type': тип уведомления из известного списка.
	// Пустое значение пропускаем - сервис подставит "general".
	mustRegister("notification-type", validateNotificationType)
}

func validateNotificationType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return models.IsValidNotificationType(value)
}
