package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/logger"
	"mektep_backend/internal/validator"
)

type BaseHandler struct {
	validator *validator.Validator
}

func NewBaseHandler(v *validator.Validator) *BaseHandler {
	return &BaseHandler{
		validator: v,
	}
}

// BindAndValidateJSON привязывает JSON-тело и гоняет его через валидатор.
// При ошибке сам пишет 400 и возвращает false.
func (h *BaseHandler) BindAndValidateJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWarn(c.Request.Context(), "failed to bind request body", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": appErrors.ErrValidationFailed.WithDetails(err.Error())})
		return false
	}

	if err := h.validator.Validate(obj); err != nil {
		if vErr, ok := err.(*validator.ValidationError); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": appErrors.ErrValidationFailed.WithDetails(vErr.Errors)})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": appErrors.ErrValidationFailed})
		return false
	}

	return true
}

// HandleServiceError маппит ошибку сервиса в HTTP-ответ.
func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	var appErr *appErrors.AppError
	if appErrors.As(err, &appErr) {
		logger.CtxWarn(c.Request.Context(), "service error", "code", string(appErr.Code), "error", appErr.Error())
		c.JSON(appErr.HTTPCode, gin.H{"error": appErr})
		return
	}

	logger.CtxError(c.Request.Context(), "unexpected service error", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": appErrors.ErrInternal})
}
