package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/devmarket-backend/internal/logger"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("ошибка обработки запроса")
		}

		statusCode, message := classify(err)
		c.JSON(statusCode, gin.H{"error": message})
	}
}

// classify переводит ошибку в статус и сообщение для клиента.
// Внутренние подробности наружу не выходят.
func classify(err error) (int, string) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, appErr.Message
	}

	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "пользователь не найден"
	case errors.Is(err, repository.ErrServiceNotFound):
		return http.StatusNotFound, "услуга не найдена"
	case errors.Is(err, repository.ErrProposalNotFound):
		return http.StatusNotFound, "предложение не найдено"
	case errors.Is(err, repository.ErrChatNotFound):
		return http.StatusNotFound, "чат не найден"
	case errors.Is(err, repository.ErrMilestoneNotFound):
		return http.StatusNotFound, "этап не найден"
	case errors.Is(err, repository.ErrTransactionNotFound):
		return http.StatusNotFound, "транзакция не найдена"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "состояние изменилось, повторите запрос"
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "такая запись уже существует"
	}

	return http.StatusInternalServerError, "внутренняя ошибка сервера"
}
