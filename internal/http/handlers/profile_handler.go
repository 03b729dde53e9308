package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/devmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// ProfileHandler обслуживает профиль и платёжный аккаунт пользователя.
type ProfileHandler struct {
	accounts *service.AccountService
}

// NewProfileHandler создаёт хэндлер профиля.
func NewProfileHandler(accounts *service.AccountService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

// GetMe GET /profile
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	user, err := h.accounts.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetPayPalStatus GET /paypal/status
func (h *ProfileHandler) GetPayPalStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	status, err := h.accounts.GetPayPalStatus(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ConnectPayPal POST /paypal/connect
func (h *ProfileHandler) ConnectPayPal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Email      string  `json:"email" binding:"required,email"`
		MerchantID *string `json:"merchant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "email платёжного аккаунта обязателен")
		return
	}

	if err := h.accounts.ConnectPayPal(c.Request.Context(), userID, req.Email, req.MerchantID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "платёжный аккаунт подключён"})
}

// DisconnectPayPal POST /paypal/disconnect
func (h *ProfileHandler) DisconnectPayPal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	if err := h.accounts.DisconnectPayPal(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "платёжный аккаунт отключён"})
}
