package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/devmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// ChatHandler обслуживает чаты по принятым предложениям.
type ChatHandler struct {
	chats *service.ChatService
}

// NewChatHandler создаёт хэндлер чатов.
func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// GetChat GET /chats/:id
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	chatID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), userID, chatID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

// ListMyChats GET /chats/my
func (h *ChatHandler) ListMyChats(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	chats, err := h.chats.ListMyChats(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}
