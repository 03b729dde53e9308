package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/devmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// MilestoneHandler обслуживает жизненный цикл этапов: создание,
// согласование, оплату, завершение, выплату и возврат.
type MilestoneHandler struct {
	milestones *service.MilestoneService
}

// NewMilestoneHandler создаёт хэндлер этапов.
func NewMilestoneHandler(milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

// CreateMilestone POST /chats/:id/milestones
func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
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

	var req struct {
		Title       string     `json:"title" binding:"required"`
		Description string     `json:"description"`
		Price       float64    `json:"price" binding:"required,gt=0"`
		DueDate     *time.Time `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "название и положительная цена обязательны")
		return
	}

	milestone, err := h.milestones.CreateMilestone(c.Request.Context(), userID, chatID, service.CreateMilestoneInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		DueDate:     req.DueDate,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, milestone)
}

// GetMilestone GET /milestones/:id
func (h *MilestoneHandler) GetMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	milestone, err := h.milestones.GetMilestone(c.Request.Context(), userID, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// AgreeMilestone POST /milestones/:id/agree
func (h *MilestoneHandler) AgreeMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	milestone, err := h.milestones.AgreeMilestone(c.Request.Context(), userID, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// DisagreeMilestone POST /milestones/:id/disagree
func (h *MilestoneHandler) DisagreeMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.milestones.DisagreeMilestone(c.Request.Context(), userID, milestoneID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "этап отклонён"})
}

// StartPayment POST /milestones/:id/pay
func (h *MilestoneHandler) StartPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.milestones.StartPayment(c.Request.Context(), userID, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CapturePayment POST /milestones/:id/capture
func (h *MilestoneHandler) CapturePayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "order_id обязателен")
		return
	}

	tx, err := h.milestones.CapturePayment(c.Request.Context(), userID, milestoneID, req.OrderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// CompleteMilestone POST /milestones/:id/complete
func (h *MilestoneHandler) CompleteMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.milestones.CompleteMilestone(c.Request.Context(), userID, milestoneID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "этап завершён, ожидает подтверждения покупателя"})
}

// ConfirmPayout POST /milestones/:id/confirm
func (h *MilestoneHandler) ConfirmPayout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.milestones.ConfirmPayout(c.Request.Context(), userID, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// RefundMilestone POST /milestones/:id/refund
func (h *MilestoneHandler) RefundMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.milestones.RefundMilestone(c.Request.Context(), userID, milestoneID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "средства возвращены покупателю"})
}
