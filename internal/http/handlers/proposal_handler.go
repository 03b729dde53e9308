package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/devmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// ProposalHandler обслуживает предложения о работе.
type ProposalHandler struct {
	proposals *service.ProposalService
}

// NewProposalHandler создаёт хэндлер предложений.
func NewProposalHandler(proposals *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

// CreateProposal POST /proposals
func (h *ProposalHandler) CreateProposal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		ServiceID string  `json:"service_id" binding:"required"`
		Message   string  `json:"message"`
		Price     float64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "service_id обязателен")
		return
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		common.RespondBadRequest(c, "неверный service_id")
		return
	}

	proposal, err := h.proposals.CreateProposal(c.Request.Context(), userID, service.CreateProposalInput{
		ServiceID: serviceID,
		Message:   req.Message,
		Price:     req.Price,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, proposal)
}

// AcceptProposal POST /proposals/:id/accept
func (h *ProposalHandler) AcceptProposal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	proposalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	chat, err := h.proposals.AcceptProposal(c.Request.Context(), userID, proposalID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// RejectProposal POST /proposals/:id/reject
func (h *ProposalHandler) RejectProposal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	proposalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.proposals.RejectProposal(c.Request.Context(), userID, proposalID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "предложение отклонено"})
}

// GetProposal GET /proposals/:id
func (h *ProposalHandler) GetProposal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	proposalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	proposal, err := h.proposals.GetProposal(c.Request.Context(), userID, proposalID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// ListSent GET /proposals/sent
func (h *ProposalHandler) ListSent(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	proposals, err := h.proposals.ListSent(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"proposals": proposals})
}

// ListReceived GET /proposals/received
func (h *ProposalHandler) ListReceived(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	proposals, err := h.proposals.ListReceived(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"proposals": proposals})
}
