package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/devmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// PaymentHandler обслуживает реестр эскроу-транзакций.
type PaymentHandler struct {
	ledger *service.LedgerService
}

// NewPaymentHandler создаёт хэндлер платежей.
func NewPaymentHandler(ledger *service.LedgerService) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

// ListMyTransactions GET /payments/transactions
func (h *PaymentHandler) ListMyTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	transactions, err := h.ledger.ListMyTransactions(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// ListProposalTransactions GET /proposals/:id/transactions
func (h *PaymentHandler) ListProposalTransactions(c *gin.Context) {
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

	transactions, err := h.ledger.ListProposalTransactions(c.Request.Context(), userID, proposalID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// GetTransaction GET /payments/transactions/:id
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.ledger.GetTransaction(c.Request.Context(), userID, txID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tx)
}
