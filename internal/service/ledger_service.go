package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
)

// LedgerRepository читает реестр эскроу-транзакций.
type LedgerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
	ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]models.Transaction, error)
}

// LedgerProposalRepository читает предложения для проверки доступа.
type LedgerProposalRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
}

// LedgerService предоставляет историю движения средств участникам
// сделок. Реестр только читается: записи создаёт MilestoneService.
type LedgerService struct {
	ledger    LedgerRepository
	proposals LedgerProposalRepository
}

// NewLedgerService создаёт сервис реестра.
func NewLedgerService(ledger LedgerRepository, proposals LedgerProposalRepository) *LedgerService {
	return &LedgerService{ledger: ledger, proposals: proposals}
}

// ListMyTransactions возвращает транзакции пользователя.
func (s *LedgerService) ListMyTransactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	return s.ledger.ListByUser(ctx, userID)
}

// ListProposalTransactions возвращает транзакции предложения его участнику.
func (s *LedgerService) ListProposalTransactions(ctx context.Context, userID, proposalID uuid.UUID) ([]models.Transaction, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, repository.ErrProposalNotFound) {
			return nil, apperror.ErrProposalNotFound
		}
		return nil, err
	}
	if !proposal.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return s.ledger.ListByProposal(ctx, proposalID)
}

// GetTransaction возвращает транзакцию её стороне.
func (s *LedgerService) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.ledger.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, err
	}
	if tx.BuyerID != userID && tx.SellerID != userID {
		return nil, apperror.ErrForbidden
	}
	return tx, nil
}
