package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
)

// ProposalRepository описывает зависимости ProposalService от слоя хранилища.
type ProposalRepository interface {
	Create(ctx context.Context, proposal *models.Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Proposal, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Proposal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string) error
}

// ProposalChatRepository описывает операции с чатами, нужные при принятии
// предложения.
type ProposalChatRepository interface {
	CreateForProposal(ctx context.Context, proposalID, buyerID, sellerID uuid.UUID) (*models.Chat, error)
}

// ProposalCatalogRepository читает услуги каталога.
type ProposalCatalogRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// ProposalService управляет жизненным циклом предложений о работе.
type ProposalService struct {
	proposals ProposalRepository
	chats     ProposalChatRepository
	catalog   ProposalCatalogRepository
}

// NewProposalService создаёт сервис предложений.
func NewProposalService(proposals ProposalRepository, chats ProposalChatRepository, catalog ProposalCatalogRepository) *ProposalService {
	return &ProposalService{proposals: proposals, chats: chats, catalog: catalog}
}

// CreateProposalInput содержит данные нового предложения.
type CreateProposalInput struct {
	ServiceID uuid.UUID
	Message   string
	Price     float64
}

// CreateProposal отправляет предложение продавцу услуги. Цена по
// умолчанию берётся из каталога.
func (s *ProposalService) CreateProposal(ctx context.Context, buyerID uuid.UUID, in CreateProposalInput) (*models.Proposal, error) {
	service, err := s.catalog.GetByID(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, apperror.ErrServiceNotFound
		}
		return nil, err
	}

	if service.OwnerID == buyerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя отправить предложение на собственную услугу")
	}

	price := in.Price
	if price == 0 {
		price = service.Price
	}
	if price <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена должна быть положительной")
	}

	proposal := &models.Proposal{
		ServiceID: service.ID,
		BuyerID:   buyerID,
		SellerID:  service.OwnerID,
		Message:   strings.TrimSpace(in.Message),
		Price:     price,
		Status:    models.ProposalStatusPending,
	}
	if err := s.proposals.Create(ctx, proposal); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.New(apperror.ErrCodeConflict, "предложение по этой услуге уже отправлено")
		}
		return nil, err
	}
	return proposal, nil
}

// AcceptProposal принимает предложение продавцом и открывает чат.
// Создание чата идемпотентно: повтор после сбоя возвращает тот же чат.
func (s *ProposalService) AcceptProposal(ctx context.Context, sellerID, proposalID uuid.UUID) (*models.Chat, error) {
	proposal, err := s.getOwned(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.SellerID != sellerID {
		return nil, apperror.ErrForbidden
	}

	err = s.proposals.UpdateStatus(ctx, proposalID, models.ProposalStatusPending, models.ProposalStatusAccepted)
	if err != nil {
		// Уже принятое предложение допустимо: клиент мог повторить
		// запрос, не дождавшись ответа. Чат при этом уже существует.
		if !errors.Is(err, repository.ErrConflict) || proposal.Status != models.ProposalStatusAccepted {
			if errors.Is(err, repository.ErrConflict) {
				return nil, apperror.New(apperror.ErrCodeInvalidState, "предложение нельзя принять в текущем статусе")
			}
			return nil, err
		}
	}

	return s.chats.CreateForProposal(ctx, proposal.ID, proposal.BuyerID, proposal.SellerID)
}

// RejectProposal отклоняет предложение продавцом.
func (s *ProposalService) RejectProposal(ctx context.Context, sellerID, proposalID uuid.UUID) error {
	proposal, err := s.getOwned(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.SellerID != sellerID {
		return apperror.ErrForbidden
	}

	if err := s.proposals.UpdateStatus(ctx, proposalID, models.ProposalStatusPending, models.ProposalStatusRejected); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "предложение нельзя отклонить в текущем статусе")
		}
		return err
	}
	return nil
}

// GetProposal возвращает предложение его участнику.
func (s *ProposalService) GetProposal(ctx context.Context, userID, proposalID uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.getOwned(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return proposal, nil
}

// ListSent возвращает предложения, отправленные пользователем.
func (s *ProposalService) ListSent(ctx context.Context, buyerID uuid.UUID) ([]models.Proposal, error) {
	return s.proposals.ListByBuyer(ctx, buyerID)
}

// ListReceived возвращает предложения, полученные продавцом.
func (s *ProposalService) ListReceived(ctx context.Context, sellerID uuid.UUID) ([]models.Proposal, error) {
	return s.proposals.ListBySeller(ctx, sellerID)
}

func (s *ProposalService) getOwned(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, repository.ErrProposalNotFound) {
			return nil, apperror.ErrProposalNotFound
		}
		return nil, err
	}
	return proposal, nil
}
