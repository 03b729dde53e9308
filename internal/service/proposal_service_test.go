package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
)

type mockProposalRepo struct{ mock.Mock }

func (m *mockProposalRepo) Create(ctx context.Context, proposal *models.Proposal) error {
	return m.Called(ctx, proposal).Error(0)
}

func (m *mockProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Proposal, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Proposal, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string) error {
	return m.Called(ctx, id, expected, next).Error(0)
}

type mockProposalChats struct{ mock.Mock }

func (m *mockProposalChats) CreateForProposal(ctx context.Context, proposalID, buyerID, sellerID uuid.UUID) (*models.Chat, error) {
	args := m.Called(ctx, proposalID, buyerID, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

type mockProposalCatalog struct{ mock.Mock }

func (m *mockProposalCatalog) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func newProposalService() (*ProposalService, *mockProposalRepo, *mockProposalChats, *mockProposalCatalog) {
	proposals := new(mockProposalRepo)
	chats := new(mockProposalChats)
	catalog := new(mockProposalCatalog)
	return NewProposalService(proposals, chats, catalog), proposals, chats, catalog
}

func TestProposalService_CreateProposal_DefaultsToServicePrice(t *testing.T) {
	svc, proposals, _, catalog := newProposalService()
	buyerID := uuid.New()
	service := &models.Service{ID: uuid.New(), OwnerID: uuid.New(), Price: 250}

	catalog.On("GetByID", mock.Anything, service.ID).Return(service, nil)
	proposals.On("Create", mock.Anything, mock.AnythingOfType("*models.Proposal")).Return(nil)

	proposal, err := svc.CreateProposal(context.Background(), buyerID, CreateProposalInput{
		ServiceID: service.ID,
		Message:   "Здравствуйте, хочу заказать",
	})

	require.NoError(t, err)
	assert.Equal(t, 250.0, proposal.Price)
	assert.Equal(t, service.OwnerID, proposal.SellerID)
	assert.Equal(t, models.ProposalStatusPending, proposal.Status)
}

func TestProposalService_CreateProposal_OwnService(t *testing.T) {
	svc, proposals, _, catalog := newProposalService()
	ownerID := uuid.New()
	service := &models.Service{ID: uuid.New(), OwnerID: ownerID, Price: 250}

	catalog.On("GetByID", mock.Anything, service.ID).Return(service, nil)

	_, err := svc.CreateProposal(context.Background(), ownerID, CreateProposalInput{ServiceID: service.ID})

	assert.True(t, apperror.IsValidation(err))
	proposals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProposalService_CreateProposal_Duplicate(t *testing.T) {
	svc, proposals, _, catalog := newProposalService()
	service := &models.Service{ID: uuid.New(), OwnerID: uuid.New(), Price: 250}

	catalog.On("GetByID", mock.Anything, service.ID).Return(service, nil)
	proposals.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)

	_, err := svc.CreateProposal(context.Background(), uuid.New(), CreateProposalInput{ServiceID: service.ID})

	assert.True(t, apperror.IsConflict(err))
}

func TestProposalService_AcceptProposal_OpensChat(t *testing.T) {
	svc, proposals, chats, _ := newProposalService()
	sellerID := uuid.New()
	proposal := &models.Proposal{
		ID:       uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: sellerID,
		Status:   models.ProposalStatusPending,
	}
	chat := &models.Chat{ID: uuid.New(), ProposalID: proposal.ID}

	proposals.On("GetByID", mock.Anything, proposal.ID).Return(proposal, nil)
	proposals.On("UpdateStatus", mock.Anything, proposal.ID,
		models.ProposalStatusPending, models.ProposalStatusAccepted).Return(nil)
	chats.On("CreateForProposal", mock.Anything, proposal.ID, proposal.BuyerID, sellerID).Return(chat, nil)

	result, err := svc.AcceptProposal(context.Background(), sellerID, proposal.ID)

	require.NoError(t, err)
	assert.Equal(t, chat, result)
}

func TestProposalService_AcceptProposal_RepeatedAccept(t *testing.T) {
	svc, proposals, chats, _ := newProposalService()
	sellerID := uuid.New()
	proposal := &models.Proposal{
		ID:       uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: sellerID,
		Status:   models.ProposalStatusAccepted,
	}
	chat := &models.Chat{ID: uuid.New(), ProposalID: proposal.ID}

	proposals.On("GetByID", mock.Anything, proposal.ID).Return(proposal, nil)
	proposals.On("UpdateStatus", mock.Anything, proposal.ID,
		models.ProposalStatusPending, models.ProposalStatusAccepted).Return(repository.ErrConflict)
	chats.On("CreateForProposal", mock.Anything, proposal.ID, proposal.BuyerID, sellerID).Return(chat, nil)

	result, err := svc.AcceptProposal(context.Background(), sellerID, proposal.ID)

	require.NoError(t, err)
	assert.Equal(t, chat, result)
}

func TestProposalService_AcceptProposal_Rejected(t *testing.T) {
	svc, proposals, chats, _ := newProposalService()
	sellerID := uuid.New()
	proposal := &models.Proposal{
		ID:       uuid.New(),
		SellerID: sellerID,
		Status:   models.ProposalStatusRejected,
	}

	proposals.On("GetByID", mock.Anything, proposal.ID).Return(proposal, nil)
	proposals.On("UpdateStatus", mock.Anything, proposal.ID,
		models.ProposalStatusPending, models.ProposalStatusAccepted).Return(repository.ErrConflict)

	_, err := svc.AcceptProposal(context.Background(), sellerID, proposal.ID)

	assert.True(t, apperror.IsInvalidState(err))
	chats.AssertNotCalled(t, "CreateForProposal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProposalService_AcceptProposal_NotSeller(t *testing.T) {
	svc, proposals, _, _ := newProposalService()
	proposal := &models.Proposal{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Status:   models.ProposalStatusPending,
	}

	proposals.On("GetByID", mock.Anything, proposal.ID).Return(proposal, nil)

	_, err := svc.AcceptProposal(context.Background(), uuid.New(), proposal.ID)

	assert.True(t, apperror.IsForbidden(err))
	proposals.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProposalService_RejectProposal_WrongState(t *testing.T) {
	svc, proposals, _, _ := newProposalService()
	sellerID := uuid.New()
	proposal := &models.Proposal{
		ID:       uuid.New(),
		SellerID: sellerID,
		Status:   models.ProposalStatusAccepted,
	}

	proposals.On("GetByID", mock.Anything, proposal.ID).Return(proposal, nil)
	proposals.On("UpdateStatus", mock.Anything, proposal.ID,
		models.ProposalStatusPending, models.ProposalStatusRejected).Return(repository.ErrConflict)

	err := svc.RejectProposal(context.Background(), sellerID, proposal.ID)

	assert.True(t, apperror.IsInvalidState(err))
}

func TestProposalService_GetProposal_NotParticipant(t *testing.T) {
	svc, proposals, _, _ := newProposalService()
	proposal := &models.Proposal{
		ID:       uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
	}

	proposals.On("GetByID", mock.Anything, proposal.ID).Return(proposal, nil)

	_, err := svc.GetProposal(context.Background(), uuid.New(), proposal.ID)

	assert.True(t, apperror.IsForbidden(err))
}
