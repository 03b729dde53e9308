package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/paypal"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
)

type mockMilestoneRepo struct{ mock.Mock }

func (m *mockMilestoneRepo) Create(ctx context.Context, milestone *models.Milestone) error {
	args := m.Called(ctx, milestone)
	return args.Error(0)
}

func (m *mockMilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneRepo) MarkAgreed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMilestoneRepo) MarkDisagreed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMilestoneRepo) MarkFunded(ctx context.Context, id, transactionID uuid.UUID) error {
	return m.Called(ctx, id, transactionID).Error(0)
}

func (m *mockMilestoneRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMilestoneRepo) MarkPaid(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMilestoneRepo) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMilestoneRepo) ListOverdue(ctx context.Context, now time.Time) ([]models.Milestone, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Milestone), args.Error(1)
}

type mockChatRepo struct{ mock.Mock }

func (m *mockChatRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *mockChatRepo) SetActiveMilestone(ctx context.Context, chatID, milestoneID uuid.UUID) error {
	return m.Called(ctx, chatID, milestoneID).Error(0)
}

func (m *mockChatRepo) ClearActiveMilestone(ctx context.Context, chatID, milestoneID uuid.UUID) error {
	return m.Called(ctx, chatID, milestoneID).Error(0)
}

func (m *mockChatRepo) Touch(ctx context.Context, chatID uuid.UUID) error {
	return m.Called(ctx, chatID).Error(0)
}

type mockProposalCounters struct{ mock.Mock }

func (m *mockProposalCounters) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalCounters) AddCompletedMilestone(ctx context.Context, id uuid.UUID, amount float64) error {
	return m.Called(ctx, id, amount).Error(0)
}

type mockEscrowRepo struct{ mock.Mock }

func (m *mockEscrowRepo) Create(ctx context.Context, tx *models.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *mockEscrowRepo) GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockEscrowRepo) MarkPayoutSent(ctx context.Context, id uuid.UUID, payoutID string) error {
	return m.Called(ctx, id, payoutID).Error(0)
}

func (m *mockEscrowRepo) MarkPayoutFailed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockEscrowRepo) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockEscrowRepo) IncrementPayoutAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

type mockAccountsRepo struct{ mock.Mock }

func (m *mockAccountsRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateOrder(ctx context.Context, amount float64, currency, returnURL, cancelURL string) (*paypal.OrderResult, error) {
	args := m.Called(ctx, amount, currency, returnURL, cancelURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.OrderResult), args.Error(1)
}

func (m *mockGateway) CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.CaptureResult), args.Error(1)
}

func (m *mockGateway) Payout(ctx context.Context, receiverEmail string, amount float64, currency, note, idempotencyKey string) (*paypal.PayoutResult, error) {
	args := m.Called(ctx, receiverEmail, amount, currency, note, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.PayoutResult), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, captureID string, amount float64, currency, note string) (*paypal.RefundResult, error) {
	args := m.Called(ctx, captureID, amount, currency, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.RefundResult), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	return m.Called(userID, event, data).Error(0)
}

type milestoneMocks struct {
	milestones *mockMilestoneRepo
	chats      *mockChatRepo
	proposals  *mockProposalCounters
	escrow     *mockEscrowRepo
	accounts   *mockAccountsRepo
	gateway    *mockGateway
	notifier   *mockNotifier
}

func newMilestoneService(t *testing.T) (*MilestoneService, *milestoneMocks) {
	t.Helper()
	m := &milestoneMocks{
		milestones: new(mockMilestoneRepo),
		chats:      new(mockChatRepo),
		proposals:  new(mockProposalCounters),
		escrow:     new(mockEscrowRepo),
		accounts:   new(mockAccountsRepo),
		gateway:    new(mockGateway),
		notifier:   new(mockNotifier),
	}
	m.notifier.On("BroadcastToUser", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := NewMilestoneService(
		m.milestones, m.chats, m.proposals, m.escrow, m.accounts, m.gateway, m.notifier,
		MilestoneConfig{
			FeeRate:   0.10,
			Currency:  "USD",
			ReturnURL: "https://app.test/payment/success",
			CancelURL: "https://app.test/payment/cancel",
		},
	)
	return svc, m
}

func testChat(buyerID, sellerID uuid.UUID) *models.Chat {
	return &models.Chat{
		ID:         uuid.New(),
		ProposalID: uuid.New(),
		BuyerID:    buyerID,
		SellerID:   sellerID,
	}
}

func payableSeller(id uuid.UUID) *models.User {
	email := "dev@example.com"
	return &models.User{ID: id, PayPalConnected: true, PayPalEmail: &email}
}

func testMilestone(chat *models.Chat, status string) *models.Milestone {
	return &models.Milestone{
		ID:         uuid.New(),
		ChatID:     chat.ID,
		ProposalID: chat.ProposalID,
		Title:      "Реализация API",
		Price:      100,
		Status:     status,
	}
}

func TestMilestoneService_CreateMilestone_Success(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)

	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("Create", mock.Anything, mock.AnythingOfType("*models.Milestone")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Milestone).ID = uuid.New()
		}).Return(nil)
	m.chats.On("SetActiveMilestone", mock.Anything, chat.ID, mock.Anything).Return(nil)

	milestone, err := svc.CreateMilestone(context.Background(), buyerID, chat.ID, CreateMilestoneInput{
		Title: "  Реализация API  ",
		Price: 150.004,
	})

	require.NoError(t, err)
	assert.Equal(t, "Реализация API", milestone.Title)
	assert.Equal(t, 150.00, milestone.Price)
	assert.Equal(t, models.MilestoneStatusPending, milestone.Status)
	m.notifier.AssertCalled(t, "BroadcastToUser", sellerID, models.EventMilestoneCreated, mock.Anything)
}

func TestMilestoneService_CreateMilestone_BySeller(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)

	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("Create", mock.Anything, mock.AnythingOfType("*models.Milestone")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Milestone).ID = uuid.New()
		}).Return(nil)
	m.chats.On("SetActiveMilestone", mock.Anything, chat.ID, mock.Anything).Return(nil)

	milestone, err := svc.CreateMilestone(context.Background(), sellerID, chat.ID, CreateMilestoneInput{
		Title: "Доработка по итогам демо",
		Price: 80,
	})

	require.NoError(t, err)
	assert.Equal(t, models.MilestoneStatusPending, milestone.Status)
	m.notifier.AssertCalled(t, "BroadcastToUser", buyerID, models.EventMilestoneCreated, mock.Anything)
}

func TestMilestoneService_CreateMilestone_NotParticipant(t *testing.T) {
	svc, m := newMilestoneService(t)
	chat := testChat(uuid.New(), uuid.New())

	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.CreateMilestone(context.Background(), uuid.New(), chat.ID, CreateMilestoneInput{
		Title: "Этап",
		Price: 100,
	})

	assert.True(t, apperror.IsForbidden(err))
	m.milestones.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMilestoneService_CreateMilestone_ActiveSlotOccupied(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	activeID := uuid.New()
	chat.ActiveMilestoneID = &activeID

	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.CreateMilestone(context.Background(), buyerID, chat.ID, CreateMilestoneInput{
		Title: "Второй этап",
		Price: 100,
	})

	assert.True(t, apperror.IsConflict(err))
	m.milestones.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMilestoneService_CreateMilestone_LostSlotRace(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())

	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("Create", mock.Anything, mock.AnythingOfType("*models.Milestone")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Milestone).ID = uuid.New()
		}).Return(nil)
	m.chats.On("SetActiveMilestone", mock.Anything, chat.ID, mock.Anything).Return(repository.ErrConflict)
	m.milestones.On("MarkDisagreed", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.CreateMilestone(context.Background(), buyerID, chat.ID, CreateMilestoneInput{
		Title: "Этап",
		Price: 100,
	})

	assert.True(t, apperror.IsConflict(err))
	m.milestones.AssertCalled(t, "MarkDisagreed", mock.Anything, mock.Anything)
}

func TestMilestoneService_CreateMilestone_DueDateInPast(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	past := time.Now().Add(-24 * time.Hour)

	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.CreateMilestone(context.Background(), buyerID, chat.ID, CreateMilestoneInput{
		Title:   "Этап",
		Price:   100,
		DueDate: &past,
	})

	assert.True(t, apperror.IsValidation(err))
}

func TestMilestoneService_AgreeMilestone_NotSeller(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.AgreeMilestone(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsForbidden(err))
	m.milestones.AssertNotCalled(t, "MarkAgreed", mock.Anything, mock.Anything)
}

func TestMilestoneService_AgreeMilestone_WrongState(t *testing.T) {
	svc, m := newMilestoneService(t)
	sellerID := uuid.New()
	chat := testChat(uuid.New(), sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPaid)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("MarkAgreed", mock.Anything, milestone.ID).Return(repository.ErrConflict)

	_, err := svc.AgreeMilestone(context.Background(), sellerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
}

func TestMilestoneService_DisagreeMilestone_ClearsSlot(t *testing.T) {
	svc, m := newMilestoneService(t)
	sellerID := uuid.New()
	chat := testChat(uuid.New(), sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("MarkDisagreed", mock.Anything, milestone.ID).Return(nil)
	m.chats.On("ClearActiveMilestone", mock.Anything, chat.ID, milestone.ID).Return(nil)

	err := svc.DisagreeMilestone(context.Background(), sellerID, milestone.ID)

	require.NoError(t, err)
	m.chats.AssertCalled(t, "ClearActiveMilestone", mock.Anything, chat.ID, milestone.ID)
	m.notifier.AssertCalled(t, "BroadcastToUser", chat.BuyerID, models.EventMilestoneDisagreed, mock.Anything)
}

func TestMilestoneService_StartPayment_AlreadyFunded(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusInProgress)
	milestone.BuyerPaid = true

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.StartPayment(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_StartPayment_SellerWithoutPayoutAccount(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(&models.User{ID: sellerID}, nil)

	_, err := svc.StartPayment(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_StartPayment_ReturnsApprovalURL(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.gateway.On("CreateOrder", mock.Anything, milestone.Price, "USD",
		"https://app.test/payment/success", "https://app.test/payment/cancel").
		Return(&paypal.OrderResult{OrderID: "ORDER-1", ApprovalURL: "https://gateway.test/approve"}, nil)

	order, err := svc.StartPayment(context.Background(), buyerID, milestone.ID)

	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.OrderID)
	assert.Equal(t, "https://gateway.test/approve", order.ApprovalURL)
}

func TestMilestoneService_CapturePayment_SplitsFee(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.gateway.On("CaptureOrder", mock.Anything, "ORDER-1").
		Return(&paypal.CaptureResult{CaptureID: "CAP-1", Status: paypal.CaptureCompleted}, nil)
	m.escrow.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Transaction).ID = uuid.New()
		}).Return(nil)
	m.milestones.On("MarkFunded", mock.Anything, milestone.ID, mock.Anything).Return(nil)
	m.chats.On("Touch", mock.Anything, chat.ID).Return(nil)

	tx, err := svc.CapturePayment(context.Background(), buyerID, milestone.ID, "ORDER-1")

	require.NoError(t, err)
	assert.Equal(t, 100.00, tx.AmountPaid)
	assert.Equal(t, 10.00, tx.PlatformFee)
	assert.Equal(t, 90.00, tx.SellerEarnings)
	assert.Equal(t, "CAP-1", tx.CaptureID)
	assert.Equal(t, models.PayoutStatusPending, tx.PayoutStatus)
	m.notifier.AssertCalled(t, "BroadcastToUser", sellerID, models.EventMilestoneFunded, mock.Anything)
}

func TestMilestoneService_CapturePayment_AlreadyFunded(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusInProgress)
	milestone.BuyerPaid = true

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.CapturePayment(context.Background(), buyerID, milestone.ID, "ORDER-1")

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything)
}

func TestMilestoneService_CapturePayment_IncompleteCapture(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.gateway.On("CaptureOrder", mock.Anything, "ORDER-1").
		Return(&paypal.CaptureResult{CaptureID: "CAP-1", Status: "PENDING"}, nil)

	_, err := svc.CapturePayment(context.Background(), buyerID, milestone.ID, "ORDER-1")

	require.Error(t, err)
	m.escrow.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.milestones.AssertNotCalled(t, "MarkFunded", mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_Success(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)
	milestone.BuyerPaid = true
	milestone.SellerAgreed = true

	tx := &models.Transaction{
		ID:             uuid.New(),
		MilestoneID:    milestone.ID,
		ProposalID:     milestone.ProposalID,
		AmountPaid:     100,
		PlatformFee:    10,
		SellerEarnings: 90,
		Currency:       "USD",
		CaptureID:      "CAP-1",
		PayoutStatus:   models.PayoutStatusPending,
	}
	expectedKey := fmt.Sprintf("batch_%s_%d", milestone.ID, 1)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.gateway.On("Payout", mock.Anything, "dev@example.com", 90.0, "USD", mock.Anything, expectedKey).
		Return(&paypal.PayoutResult{PayoutID: "BATCH-1", Status: "PENDING"}, nil)
	m.escrow.On("MarkPayoutSent", mock.Anything, tx.ID, "BATCH-1").Return(nil)
	m.milestones.On("MarkPaid", mock.Anything, milestone.ID).Return(nil)
	m.chats.On("ClearActiveMilestone", mock.Anything, chat.ID, milestone.ID).Return(nil)
	m.proposals.On("AddCompletedMilestone", mock.Anything, milestone.ProposalID, 100.0).Return(nil)

	result, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)

	require.NoError(t, err)
	require.NotNil(t, result)
	m.escrow.AssertCalled(t, "MarkPayoutSent", mock.Anything, tx.ID, "BATCH-1")
	m.proposals.AssertCalled(t, "AddCompletedMilestone", mock.Anything, milestone.ProposalID, 100.0)
	m.notifier.AssertCalled(t, "BroadcastToUser", sellerID, models.EventPayoutSent, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_BeforeCompletion(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusInProgress)
	milestone.BuyerPaid = true

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "Payout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_AlreadySent(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)

	payoutID := "BATCH-1"
	tx := &models.Transaction{
		ID:           uuid.New(),
		MilestoneID:  milestone.ID,
		PayoutStatus: models.PayoutStatusSent,
		PayoutID:     &payoutID,
	}

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)

	result, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)

	require.NoError(t, err)
	assert.Equal(t, tx, result)
	m.gateway.AssertNotCalled(t, "Payout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.escrow.AssertNotCalled(t, "IncrementPayoutAttempts", mock.Anything, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_SellerWithoutPayoutAccount(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)

	tx := &models.Transaction{ID: uuid.New(), MilestoneID: milestone.ID, PayoutStatus: models.PayoutStatusPending}
	seller := &models.User{ID: sellerID, PayPalConnected: false}

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(seller, nil)

	_, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "Payout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_GatewayFailure(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)

	tx := &models.Transaction{
		ID:             uuid.New(),
		MilestoneID:    milestone.ID,
		SellerEarnings: 90,
		Currency:       "USD",
		PayoutStatus:   models.PayoutStatusPending,
	}

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.gateway.On("Payout", mock.Anything, "dev@example.com", 90.0, "USD", mock.Anything, mock.Anything).
		Return(nil, &paypal.RequestError{Op: "payout", Err: context.DeadlineExceeded})
	m.escrow.On("MarkPayoutFailed", mock.Anything, tx.ID).Return(nil)

	_, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)

	require.Error(t, err)
	m.escrow.AssertCalled(t, "MarkPayoutFailed", mock.Anything, tx.ID)
	m.milestones.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
	m.notifier.AssertCalled(t, "BroadcastToUser", sellerID, models.EventPayoutFailed, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_TimeoutRetryKeepsKey(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)

	tx := &models.Transaction{
		ID:             uuid.New(),
		MilestoneID:    milestone.ID,
		ProposalID:     milestone.ProposalID,
		AmountPaid:     100,
		SellerEarnings: 90,
		Currency:       "USD",
		PayoutStatus:   models.PayoutStatusPending,
	}
	key := fmt.Sprintf("batch_%s_%d", milestone.ID, 1)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.escrow.On("MarkPayoutFailed", mock.Anything, tx.ID).Return(nil)
	m.gateway.On("Payout", mock.Anything, "dev@example.com", 90.0, "USD", mock.Anything, key).
		Return(nil, &paypal.RequestError{Op: "payout", Err: context.DeadlineExceeded}).Once()
	m.gateway.On("Payout", mock.Anything, "dev@example.com", 90.0, "USD", mock.Anything, key).
		Return(&paypal.PayoutResult{PayoutID: "BATCH-1", Status: "PENDING"}, nil).Once()
	m.escrow.On("MarkPayoutSent", mock.Anything, tx.ID, "BATCH-1").Return(nil)
	m.milestones.On("MarkPaid", mock.Anything, milestone.ID).Return(nil)
	m.chats.On("ClearActiveMilestone", mock.Anything, chat.ID, milestone.ID).Return(nil)
	m.proposals.On("AddCompletedMilestone", mock.Anything, milestone.ProposalID, 100.0).Return(nil)

	_, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)
	require.Error(t, err)

	// Исход первой попытки неизвестен, повтор идёт с тем же ключом.
	_, err = svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)
	require.NoError(t, err)

	m.gateway.AssertNumberOfCalls(t, "Payout", 2)
	m.escrow.AssertNotCalled(t, "IncrementPayoutAttempts", mock.Anything, mock.Anything)
}

func TestMilestoneService_ConfirmPayout_RejectionBurnsKey(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)

	tx := &models.Transaction{
		ID:             uuid.New(),
		MilestoneID:    milestone.ID,
		SellerEarnings: 90,
		Currency:       "USD",
		PayoutStatus:   models.PayoutStatusPending,
	}

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)
	m.accounts.On("GetByID", mock.Anything, sellerID).Return(payableSeller(sellerID), nil)
	m.gateway.On("Payout", mock.Anything, "dev@example.com", 90.0, "USD", mock.Anything, mock.Anything).
		Return(nil, &paypal.RejectedError{Op: "payout", StatusCode: 422})
	m.escrow.On("IncrementPayoutAttempts", mock.Anything, tx.ID).Return(1, nil)
	m.escrow.On("MarkPayoutFailed", mock.Anything, tx.ID).Return(nil)

	_, err := svc.ConfirmPayout(context.Background(), buyerID, milestone.ID)

	require.Error(t, err)
	m.escrow.AssertCalled(t, "IncrementPayoutAttempts", mock.Anything, tx.ID)
}

func TestMilestoneService_RefundMilestone_Success(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	chat := testChat(buyerID, sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusInProgress)
	milestone.BuyerPaid = true

	tx := &models.Transaction{
		ID:          uuid.New(),
		MilestoneID: milestone.ID,
		AmountPaid:  100,
		Currency:    "USD",
		CaptureID:   "CAP-1",
	}

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, milestone.ID).Return(tx, nil)
	m.gateway.On("Refund", mock.Anything, "CAP-1", 100.0, "USD", mock.Anything).
		Return(&paypal.RefundResult{RefundID: "REF-1", Status: "COMPLETED"}, nil)
	m.escrow.On("MarkRefunded", mock.Anything, tx.ID).Return(nil)
	m.milestones.On("MarkRefunded", mock.Anything, milestone.ID).Return(nil)
	m.chats.On("ClearActiveMilestone", mock.Anything, chat.ID, milestone.ID).Return(nil)

	err := svc.RefundMilestone(context.Background(), buyerID, milestone.ID)

	require.NoError(t, err)
	m.escrow.AssertCalled(t, "MarkRefunded", mock.Anything, tx.ID)
	m.milestones.AssertCalled(t, "MarkRefunded", mock.Anything, milestone.ID)
	m.notifier.AssertCalled(t, "BroadcastToUser", buyerID, models.EventMilestoneRefunded, mock.Anything)
	m.notifier.AssertCalled(t, "BroadcastToUser", sellerID, models.EventMilestoneRefunded, mock.Anything)
}

func TestMilestoneService_RefundMilestone_AfterPayout(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusPaid)
	milestone.BuyerPaid = true
	milestone.PaidToSeller = true

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	err := svc.RefundMilestone(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_RefundMilestone_CompletedRejected(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusCompleted)
	milestone.BuyerPaid = true
	milestone.SellerAgreed = true

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	err := svc.RefundMilestone(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.milestones.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything)
}

func TestMilestoneService_RefundMilestone_NotFunded(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	err := svc.RefundMilestone(context.Background(), buyerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
	m.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_RefundMilestone_Idempotent(t *testing.T) {
	svc, m := newMilestoneService(t)
	buyerID := uuid.New()
	chat := testChat(buyerID, uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusRefunded)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	err := svc.RefundMilestone(context.Background(), buyerID, milestone.ID)

	require.NoError(t, err)
	m.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_RefundOverdueMilestones_SkipsChanged(t *testing.T) {
	svc, m := newMilestoneService(t)
	chat := testChat(uuid.New(), uuid.New())

	stale := testMilestone(chat, models.MilestoneStatusInProgress)
	stale.BuyerPaid = true
	eligible := testMilestone(chat, models.MilestoneStatusInProgress)
	eligible.BuyerPaid = true

	// Первый этап успели завершить между выборкой и возвратом.
	completed := *stale
	completed.Status = models.MilestoneStatusCompleted

	tx := &models.Transaction{
		ID:          uuid.New(),
		MilestoneID: eligible.ID,
		AmountPaid:  100,
		Currency:    "USD",
		CaptureID:   "CAP-2",
	}

	m.milestones.On("ListOverdue", mock.Anything, mock.Anything).
		Return([]models.Milestone{*stale, *eligible}, nil)
	m.milestones.On("GetByID", mock.Anything, stale.ID).Return(&completed, nil)
	m.milestones.On("GetByID", mock.Anything, eligible.ID).Return(eligible, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.escrow.On("GetActiveByMilestone", mock.Anything, eligible.ID).Return(tx, nil)
	m.gateway.On("Refund", mock.Anything, "CAP-2", 100.0, "USD", mock.Anything).
		Return(&paypal.RefundResult{RefundID: "REF-2"}, nil)
	m.escrow.On("MarkRefunded", mock.Anything, tx.ID).Return(nil)
	m.milestones.On("MarkRefunded", mock.Anything, eligible.ID).Return(nil)
	m.chats.On("ClearActiveMilestone", mock.Anything, chat.ID, eligible.ID).Return(nil)

	refunded, err := svc.RefundOverdueMilestones(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, refunded)
	m.gateway.AssertNumberOfCalls(t, "Refund", 1)
}

func TestMilestoneService_RefundOverdueMilestones_ClosesUnfunded(t *testing.T) {
	svc, m := newMilestoneService(t)
	chat := testChat(uuid.New(), uuid.New())

	// Продавец согласился, покупатель так и не оплатил: этап держит слот
	// чата и должен закрыться без обращения к шлюзу.
	unfunded := testMilestone(chat, models.MilestoneStatusInProgress)
	unfunded.SellerAgreed = true

	m.milestones.On("ListOverdue", mock.Anything, mock.Anything).
		Return([]models.Milestone{*unfunded}, nil)
	m.milestones.On("GetByID", mock.Anything, unfunded.ID).Return(unfunded, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("MarkRefunded", mock.Anything, unfunded.ID).Return(nil)
	m.chats.On("ClearActiveMilestone", mock.Anything, chat.ID, unfunded.ID).Return(nil)

	refunded, err := svc.RefundOverdueMilestones(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, refunded)
	m.milestones.AssertCalled(t, "MarkRefunded", mock.Anything, unfunded.ID)
	m.chats.AssertCalled(t, "ClearActiveMilestone", mock.Anything, chat.ID, unfunded.ID)
	m.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_CompleteMilestone_WrongState(t *testing.T) {
	svc, m := newMilestoneService(t)
	sellerID := uuid.New()
	chat := testChat(uuid.New(), sellerID)
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)
	m.milestones.On("MarkCompleted", mock.Anything, milestone.ID).Return(repository.ErrConflict)

	err := svc.CompleteMilestone(context.Background(), sellerID, milestone.ID)

	assert.True(t, apperror.IsInvalidState(err))
}

func TestMilestoneService_GetMilestone_NotParticipant(t *testing.T) {
	svc, m := newMilestoneService(t)
	chat := testChat(uuid.New(), uuid.New())
	milestone := testMilestone(chat, models.MilestoneStatusPending)

	m.milestones.On("GetByID", mock.Anything, milestone.ID).Return(milestone, nil)
	m.chats.On("GetByID", mock.Anything, chat.ID).Return(chat, nil)

	_, err := svc.GetMilestone(context.Background(), uuid.New(), milestone.ID)

	assert.True(t, apperror.IsForbidden(err))
}
