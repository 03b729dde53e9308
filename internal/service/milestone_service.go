package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/devmarket-backend/internal/logger"
	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/money"
	"github.com/ignatzorin/devmarket-backend/internal/paypal"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
	"github.com/ignatzorin/devmarket-backend/internal/validation"
)

// MilestoneRepository описывает переходы состояний этапа в хранилище.
type MilestoneRepository interface {
	Create(ctx context.Context, milestone *models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	MarkAgreed(ctx context.Context, id uuid.UUID) error
	MarkDisagreed(ctx context.Context, id uuid.UUID) error
	MarkFunded(ctx context.Context, id, transactionID uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkPaid(ctx context.Context, id uuid.UUID) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
	ListOverdue(ctx context.Context, now time.Time) ([]models.Milestone, error)
}

// MilestoneChatRepository управляет слотом активного этапа чата.
type MilestoneChatRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	SetActiveMilestone(ctx context.Context, chatID, milestoneID uuid.UUID) error
	ClearActiveMilestone(ctx context.Context, chatID, milestoneID uuid.UUID) error
	Touch(ctx context.Context, chatID uuid.UUID) error
}

// MilestoneProposalRepository обновляет счётчики предложения.
type MilestoneProposalRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	AddCompletedMilestone(ctx context.Context, id uuid.UUID, amount float64) error
}

// EscrowRepository ведёт реестр эскроу-транзакций.
type EscrowRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error)
	MarkPayoutSent(ctx context.Context, id uuid.UUID, payoutID string) error
	MarkPayoutFailed(ctx context.Context, id uuid.UUID) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
	IncrementPayoutAttempts(ctx context.Context, id uuid.UUID) (int, error)
}

// PayoutAccountRepository читает платёжные реквизиты пользователей.
type PayoutAccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PaymentGateway описывает операции платёжного шлюза, нужные сервису.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount float64, currency, returnURL, cancelURL string) (*paypal.OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	Payout(ctx context.Context, receiverEmail string, amount float64, currency, note, idempotencyKey string) (*paypal.PayoutResult, error)
	Refund(ctx context.Context, captureID string, amount float64, currency, note string) (*paypal.RefundResult, error)
}

// Notifier доставляет события участникам сделки.
type Notifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// MilestoneConfig задаёт платёжные параметры сервиса этапов.
type MilestoneConfig struct {
	FeeRate   float64
	Currency  string
	ReturnURL string
	CancelURL string
}

// MilestoneService реализует жизненный цикл оплачиваемых этапов: от
// создания до выплаты продавцу или возврата покупателю. Средства этапа
// удерживаются в эскроу между capture и payout.
type MilestoneService struct {
	milestones MilestoneRepository
	chats      MilestoneChatRepository
	proposals  MilestoneProposalRepository
	escrow     EscrowRepository
	accounts   PayoutAccountRepository
	gateway    PaymentGateway
	notifier   Notifier
	cfg        MilestoneConfig
	log        *logrus.Entry
}

// NewMilestoneService создаёт сервис этапов.
func NewMilestoneService(
	milestones MilestoneRepository,
	chats MilestoneChatRepository,
	proposals MilestoneProposalRepository,
	escrow EscrowRepository,
	accounts PayoutAccountRepository,
	gateway PaymentGateway,
	notifier Notifier,
	cfg MilestoneConfig,
) *MilestoneService {
	return &MilestoneService{
		milestones: milestones,
		chats:      chats,
		proposals:  proposals,
		escrow:     escrow,
		accounts:   accounts,
		gateway:    gateway,
		notifier:   notifier,
		cfg:        cfg,
		log:        logger.WithComponent("milestone_service"),
	}
}

// CreateMilestoneInput содержит данные нового этапа.
type CreateMilestoneInput struct {
	Title       string
	Description string
	Price       float64
	DueDate     *time.Time
}

// CreateMilestone создаёт этап в чате. Предложить этап может любой
// участник сделки; в чате одновременно допустим только один
// незавершённый этап.
func (s *MilestoneService) CreateMilestone(ctx context.Context, userID, chatID uuid.UUID, in CreateMilestoneInput) (*models.Milestone, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	if err := validation.ValidateTitle("название этапа", in.Title); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateAmount("цена этапа", in.Price); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if in.DueDate != nil && in.DueDate.Before(time.Now()) {
		return nil, apperror.New(apperror.ErrCodeValidation, "срок этапа не может быть в прошлом")
	}
	if chat.ActiveMilestoneID != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "в чате уже есть незавершённый этап")
	}

	milestone := &models.Milestone{
		ChatID:      chat.ID,
		ProposalID:  chat.ProposalID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Price:       money.Round(in.Price),
		Status:      models.MilestoneStatusPending,
		DueDate:     in.DueDate,
	}
	if err := s.milestones.Create(ctx, milestone); err != nil {
		return nil, err
	}

	if err := s.chats.SetActiveMilestone(ctx, chat.ID, milestone.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Слот заняли параллельно. Свежесозданный этап закрываем,
			// чтобы он не повис навсегда в pending.
			if markErr := s.milestones.MarkDisagreed(ctx, milestone.ID); markErr != nil {
				s.log.WithError(markErr).WithField("milestone_id", milestone.ID).
					Error("не удалось закрыть этап после проигранной гонки за слот")
			}
			return nil, apperror.New(apperror.ErrCodeConflict, "в чате уже есть незавершённый этап")
		}
		return nil, err
	}

	s.notify(chat.OtherParticipant(userID), models.EventMilestoneCreated, milestone)
	return milestone, nil
}

// AgreeMilestone фиксирует согласие продавца с условиями этапа.
func (s *MilestoneService) AgreeMilestone(ctx context.Context, userID, milestoneID uuid.UUID) (*models.Milestone, error) {
	_, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if chat.SellerID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "подтверждать этап может только продавец")
	}

	if err := s.milestones.MarkAgreed(ctx, milestoneID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "этап нельзя подтвердить в текущем статусе")
		}
		return nil, err
	}

	s.notify(chat.BuyerID, models.EventMilestoneAgreed, map[string]any{
		"milestone_id": milestoneID,
		"chat_id":      chat.ID,
	})
	return s.milestones.GetByID(ctx, milestoneID)
}

// DisagreeMilestone отклоняет этап продавцом. Оплаченный этап отклонить
// нельзя: средства уже в эскроу, выход из него только через возврат.
func (s *MilestoneService) DisagreeMilestone(ctx context.Context, userID, milestoneID uuid.UUID) error {
	milestone, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return err
	}
	if chat.SellerID != userID {
		return apperror.New(apperror.ErrCodeForbidden, "отклонить этап может только продавец")
	}

	if err := s.milestones.MarkDisagreed(ctx, milestoneID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "этап нельзя отклонить в текущем статусе")
		}
		return err
	}

	if err := s.chats.ClearActiveMilestone(ctx, chat.ID, milestoneID); err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Error("не удалось освободить слот активного этапа")
	}

	s.notify(chat.BuyerID, models.EventMilestoneDisagreed, map[string]any{
		"milestone_id": milestoneID,
		"chat_id":      chat.ID,
		"title":        milestone.Title,
	})
	return nil
}

// PaymentOrder возвращается при инициации оплаты этапа.
type PaymentOrder struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

// StartPayment создаёт заказ в платёжном шлюзе для оплаты этапа.
// Состояние этапа не меняется до подтверждения платежа.
func (s *MilestoneService) StartPayment(ctx context.Context, userID, milestoneID uuid.UUID) (*PaymentOrder, error) {
	milestone, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if chat.BuyerID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "оплачивать этап может только покупатель")
	}
	if milestone.BuyerPaid {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап уже оплачен")
	}
	if milestone.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап уже завершён")
	}
	if _, err := s.requirePayableSeller(ctx, chat.SellerID); err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, milestone.Price, s.cfg.Currency, s.cfg.ReturnURL, s.cfg.CancelURL)
	if err != nil {
		return nil, s.gatewayError("не удалось создать платёж", err)
	}

	return &PaymentOrder{OrderID: order.OrderID, ApprovalURL: order.ApprovalURL}, nil
}

// CapturePayment финализирует платёж покупателя и зачисляет средства
// в эскроу. Комиссия платформы удерживается из суммы этапа.
func (s *MilestoneService) CapturePayment(ctx context.Context, userID, milestoneID uuid.UUID, orderID string) (*models.Transaction, error) {
	milestone, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if chat.BuyerID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "подтверждать оплату может только покупатель")
	}
	if milestone.BuyerPaid {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап уже оплачен")
	}
	if milestone.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап уже завершён")
	}
	if _, err := s.requirePayableSeller(ctx, chat.SellerID); err != nil {
		return nil, err
	}

	capture, err := s.gateway.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, s.gatewayError("не удалось подтвердить платёж", err)
	}
	if capture.Status != paypal.CaptureCompleted {
		return nil, apperror.New(apperror.ErrCodeGateway,
			fmt.Sprintf("платёж не завершён, статус %s", capture.Status))
	}

	fee, earnings := money.Split(milestone.Price, s.cfg.FeeRate)
	tx := &models.Transaction{
		ProposalID:     milestone.ProposalID,
		MilestoneID:    milestone.ID,
		BuyerID:        chat.BuyerID,
		SellerID:       chat.SellerID,
		AmountPaid:     money.Round(milestone.Price),
		PlatformFee:    fee,
		SellerEarnings: earnings,
		Currency:       s.cfg.Currency,
		CaptureID:      capture.CaptureID,
		PayoutStatus:   models.PayoutStatusPending,
	}
	if err := s.escrow.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по этапу уже есть зачисление")
		}
		return nil, err
	}

	if err := s.milestones.MarkFunded(ctx, milestone.ID, tx.ID); err != nil {
		// Деньги уже на эскроу, а этап ушёл из-под ног. Запись в реестре
		// остаётся, расхождение разбирается по логу.
		s.log.WithError(err).WithFields(logrus.Fields{
			"milestone_id":   milestone.ID,
			"transaction_id": tx.ID,
			"capture_id":     capture.CaptureID,
		}).Error("зачисление выполнено, но этап не удалось отметить оплаченным")
		return nil, err
	}

	if err := s.chats.Touch(ctx, chat.ID); err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Warn("не удалось обновить метку чата")
	}

	s.notify(chat.SellerID, models.EventMilestoneFunded, map[string]any{
		"milestone_id": milestone.ID,
		"chat_id":      chat.ID,
		"amount":       tx.AmountPaid,
		"earnings":     tx.SellerEarnings,
	})
	return tx, nil
}

// CompleteMilestone отмечает сдачу работы продавцом. Требует согласия
// обеих сторон и зачисленных средств.
func (s *MilestoneService) CompleteMilestone(ctx context.Context, userID, milestoneID uuid.UUID) error {
	_, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return err
	}
	if chat.SellerID != userID {
		return apperror.New(apperror.ErrCodeForbidden, "завершать этап может только продавец")
	}

	if err := s.milestones.MarkCompleted(ctx, milestoneID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "этап нельзя завершить в текущем статусе")
		}
		return err
	}

	s.notify(chat.BuyerID, models.EventMilestoneCompleted, map[string]any{
		"milestone_id": milestoneID,
		"chat_id":      chat.ID,
	})
	return nil
}

// ConfirmPayout подтверждает приёмку работы покупателем и отправляет
// выплату продавцу. Ключ идемпотентности привязан к этапу и номеру
// попытки; пока исход попытки неизвестен, повтор идёт с тем же ключом,
// и дедупликация шлюза не даёт удвоить выплату.
func (s *MilestoneService) ConfirmPayout(ctx context.Context, userID, milestoneID uuid.UUID) (*models.Transaction, error) {
	milestone, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if chat.BuyerID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "подтверждать выплату может только покупатель")
	}
	if milestone.Status != models.MilestoneStatusCompleted {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "выплата возможна только по завершённому этапу")
	}

	tx, err := s.escrow.GetActiveByMilestone(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "по этапу нет зачисления в эскроу")
		}
		return nil, err
	}
	if tx.PayoutStatus == models.PayoutStatusSent {
		return tx, nil
	}

	seller, err := s.requirePayableSeller(ctx, chat.SellerID)
	if err != nil {
		return nil, err
	}

	idempotencyKey := fmt.Sprintf("batch_%s_%d", milestone.ID, tx.PayoutAttempts+1)

	payout, err := s.gateway.Payout(ctx, *seller.PayPalEmail, tx.SellerEarnings, tx.Currency,
		fmt.Sprintf("Выплата по этапу «%s»", milestone.Title), idempotencyKey)
	if err != nil {
		// Счётчик попыток растёт только при явном отказе шлюза. После
		// таймаута или 5xx исход неизвестен, и повтор обязан идти с тем
		// же sender_batch_id, иначе дедупликация шлюза не сработает.
		if paypal.IsRejected(err) {
			if _, incErr := s.escrow.IncrementPayoutAttempts(ctx, tx.ID); incErr != nil {
				s.log.WithError(incErr).WithField("transaction_id", tx.ID).
					Error("не удалось увеличить счётчик попыток выплаты")
			}
		}
		if markErr := s.escrow.MarkPayoutFailed(ctx, tx.ID); markErr != nil {
			s.log.WithError(markErr).WithField("transaction_id", tx.ID).
				Error("не удалось отметить неудачную выплату")
		}
		s.notify(chat.SellerID, models.EventPayoutFailed, map[string]any{
			"milestone_id": milestone.ID,
			"chat_id":      chat.ID,
		})
		return nil, s.gatewayError("не удалось отправить выплату", err)
	}

	if err := s.escrow.MarkPayoutSent(ctx, tx.ID, payout.PayoutID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"payout_id":      payout.PayoutID,
		}).Error("выплата отправлена, но реестр не обновился")
		return nil, err
	}
	if err := s.milestones.MarkPaid(ctx, milestone.ID); err != nil {
		s.log.WithError(err).WithField("milestone_id", milestone.ID).
			Error("выплата отправлена, но этап не удалось отметить выплаченным")
	}
	if err := s.chats.ClearActiveMilestone(ctx, chat.ID, milestone.ID); err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Error("не удалось освободить слот активного этапа")
	}
	if err := s.proposals.AddCompletedMilestone(ctx, milestone.ProposalID, tx.AmountPaid); err != nil {
		s.log.WithError(err).WithField("proposal_id", milestone.ProposalID).
			Error("не удалось обновить счётчики предложения")
	}

	s.notify(chat.SellerID, models.EventPayoutSent, map[string]any{
		"milestone_id": milestone.ID,
		"chat_id":      chat.ID,
		"earnings":     tx.SellerEarnings,
		"payout_id":    payout.PayoutID,
	})

	return s.escrow.GetActiveByMilestone(ctx, milestoneID)
}

// RefundMilestone возвращает средства покупателю. После выплаты
// продавцу возврат невозможен.
func (s *MilestoneService) RefundMilestone(ctx context.Context, userID, milestoneID uuid.UUID) error {
	milestone, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return err
	}
	if chat.BuyerID != userID {
		return apperror.New(apperror.ErrCodeForbidden, "запросить возврат может только покупатель")
	}
	return s.refund(ctx, milestone, chat, "Возврат средств по этапу")
}

// RefundOverdueMilestones возвращает средства по просроченным этапам.
// Ошибки отдельных этапов логируются и не прерывают обход.
func (s *MilestoneService) RefundOverdueMilestones(ctx context.Context) (int, error) {
	overdue, err := s.milestones.ListOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	refunded := 0
	for i := range overdue {
		milestone := &overdue[i]

		// Между выборкой и возвратом этап мог успеть завершиться.
		fresh, err := s.milestones.GetByID(ctx, milestone.ID)
		if err != nil {
			s.log.WithError(err).WithField("milestone_id", milestone.ID).Error("этап пропал из хранилища")
			continue
		}
		if fresh.Status != milestone.Status || fresh.PaidToSeller {
			continue
		}

		chat, err := s.chats.GetByID(ctx, fresh.ChatID)
		if err != nil {
			s.log.WithError(err).WithField("chat_id", fresh.ChatID).Error("не удалось загрузить чат этапа")
			continue
		}

		// Неоплаченный этап закрывается без обращения к шлюзу: возвращать
		// нечего, но слот активного этапа надо освободить.
		if !fresh.BuyerPaid {
			if err := s.closeUnfunded(ctx, fresh, chat); err != nil {
				s.log.WithError(err).WithField("milestone_id", fresh.ID).Error("не удалось закрыть неоплаченный просроченный этап")
				continue
			}
			refunded++
			continue
		}

		if err := s.refund(ctx, fresh, chat, "Автоматический возврат по истечении срока этапа"); err != nil {
			s.log.WithError(err).WithField("milestone_id", fresh.ID).Error("не удалось вернуть средства по просроченному этапу")
			continue
		}
		refunded++
	}
	return refunded, nil
}

// closeUnfunded закрывает просроченный этап без зачисления в эскроу.
func (s *MilestoneService) closeUnfunded(ctx context.Context, milestone *models.Milestone, chat *models.Chat) error {
	if err := s.milestones.MarkRefunded(ctx, milestone.ID); err != nil {
		return err
	}
	if err := s.chats.ClearActiveMilestone(ctx, chat.ID, milestone.ID); err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Error("не удалось освободить слот активного этапа")
	}

	s.notify(chat.BuyerID, models.EventMilestoneRefunded, map[string]any{
		"milestone_id": milestone.ID,
		"chat_id":      chat.ID,
	})
	s.notify(chat.SellerID, models.EventMilestoneRefunded, map[string]any{
		"milestone_id": milestone.ID,
		"chat_id":      chat.ID,
	})
	return nil
}

// refund выполняет возврат средств этапа: шлюз, реестр, состояние этапа.
func (s *MilestoneService) refund(ctx context.Context, milestone *models.Milestone, chat *models.Chat, note string) error {
	if milestone.Status == models.MilestoneStatusRefunded {
		return nil
	}
	if !milestone.BuyerPaid {
		return apperror.New(apperror.ErrCodeInvalidState, "этап не оплачен, возвращать нечего")
	}
	if milestone.PaidToSeller || milestone.Status == models.MilestoneStatusPaid {
		return apperror.New(apperror.ErrCodeInvalidState, "средства уже выплачены продавцу, возврат невозможен")
	}
	if milestone.Status == models.MilestoneStatusCompleted {
		return apperror.New(apperror.ErrCodeInvalidState, "работа сдана и ожидает подтверждения, возврат невозможен")
	}

	tx, err := s.escrow.GetActiveByMilestone(ctx, milestone.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return apperror.New(apperror.ErrCodeInvalidState, "по этапу нет зачисления в эскроу")
		}
		return err
	}

	if _, err := s.gateway.Refund(ctx, tx.CaptureID, tx.AmountPaid, tx.Currency, note); err != nil {
		return s.gatewayError("не удалось вернуть средства", err)
	}

	if err := s.escrow.MarkRefunded(ctx, tx.ID); err != nil {
		s.log.WithError(err).WithField("transaction_id", tx.ID).
			Error("возврат выполнен, но реестр не обновился")
		return err
	}
	if err := s.milestones.MarkRefunded(ctx, milestone.ID); err != nil {
		s.log.WithError(err).WithField("milestone_id", milestone.ID).
			Error("возврат выполнен, но этап не удалось отметить возвращённым")
	}
	if err := s.chats.ClearActiveMilestone(ctx, chat.ID, milestone.ID); err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Error("не удалось освободить слот активного этапа")
	}

	s.notify(chat.BuyerID, models.EventMilestoneRefunded, map[string]any{
		"milestone_id": milestone.ID,
		"chat_id":      chat.ID,
		"amount":       tx.AmountPaid,
	})
	s.notify(chat.SellerID, models.EventMilestoneRefunded, map[string]any{
		"milestone_id": milestone.ID,
		"chat_id":      chat.ID,
	})
	return nil
}

// GetMilestone возвращает этап участнику его чата.
func (s *MilestoneService) GetMilestone(ctx context.Context, userID, milestoneID uuid.UUID) (*models.Milestone, error) {
	milestone, chat, err := s.getMilestoneChat(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return milestone, nil
}

// requirePayableSeller проверяет, что продавцу есть куда выплачивать.
// Проверка стоит на входе в платёжный путь: брать деньги в эскроу без
// пути выплаты нельзя.
func (s *MilestoneService) requirePayableSeller(ctx context.Context, sellerID uuid.UUID) (*models.User, error) {
	seller, err := s.accounts.GetByID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !seller.CanReceivePayouts() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "продавец не подключил платёжный аккаунт")
	}
	return seller, nil
}

func (s *MilestoneService) getChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, apperror.ErrChatNotFound
		}
		return nil, err
	}
	return chat, nil
}

func (s *MilestoneService) getMilestoneChat(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Chat, error) {
	milestone, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, nil, apperror.ErrMilestoneNotFound
		}
		return nil, nil, err
	}
	chat, err := s.getChat(ctx, milestone.ChatID)
	if err != nil {
		return nil, nil, err
	}
	return milestone, chat, nil
}

// notify отправляет событие, не прерывая основную операцию при сбое.
func (s *MilestoneService) notify(userID uuid.UUID, event string, data any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.BroadcastToUser(userID, event, data); err != nil {
		s.log.WithError(err).WithField("event", event).Warn("не удалось отправить уведомление")
	}
}

// gatewayError переводит ошибку шлюза в ошибку приложения.
func (s *MilestoneService) gatewayError(message string, err error) error {
	var rejected *paypal.RejectedError
	if errors.As(err, &rejected) {
		return apperror.Wrap(err, apperror.ErrCodeGateway, message+": платёжный шлюз отклонил операцию")
	}
	return apperror.Wrap(err, apperror.ErrCodeGateway, message)
}
