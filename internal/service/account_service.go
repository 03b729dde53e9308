package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
)

// AccountRepository описывает зависимости AccountService от слоя хранилища.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ConnectPayPal(ctx context.Context, userID uuid.UUID, email string, merchantID *string) error
	DisconnectPayPal(ctx context.Context, userID uuid.UUID) error
}

// AccountService управляет профилем и платёжным аккаунтом пользователя.
type AccountService struct {
	repo AccountRepository
}

// NewAccountService создаёт сервис аккаунтов.
func NewAccountService(repo AccountRepository) *AccountService {
	return &AccountService{repo: repo}
}

// GetProfile возвращает профиль пользователя.
func (s *AccountService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.repo.GetByID(ctx, userID)
}

// PayPalStatus описывает состояние подключения платёжного аккаунта.
type PayPalStatus struct {
	Connected   bool    `json:"connected"`
	PayPalEmail *string `json:"paypal_email,omitempty"`
	CanReceive  bool    `json:"can_receive_payouts"`
}

// GetPayPalStatus возвращает состояние платёжного аккаунта пользователя.
func (s *AccountService) GetPayPalStatus(ctx context.Context, userID uuid.UUID) (*PayPalStatus, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PayPalStatus{
		Connected:   user.PayPalConnected,
		PayPalEmail: user.PayPalEmail,
		CanReceive:  user.CanReceivePayouts(),
	}, nil
}

// ConnectPayPal привязывает платёжный аккаунт к пользователю. Выплаты
// продавцу уходят на этот адрес.
func (s *AccountService) ConnectPayPal(ctx context.Context, userID uuid.UUID, email string, merchantID *string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return apperror.New(apperror.ErrCodeValidation, "некорректный email платёжного аккаунта")
	}
	return s.repo.ConnectPayPal(ctx, userID, email, merchantID)
}

// DisconnectPayPal отвязывает платёжный аккаунт.
func (s *AccountService) DisconnectPayPal(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DisconnectPayPal(ctx, userID)
}
