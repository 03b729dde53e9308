package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей
const (
	RoleClient    = "client"
	RoleDeveloper = "developer"
)

// Статусы верификации
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// User описывает пользователя маркетплейса.
type User struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	Username           string     `db:"username" json:"username"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	Role               string     `db:"role" json:"role"`
	VerificationStatus string     `db:"verification_status" json:"verification_status"`
	PayPalEmail        *string    `db:"paypal_email" json:"paypal_email,omitempty"`
	PayPalMerchantID   *string    `db:"paypal_merchant_id" json:"paypal_merchant_id,omitempty"`
	PayPalConnected    bool       `db:"paypal_connected" json:"paypal_connected"`
	PayPalConnectedAt  *time.Time `db:"paypal_connected_at" json:"paypal_connected_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// CanReceivePayouts сообщает, подключён ли у продавца платёжный аккаунт.
func (u *User) CanReceivePayouts() bool {
	return u.PayPalConnected && u.PayPalEmail != nil && *u.PayPalEmail != ""
}
