package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы выплаты по транзакции
const (
	PayoutStatusPending  = "pending"
	PayoutStatusSent     = "sent"
	PayoutStatusFailed   = "failed"
	PayoutStatusRefunded = "refunded"
)

// Transaction фиксирует одно пополнение эскроу по этапу. Записи не
// удаляются: реестр служит для независимой сверки движения средств.
type Transaction struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ProposalID     uuid.UUID  `db:"proposal_id" json:"proposal_id"`
	MilestoneID    uuid.UUID  `db:"milestone_id" json:"milestone_id"`
	BuyerID        uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID       uuid.UUID  `db:"seller_id" json:"seller_id"`
	AmountPaid     float64    `db:"amount_paid" json:"amount_paid"`
	PlatformFee    float64    `db:"platform_fee" json:"platform_fee"`
	SellerEarnings float64    `db:"seller_earnings" json:"seller_earnings"`
	Currency       string     `db:"currency" json:"currency"`
	CaptureID      string     `db:"capture_id" json:"capture_id"`
	PayoutStatus   string     `db:"payout_status" json:"payout_status"`
	PayoutID       *string    `db:"payout_id" json:"payout_id,omitempty"`
	PayoutAttempts int        `db:"payout_attempts" json:"payout_attempts"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
