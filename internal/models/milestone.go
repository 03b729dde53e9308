package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы этапов. Терминальные: paid, refunded, disagreed.
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusCompleted  = "completed"
	MilestoneStatusPaid       = "paid"
	MilestoneStatusRefunded   = "refunded"
	MilestoneStatusDisagreed  = "disagreed"
)

// TerminalMilestoneStatuses список терминальных статусов этапа
var TerminalMilestoneStatuses = map[string]struct{}{
	MilestoneStatusPaid:      {},
	MilestoneStatusRefunded:  {},
	MilestoneStatusDisagreed: {},
}

// Milestone описывает оплачиваемый этап работы внутри чата.
type Milestone struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ChatID        uuid.UUID  `db:"chat_id" json:"chat_id"`
	ProposalID    uuid.UUID  `db:"proposal_id" json:"proposal_id"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	Price         float64    `db:"price" json:"price"`
	Status        string     `db:"status" json:"status"`
	DueDate       *time.Time `db:"due_date" json:"due_date,omitempty"`
	BuyerPaid     bool       `db:"buyer_paid" json:"buyer_paid"`
	SellerAgreed  bool       `db:"seller_agreed" json:"seller_agreed"`
	PaidToSeller  bool       `db:"paid_to_seller" json:"paid_to_seller"`
	TransactionID *uuid.UUID `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// IsTerminal сообщает, завершён ли жизненный цикл этапа.
func (m *Milestone) IsTerminal() bool {
	_, ok := TerminalMilestoneStatuses[m.Status]
	return ok
}
