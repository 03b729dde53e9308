package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы предложений
const (
	ProposalStatusPending   = "pending"
	ProposalStatusAccepted  = "accepted"
	ProposalStatusRejected  = "rejected"
	ProposalStatusCompleted = "completed"
)

// ValidProposalStatuses список валидных статусов предложений
var ValidProposalStatuses = map[string]struct{}{
	ProposalStatusPending:   {},
	ProposalStatusAccepted:  {},
	ProposalStatusRejected:  {},
	ProposalStatusCompleted: {},
}

// Proposal описывает предложение покупателя продавцу по услуге.
// На пару (услуга, покупатель) допускается ровно одно предложение.
type Proposal struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	ServiceID           uuid.UUID `db:"service_id" json:"service_id"`
	BuyerID             uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID            uuid.UUID `db:"seller_id" json:"seller_id"`
	Message             string    `db:"message" json:"message"`
	Price               float64   `db:"price" json:"price"`
	Status              string    `db:"status" json:"status"`
	TotalPaid           float64   `db:"total_paid" json:"total_paid"`
	MilestonesCompleted int       `db:"milestones_completed" json:"milestones_completed"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// IsParticipant сообщает, относится ли пользователь к сделке.
func (p *Proposal) IsParticipant(userID uuid.UUID) bool {
	return p.BuyerID == userID || p.SellerID == userID
}
