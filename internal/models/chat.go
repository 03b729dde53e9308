package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat описывает беседу по принятому предложению. На предложение
// создаётся ровно один чат; activeMilestone — единственный незавершённый
// этап, допустимый в беседе в один момент времени.
type Chat struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ProposalID        uuid.UUID  `db:"proposal_id" json:"proposal_id"`
	BuyerID           uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID          uuid.UUID  `db:"seller_id" json:"seller_id"`
	ActiveMilestoneID *uuid.UUID `db:"active_milestone_id" json:"active_milestone_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	// Загружаются отдельно
	Milestones      []Milestone `json:"milestones,omitempty"`
	ActiveMilestone *Milestone  `json:"active_milestone,omitempty"`
}

// IsParticipant сообщает, состоит ли пользователь в чате.
func (c *Chat) IsParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// OtherParticipant возвращает собеседника пользователя в чате.
func (c *Chat) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}
