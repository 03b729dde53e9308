package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// События уведомлений жизненного цикла этапов
const (
	EventMilestoneCreated   = "milestone_created"
	EventMilestoneAgreed    = "milestone_agreed"
	EventMilestoneDisagreed = "milestone_disagreed"
	EventMilestoneFunded    = "milestone_funded"
	EventMilestoneCompleted = "milestone_completed"
	EventPayoutSent         = "payout_sent"
	EventPayoutFailed       = "payout_failed"
	EventMilestoneRefunded  = "milestone_refunded"
)

// Notification описывает событие, отправленное пользователю.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
