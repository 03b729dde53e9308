package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/devmarket-backend/internal/models"
)

// ChatRepository отвечает за работу с таблицей chats.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository создаёт экземпляр репозитория.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateForProposal создаёт чат по предложению. Операция идемпотентна:
// при повторном вызове возвращается уже существующий чат.
func (r *ChatRepository) CreateForProposal(ctx context.Context, proposalID, buyerID, sellerID uuid.UUID) (*models.Chat, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (proposal_id, buyer_id, seller_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id) DO NOTHING
	`, proposalID, buyerID, sellerID)
	if err != nil {
		return nil, fmt.Errorf("chat repository: create for proposal %w", err)
	}
	return r.GetByProposal(ctx, proposalID)
}

// GetByID возвращает чат по идентификатору.
func (r *ChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, `SELECT * FROM chats WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("chat repository: get by id %w", err)
	}
	return &chat, nil
}

// GetByProposal возвращает чат по предложению.
func (r *ChatRepository) GetByProposal(ctx context.Context, proposalID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, `SELECT * FROM chats WHERE proposal_id = $1`, proposalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("chat repository: get by proposal %w", err)
	}
	return &chat, nil
}

// ListByUser возвращает чаты, в которых пользователь участвует.
func (r *ChatRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `
		SELECT * FROM chats
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("chat repository: list by user %w", err)
	}
	return chats, nil
}

// SetActiveMilestone занимает слот активного этапа чата. Слот берётся
// только если он свободен, иначе возвращается ErrConflict.
func (r *ChatRepository) SetActiveMilestone(ctx context.Context, chatID, milestoneID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chats
		SET active_milestone_id = $2, updated_at = NOW()
		WHERE id = $1 AND active_milestone_id IS NULL
	`, chatID, milestoneID)
	if err != nil {
		return fmt.Errorf("chat repository: set active milestone %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// ClearActiveMilestone освобождает слот, если его занимает именно этот
// этап. Чужой слот не трогаем.
func (r *ChatRepository) ClearActiveMilestone(ctx context.Context, chatID, milestoneID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chats
		SET active_milestone_id = NULL, updated_at = NOW()
		WHERE id = $1 AND active_milestone_id = $2
	`, chatID, milestoneID)
	if err != nil {
		return fmt.Errorf("chat repository: clear active milestone %w", err)
	}
	return nil
}

// Touch обновляет метку последней активности чата.
func (r *ChatRepository) Touch(ctx context.Context, chatID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("chat repository: touch %w", err)
	}
	return nil
}
