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

// ProposalRepository отвечает за работу с таблицей proposals.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository создаёт экземпляр репозитория.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create создаёт предложение. Уникальность пары (услуга, покупатель)
// обеспечивается ограничением в БД.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal) error {
	query := `
		INSERT INTO proposals (service_id, buyer_id, seller_id, message, price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		proposal.ServiceID, proposal.BuyerID, proposal.SellerID,
		proposal.Message, proposal.Price, proposal.Status,
	).Scan(&proposal.ID, &proposal.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("proposal repository: create %w", err)
	}
	return nil
}

// GetByID возвращает предложение по идентификатору.
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, `SELECT * FROM proposals WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get by id %w", err)
	}
	return &proposal, nil
}

// ListByBuyer возвращает предложения, отправленные пользователем.
func (r *ProposalRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE buyer_id = $1 ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: list by buyer %w", err)
	}
	return proposals, nil
}

// ListBySeller возвращает предложения, полученные продавцом.
func (r *ProposalRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE seller_id = $1 ORDER BY created_at DESC
	`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: list by seller %w", err)
	}
	return proposals, nil
}

// UpdateStatus переводит предложение из expected в next. Нулевое число
// затронутых строк означает проигранную гонку.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proposals SET status = $3 WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return fmt.Errorf("proposal repository: update status %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// AddCompletedMilestone увеличивает счётчики оплаченного по предложению.
func (r *ProposalRepository) AddCompletedMilestone(ctx context.Context, id uuid.UUID, amount float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proposals
		SET total_paid = total_paid + $2, milestones_completed = milestones_completed + 1
		WHERE id = $1
	`, id, amount)
	if err != nil {
		return fmt.Errorf("proposal repository: add completed milestone %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrProposalNotFound
	}
	return nil
}
