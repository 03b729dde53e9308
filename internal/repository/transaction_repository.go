package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/devmarket-backend/internal/models"
)

// TransactionRepository отвечает за работу с реестром эскроу-транзакций.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository создаёт экземпляр репозитория.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create записывает пополнение эскроу. Частичный уникальный индекс по
// milestone_id не даст завести вторую невозвращённую транзакцию этапа.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			proposal_id, milestone_id, buyer_id, seller_id,
			amount_paid, platform_fee, seller_earnings, currency,
			capture_id, payout_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		tx.ProposalID, tx.MilestoneID, tx.BuyerID, tx.SellerID,
		tx.AmountPaid, tx.PlatformFee, tx.SellerEarnings, tx.Currency,
		tx.CaptureID, tx.PayoutStatus,
	).Scan(&tx.ID, &tx.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("transaction repository: create %w", err)
	}
	return nil
}

// GetByID возвращает транзакцию по идентификатору.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction repository: get by id %w", err)
	}
	return &tx, nil
}

// GetActiveByMilestone возвращает невозвращённую транзакцию этапа.
func (r *TransactionRepository) GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.GetContext(ctx, &tx, `
		SELECT * FROM transactions
		WHERE milestone_id = $1 AND payout_status != $2
	`, milestoneID, models.PayoutStatusRefunded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction repository: get active by milestone %w", err)
	}
	return &tx, nil
}

// ListByUser возвращает транзакции, в которых пользователь был стороной.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list by user %w", err)
	}
	return txs, nil
}

// ListByProposal возвращает транзакции предложения.
func (r *TransactionRepository) ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions WHERE proposal_id = $1 ORDER BY created_at DESC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list by proposal %w", err)
	}
	return txs, nil
}

// MarkPayoutSent идемпотентно отмечает отправку выплаты. Повторный
// вызов с тем же статусом не считается ошибкой.
func (r *TransactionRepository) MarkPayoutSent(ctx context.Context, id uuid.UUID, payoutID string) error {
	return r.markTerminal(ctx, id, models.PayoutStatusSent, `
		UPDATE transactions
		SET payout_status = $2, payout_id = $3, completed_at = NOW()
		WHERE id = $1 AND payout_status = ANY($4)
	`, id, models.PayoutStatusSent, payoutID,
		pq.Array([]string{models.PayoutStatusPending, models.PayoutStatusFailed}))
}

// MarkPayoutFailed отмечает неудачную попытку выплаты.
func (r *TransactionRepository) MarkPayoutFailed(ctx context.Context, id uuid.UUID) error {
	return r.markTerminal(ctx, id, models.PayoutStatusFailed, `
		UPDATE transactions
		SET payout_status = $2
		WHERE id = $1 AND payout_status = ANY($3)
	`, id, models.PayoutStatusFailed,
		pq.Array([]string{models.PayoutStatusPending, models.PayoutStatusFailed}))
}

// MarkRefunded отмечает возврат средств покупателю. Выплаченную
// транзакцию вернуть нельзя.
func (r *TransactionRepository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	return r.markTerminal(ctx, id, models.PayoutStatusRefunded, `
		UPDATE transactions
		SET payout_status = $2, completed_at = NOW()
		WHERE id = $1 AND payout_status = ANY($3)
	`, id, models.PayoutStatusRefunded,
		pq.Array([]string{models.PayoutStatusPending, models.PayoutStatusFailed}))
}

// IncrementPayoutAttempts увеличивает счётчик попыток выплаты и
// возвращает новое значение.
func (r *TransactionRepository) IncrementPayoutAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRowxContext(ctx, `
		UPDATE transactions
		SET payout_attempts = payout_attempts + 1
		WHERE id = $1
		RETURNING payout_attempts
	`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTransactionNotFound
		}
		return 0, fmt.Errorf("transaction repository: increment payout attempts %w", err)
	}
	return attempts, nil
}

// markTerminal выполняет условный переход статуса выплаты. Нулевой
// результат допустим, если статус уже целевой: повтор не ошибка.
func (r *TransactionRepository) markTerminal(ctx context.Context, id uuid.UUID, target, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transaction repository: mark %s %w", target, err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.PayoutStatus == target {
		return nil
	}
	return ErrConflict
}
