package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/devmarket-backend/internal/models"
)

// MilestoneRepository отвечает за работу с таблицей milestones.
// Все переходы статусов выполняются условными UPDATE: строка меняется
// только из ожидаемого состояния, нулевой результат — проигранная гонка.
type MilestoneRepository struct {
	db *sqlx.DB
}

// NewMilestoneRepository создаёт экземпляр репозитория.
func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// Create создаёт этап в статусе pending.
func (r *MilestoneRepository) Create(ctx context.Context, milestone *models.Milestone) error {
	query := `
		INSERT INTO milestones (chat_id, proposal_id, title, description, price, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		milestone.ChatID, milestone.ProposalID, milestone.Title, milestone.Description,
		milestone.Price, milestone.Status, milestone.DueDate,
	).Scan(&milestone.ID, &milestone.CreatedAt); err != nil {
		return fmt.Errorf("milestone repository: create %w", err)
	}
	return nil
}

// GetByID возвращает этап по идентификатору.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := r.db.GetContext(ctx, &milestone, `SELECT * FROM milestones WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("milestone repository: get by id %w", err)
	}
	return &milestone, nil
}

// ListByChat возвращает этапы чата, старые первыми.
func (r *MilestoneRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE chat_id = $1 ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list by chat %w", err)
	}
	return milestones, nil
}

// MarkAgreed отмечает согласие продавца. Из pending этап переходит
// в in_progress, оплаченный буфером этап остаётся in_progress.
func (r *MilestoneRepository) MarkAgreed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET seller_agreed = TRUE, status = $2
		WHERE id = $1 AND seller_agreed = FALSE AND status = ANY($3)
	`, id, models.MilestoneStatusInProgress,
		pq.Array([]string{models.MilestoneStatusPending, models.MilestoneStatusInProgress}))
	if err != nil {
		return fmt.Errorf("milestone repository: mark agreed %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// MarkDisagreed отклоняет этап продавцом. Допустимо только до оплаты.
func (r *MilestoneRepository) MarkDisagreed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = $2
		WHERE id = $1 AND status = $3 AND buyer_paid = FALSE
	`, id, models.MilestoneStatusDisagreed, models.MilestoneStatusPending)
	if err != nil {
		return fmt.Errorf("milestone repository: mark disagreed %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// MarkFunded фиксирует зачисление средств покупателя в эскроу. Оплата
// допустима и до, и после согласия продавца; при наличии согласия этап
// переводится в in_progress. Повторная оплата отсекается условием
// buyer_paid = FALSE.
func (r *MilestoneRepository) MarkFunded(ctx context.Context, id, transactionID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET buyer_paid = TRUE, transaction_id = $2,
		    status = CASE WHEN seller_agreed THEN $3 ELSE status END
		WHERE id = $1 AND buyer_paid = FALSE AND status = ANY($4)
	`, id, transactionID, models.MilestoneStatusInProgress,
		pq.Array([]string{models.MilestoneStatusPending, models.MilestoneStatusInProgress}))
	if err != nil {
		return fmt.Errorf("milestone repository: mark funded %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// MarkCompleted отмечает сдачу работы продавцом. Требуются согласие
// обеих сторон и зачисленные средства.
func (r *MilestoneRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = $2
		WHERE id = $1 AND status = $3 AND buyer_paid = TRUE AND seller_agreed = TRUE
	`, id, models.MilestoneStatusCompleted, models.MilestoneStatusInProgress)
	if err != nil {
		return fmt.Errorf("milestone repository: mark completed %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// MarkPaid фиксирует выплату продавцу по завершённому этапу.
func (r *MilestoneRepository) MarkPaid(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = $2, paid_to_seller = TRUE
		WHERE id = $1 AND status = $3
	`, id, models.MilestoneStatusPaid, models.MilestoneStatusCompleted)
	if err != nil {
		return fmt.Errorf("milestone repository: mark paid %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// MarkRefunded закрывает незавершённый этап возвратом. Завершённый этап
// ждёт подтверждения покупателя, после выплаты продавцу возврат невозможен.
func (r *MilestoneRepository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = $2
		WHERE id = $1 AND status = ANY($3) AND paid_to_seller = FALSE
	`, id, models.MilestoneStatusRefunded,
		pq.Array([]string{models.MilestoneStatusPending, models.MilestoneStatusInProgress}))
	if err != nil {
		return fmt.Errorf("milestone repository: mark refunded %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// ListOverdue возвращает незавершённые этапы, срок которых истёк к
// моменту now, независимо от оплаты: неоплаченный просроченный этап тоже
// требует закрытия, иначе он навсегда держит слот активного этапа чата.
func (r *MilestoneRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones
		WHERE status = ANY($1)
		  AND paid_to_seller = FALSE
		  AND due_date IS NOT NULL
		  AND due_date < $2
		ORDER BY due_date ASC
	`, pq.Array([]string{models.MilestoneStatusPending, models.MilestoneStatusInProgress}), now)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list overdue %w", err)
	}
	return milestones, nil
}
