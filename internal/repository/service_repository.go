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

// ServiceRepository отвечает за работу с таблицей services.
type ServiceRepository struct {
	db *sqlx.DB
}

// NewServiceRepository создаёт экземпляр репозитория.
func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Create создаёт услугу.
func (r *ServiceRepository) Create(ctx context.Context, service *models.Service) error {
	query := `
		INSERT INTO services (owner_id, title, description, price, currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		service.OwnerID, service.Title, service.Description, service.Price, service.Currency,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt); err != nil {
		return fmt.Errorf("service repository: create %w", err)
	}
	return nil
}

// GetByID возвращает услугу по идентификатору.
func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.db.GetContext(ctx, &service, `SELECT * FROM services WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("service repository: get by id %w", err)
	}
	return &service, nil
}

// List возвращает услуги с пагинацией, новые первыми.
func (r *ServiceRepository) List(ctx context.Context, limit, offset int) ([]models.Service, error) {
	var services []models.Service
	err := r.db.SelectContext(ctx, &services, `
		SELECT * FROM services ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service repository: list %w", err)
	}
	return services, nil
}
