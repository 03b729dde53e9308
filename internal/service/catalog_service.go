package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/validation"
)

// CatalogRepository описывает зависимости CatalogService от слоя хранилища.
type CatalogRepository interface {
	Create(ctx context.Context, service *models.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	List(ctx context.Context, limit, offset int) ([]models.Service, error)
}

// CatalogService управляет каталогом услуг разработчиков.
type CatalogService struct {
	repo     CatalogRepository
	currency string
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(repo CatalogRepository, currency string) *CatalogService {
	return &CatalogService{repo: repo, currency: currency}
}

// CreateServiceInput содержит данные новой услуги.
type CreateServiceInput struct {
	Title       string
	Description string
	Price       float64
}

// CreateService публикует услугу от имени разработчика.
func (s *CatalogService) CreateService(ctx context.Context, ownerID uuid.UUID, ownerRole string, in CreateServiceInput) (*models.Service, error) {
	if ownerRole != models.RoleDeveloper {
		return nil, apperror.New(apperror.ErrCodeForbidden, "публиковать услуги могут только разработчики")
	}
	if err := validation.ValidateTitle("название услуги", in.Title); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateAmount("цена", in.Price); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	service := &models.Service{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Price:       in.Price,
		Currency:    s.currency,
	}
	if err := s.repo.Create(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

// GetService возвращает услугу по идентификатору.
func (s *CatalogService) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return s.repo.GetByID(ctx, id)
}

// ListServices возвращает страницу каталога.
func (s *CatalogService) ListServices(ctx context.Context, limit, offset int) ([]models.Service, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
