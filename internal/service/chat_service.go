package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/devmarket-backend/internal/models"
	"github.com/ignatzorin/devmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
)

// ChatRepository описывает зависимости ChatService от слоя хранилища.
type ChatRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
}

// ChatMilestoneRepository читает этапы чата.
type ChatMilestoneRepository interface {
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]models.Milestone, error)
}

// ChatService предоставляет чаты их участникам.
type ChatService struct {
	chats      ChatRepository
	milestones ChatMilestoneRepository
}

// NewChatService создаёт сервис чатов.
func NewChatService(chats ChatRepository, milestones ChatMilestoneRepository) *ChatService {
	return &ChatService{chats: chats, milestones: milestones}
}

// GetChat возвращает чат с этапами. Доступ только участникам.
func (s *ChatService) GetChat(ctx context.Context, userID, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, apperror.ErrChatNotFound
		}
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}

	milestones, err := s.milestones.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	chat.Milestones = milestones

	if chat.ActiveMilestoneID != nil {
		for i := range milestones {
			if milestones[i].ID == *chat.ActiveMilestoneID {
				chat.ActiveMilestone = &milestones[i]
				break
			}
		}
	}
	return chat, nil
}

// ListMyChats возвращает чаты пользователя.
func (s *ChatService) ListMyChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	return s.chats.ListByUser(ctx, userID)
}
