package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Общие ошибки репозиториев
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrChatNotFound        = errors.New("chat not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConflict возвращается, когда условное обновление не нашло строку
	// в ожидаемом состоянии: писатель проиграл гонку.
	ErrConflict = errors.New("conditional update lost the race")

	// ErrDuplicate возвращается при нарушении уникального ограничения.
	ErrDuplicate = errors.New("duplicate entity")
)

// isUniqueViolation проверяет нарушение unique constraint в PostgreSQL.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
