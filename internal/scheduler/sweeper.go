package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/devmarket-backend/internal/logger"
)

// OverdueRefunder возвращает средства по просроченным этапам.
type OverdueRefunder interface {
	RefundOverdueMilestones(ctx context.Context) (int, error)
}

// Sweeper периодически запускает возврат средств по этапам с истёкшим
// сроком. Один цикл обрабатывает все просроченные этапы, ошибки
// отдельных этапов не прерывают обход.
type Sweeper struct {
	refunder OverdueRefunder
	interval time.Duration
	log      *logrus.Entry
}

// NewSweeper создаёт планировщик с заданным интервалом.
func NewSweeper(refunder OverdueRefunder, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		refunder: refunder,
		interval: interval,
		log:      logger.WithComponent("sweeper"),
	}
}

// Run крутит цикл проверки до отмены контекста.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.WithField("interval", s.interval).Info("планировщик возвратов запущен")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("планировщик возвратов остановлен")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	refunded, err := s.refunder.RefundOverdueMilestones(ctx)
	if err != nil {
		s.log.WithError(err).Error("цикл проверки просроченных этапов завершился с ошибкой")
		return
	}
	if refunded > 0 {
		s.log.WithField("refunded", refunded).Info("возвращены средства по просроченным этапам")
	}
}
