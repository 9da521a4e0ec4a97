package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPruneInterval как часто лента чистится от устаревших выполненных заявок
const DefaultPruneInterval = time.Minute

// Pruner убирает из ленты заявки, вышедшие из окна видимости
type Pruner interface {
	PruneExpired() int
}

// Refresher перезагружает представление из хранилища
type Refresher interface {
	Refresh(ctx context.Context) error
}

type namedRefresher struct {
	name      string
	refresher Refresher
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	pruner        Pruner
	pruneInterval time.Duration
	pollInterval  time.Duration
	refreshers    []namedRefresher
	logger        *zap.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(pruner Pruner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pruner:        pruner,
		pruneInterval: DefaultPruneInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// AddPolling регистрирует периодическое обновление (режим опроса без realtime)
func (s *Scheduler) AddPolling(name string, r Refresher) {
	s.refreshers = append(s.refreshers, namedRefresher{name: name, refresher: r})
}

// SetPollInterval задаёт период опроса
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("prune_interval", s.pruneInterval),
		zap.Int("polling", len(s.refreshers)),
	)

	if s.pruner != nil {
		s.run(ctx, "prune", s.pruneInterval, s.prune)
	}

	if len(s.refreshers) > 0 && s.pollInterval > 0 {
		s.run(ctx, "poll", s.pollInterval, s.poll)
	}
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, task func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				task(ctx)
			case <-s.stopChan:
				s.logger.Info("Background task stopped", zap.String("task", name))
				return
			case <-ctx.Done():
				s.logger.Info("Background task cancelled", zap.String("task", name))
				return
			}
		}
	}()
}

func (s *Scheduler) prune(ctx context.Context) {
	if removed := s.pruner.PruneExpired(); removed > 0 {
		s.logger.Info("Pruned expired requests", zap.Int("removed", removed))
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	for _, r := range s.refreshers {
		if err := r.refresher.Refresh(ctx); err != nil {
			s.logger.Error("Polling refresh failed", zap.String("view", r.name), zap.Error(err))
		}
	}
}
