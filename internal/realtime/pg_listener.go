package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ChannelName канал pg_notify, в который пишут триггеры миграции 00002
const ChannelName = "market_changes"

// Publisher принимает разобранные события
type Publisher interface {
	Publish(event model.ChangeEvent)
}

// PGListener слушает LISTEN/NOTIFY на выделенном соединении пула
type PGListener struct {
	pool           *pgxpool.Pool
	publisher      Publisher
	logger         *zap.Logger
	reconnectDelay time.Duration
}

// NewPGListener создаёт слушателя канала market_changes
func NewPGListener(pool *pgxpool.Pool, publisher Publisher, logger *zap.Logger) *PGListener {
	return &PGListener{
		pool:           pool,
		publisher:      publisher,
		logger:         logger,
		reconnectDelay: 5 * time.Second,
	}
}

// Run слушает канал до отмены контекста, переподключаясь при обрыве
func (l *PGListener) Run(ctx context.Context) error {
	l.logger.Info("Starting postgres change listener", zap.String("channel", ChannelName))

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Postgres change listener stopped")
			return nil
		}

		l.logger.Error("Postgres change listener failed, reconnecting",
			zap.Error(err),
			zap.Duration("delay", l.reconnectDelay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChannelName); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Соединение в неизвестном состоянии, в пул его не возвращаем
			conn.Hijack().Close(context.Background())
			return fmt.Errorf("wait for notification: %w", err)
		}

		l.dispatch([]byte(notification.Payload))
	}
}

func (l *PGListener) dispatch(payload []byte) {
	event, err := ParseChange(payload)
	if err != nil {
		l.logger.Warn("Dropping invalid change payload", zap.Error(err))
		return
	}
	l.publisher.Publish(event)
}
