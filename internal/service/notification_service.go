package service

import (
	"context"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService создаёт уведомления как побочный эффект переходов откликов
type NotificationService struct {
	store  NotificationStore
	logger *zap.Logger
}

func NewNotificationService(store NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, logger: logger}
}

// CreateNotification вставляет уведомление. Доставка best-effort:
// ошибка логируется и не возвращается, чтобы не блокировать основной переход
func (s *NotificationService) CreateNotification(
	ctx context.Context,
	targetUserID uuid.UUID,
	notificationType model.NotificationType,
	title, message string,
	requestID *uuid.UUID,
) *model.Notification {
	n := &model.Notification{
		UserID:    targetUserID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		RequestID: requestID,
	}

	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Error("Failed to create notification",
			zap.Error(err),
			zap.String("user_id", targetUserID.String()),
			zap.String("type", string(notificationType)),
		)
		return nil
	}

	return n
}
