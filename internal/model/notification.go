package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationApplicationReceived NotificationType = "application_received"
	NotificationApplicationAccepted NotificationType = "application_accepted"
	NotificationRequestCompleted    NotificationType = "request_completed"
)

// Valid проверяет, что тип известен
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationApplicationReceived, NotificationApplicationAccepted, NotificationRequestCompleted:
		return true
	}
	return false
}

// Notification уведомление. Изменяется только флаг IsRead
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	RequestID *uuid.UUID       `json:"request_id"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate проверяет строку, пришедшую из realtime
func (n *Notification) Validate() error {
	if n.ID == uuid.Nil {
		return errMissing("notifications", "id")
	}
	if n.UserID == uuid.Nil {
		return errMissing("notifications", "user_id")
	}
	if !n.Type.Valid() {
		return errInvalid("notifications", "type", string(n.Type))
	}
	return nil
}

// ValidateKey проверяет только первичный ключ
func (n *Notification) ValidateKey() error {
	if n.ID == uuid.Nil {
		return errMissing("notifications", "id")
	}
	return nil
}
